package models

import (
	"fmt"
	"time"
)

// TranslationJob identifies a submitted document translation and where its
// result will appear. It is what a caller keeps between submitting a job and
// collecting it, possibly across processes.
type TranslationJob struct {
	// Provider side
	OperationID string `json:"operation_id"` // Opaque job identifier, often the status URL
	Provider    string `json:"provider"`     // "azure" or "google"

	// Storage side
	SourceContainer string `json:"source_container"` // Container holding the uploaded source
	SourceName      string `json:"source_name"`      // Collision-free blob name of the source
	ResultContainer string `json:"result_container"` // Container the provider writes into
	ResultName      string `json:"result_name"`      // Predicted blob name of the translated document

	// Languages
	SourceLanguage string `json:"source_language,omitempty"` // Empty or "auto" when detected
	TargetLanguage string `json:"target_language"`

	SubmittedAt time.Time `json:"submitted_at"`
}

// Validate checks that the job can be polled and resolved to a result.
func (j *TranslationJob) Validate() error {
	if j == nil || j.OperationID == "" {
		return fmt.Errorf("operation ID is required")
	}
	if j.ResultContainer == "" || j.ResultName == "" {
		return fmt.Errorf("result container and name are required")
	}
	return nil
}

// TranslationResult is the observed outcome of a document translation job.
type TranslationResult struct {
	Status      string     `json:"status"`                 // Provider status, e.g. "Running", "Succeeded"
	Message     string     `json:"message,omitempty"`      // Provider diagnostic, set for failed jobs
	DownloadURL string     `json:"download_url,omitempty"` // Read-only link, set once the job succeeded
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`   // When DownloadURL stops working
	Attempts    int        `json:"attempts,omitempty"`     // Status checks made while waiting
}

// ImageTranslation is the outcome of translating the text found in an image.
type ImageTranslation struct {
	OriginalText   string `json:"original_text"`   // Recognized text, empty when none was found
	TranslatedText string `json:"translated_text"` // Translation, or a notice when no text was found
	Language       string `json:"language"`        // Detected source language, "unknown" when none
	TargetLanguage string `json:"target_language"`

	// Confidence scores in [0,1]; zero when the provider reports none
	Confidence    float64 `json:"confidence,omitempty"`
	OCRConfidence float32 `json:"ocr_confidence,omitempty"`

	Provider       string `json:"provider,omitempty"`
	NoTextDetected bool   `json:"no_text_detected,omitempty"`
}
