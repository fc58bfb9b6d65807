package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"translator/internal/artifact"
	"translator/internal/logger"
	"translator/internal/ocr"
	"translator/internal/poller"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [file]",
	Short: "Extract text from an image or scanned PDF",
	Long: `Recognize the text in an image or a scanned PDF without translating it.

With TRANSLATOR_PROVIDER=azure the Azure AI Vision Read API is used. With
TRANSLATOR_PROVIDER=google images go to Google Cloud Vision and PDFs go to
Document AI when DOCUMENT_AI_PROCESSOR_ID is set, otherwise to Cloud Vision
(at most 5 pages). Files are limited to 20MB.

Required environment variables (azure):
  AZURE_VISION_ENDPOINT - Azure AI Vision endpoint
  AZURE_VISION_KEY      - Azure AI Vision key (default: AZURE_TRANSLATOR_KEY)

Required environment variables (google):
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID`,
	Example: `  # Extract text from a photo to stdout
  translator ocr sign.jpg

  # Save extracted text to file
  translator ocr letter.pdf -o extracted.txt

  # Include metadata and output as JSON
  translator ocr letter.pdf --metadata --json -o result.json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Text               string    `json:"text"`
	PageCount          int       `json:"page_count,omitempty"`
	Confidence         float32   `json:"confidence,omitempty"`
	LanguageCodes      []string  `json:"language_codes,omitempty"`
	ProcessedAt        time.Time `json:"processed_at,omitempty"`
	ProcessingDuration string    `json:"processing_duration,omitempty"`
	FileName           string    `json:"file_name"`
	FileSize           int64     `json:"file_size"`
	ContentType        string    `json:"content_type"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().BoolP("metadata", "m", false, "Include metadata in output")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	includeMetadata, _ := cmd.Flags().GetBool("metadata")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	filePath := args[0]

	log.Info().
		Str("file", filePath).
		Str("output", outputPath).
		Bool("metadata", includeMetadata).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

	input, err := validateOCRFile(filePath, log)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	ocrService, closeClients, err := createOCRService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeClients()

	log.Info().
		Str("file", input.Name).
		Str("content_type", input.ContentType).
		Int64("size", input.Size).
		Msg("Processing file")

	startTime := time.Now()
	result, err := ocrService.ExtractText(ctx, input.Data, input.ContentType)
	if err != nil {
		return handleOCRError(err, log)
	}

	log.Info().
		Int("page_count", result.PageCount).
		Float32("confidence", result.Confidence).
		Dur("duration", time.Since(startTime)).
		Int("text_length", len(result.Text)).
		Msg("OCR processing completed successfully")

	return outputResults(result, input, outputPath, jsonOutput, includeMetadata, log)
}

// validateOCRFile reads the file and checks that OCR can take it
func validateOCRFile(path string, log zerolog.Logger) (*artifact.Artifact, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", path).
				Msg("File not found")
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", path).
				Msg("Permission denied accessing file")
			return nil, fmt.Errorf("permission denied accessing file: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", path).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}

	if fileInfo.Size() > ocr.MaxFileSizeBytes {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxFileSizeBytes).
			Msg("File exceeds maximum size limit")
		return nil, fmt.Errorf("file too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), ocr.MaxFileSizeBytes)
	}

	input, err := openArtifact(path, log)
	if err != nil {
		return nil, err
	}
	if input.Kind != artifact.KindImage && input.ContentType != ocr.MimePDF {
		log.Error().
			Str("file", path).
			Str("content_type", input.ContentType).
			Msg("File is neither an image nor a PDF")
		return nil, fmt.Errorf("OCR needs an image or a PDF, got %s", input.ContentType)
	}
	return input, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(logger.IntoContext(context.Background(), log), time.Duration(timeoutSecs)*time.Second)

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
			// Context completed normally
		}
	}()

	return ctx, cancel
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, poller.ErrTimeout):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrDocumentTooLarge):
		return fmt.Errorf("file is too large (maximum 20MB). Try compressing or splitting the file")
	case errors.Is(err, ocr.ErrTooManyPages):
		return fmt.Errorf("PDF has too many pages (maximum 5 pages without Document AI). Try splitting into smaller files or set DOCUMENT_AI_PROCESSOR_ID")
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		return fmt.Errorf("the file format is not supported for text recognition: %w", err)
	case errors.Is(err, ocr.ErrEmptyDocument):
		return fmt.Errorf("no readable text found in the file")
	case errors.Is(err, ocr.ErrMissingCredentials),
		strings.Contains(errStr, "Unauthenticated"),
		strings.Contains(errStr, "invalid_grant"),
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("authentication failed. Please check your credentials:\n\n"+
			"1. For Azure, set AZURE_VISION_ENDPOINT and AZURE_VISION_KEY\n"+
			"2. For Google, set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS\n"+
			"   and ensure the service account has the 'Cloud Vision API User' role\n\n"+
			"Original error: %v", err)
	case errors.Is(err, ocr.ErrInvalidConfiguration):
		return fmt.Errorf("OCR is misconfigured. Check DOCUMENT_AI_PROCESSOR_ID and GOOGLE_CLOUD_LOCATION: %w", err)
	case strings.Contains(errStr, "QUOTA_EXCEEDED") ||
		strings.Contains(errStr, "quota"):
		return fmt.Errorf("OCR API quota exceeded. Check your provider quotas")
	case errors.Is(err, poller.ErrJobFailed), errors.Is(err, ocr.ErrOCRFailed):
		return fmt.Errorf("OCR processing failed. This may be due to network issues, API quota limits, or service unavailability: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

// outputResults formats and outputs the OCR results
func outputResults(result *ocr.Result, input *artifact.Artifact, outputPath string, jsonOutput, includeMetadata bool, log zerolog.Logger) error {
	if jsonOutput {
		return writeJSON(OCROutput{
			Text:               result.Text,
			FileName:           filepath.Base(input.Name),
			FileSize:           input.Size,
			ContentType:        input.ContentType,
			PageCount:          result.PageCount,
			Confidence:         result.Confidence,
			LanguageCodes:      result.LanguageCodes,
			ProcessedAt:        result.ProcessedAt,
			ProcessingDuration: result.ProcessingDuration.String(),
		}, outputPath, log)
	}

	var output strings.Builder
	if includeMetadata {
		output.WriteString(fmt.Sprintf("=== OCR Results for %s ===\n", input.Name))
		output.WriteString(fmt.Sprintf("File size: %d bytes\n", input.Size))
		if result.PageCount > 0 {
			output.WriteString(fmt.Sprintf("Pages processed: %d\n", result.PageCount))
		}
		if result.Confidence > 0 {
			output.WriteString(fmt.Sprintf("Confidence: %.1f%%\n", result.Confidence*100))
		}
		if len(result.LanguageCodes) > 0 {
			output.WriteString(fmt.Sprintf("Languages: %s\n", strings.Join(result.LanguageCodes, ", ")))
		}
		output.WriteString(fmt.Sprintf("Processing time: %v\n", result.ProcessingDuration))
		output.WriteString(fmt.Sprintf("Processed at: %s\n", result.ProcessedAt.Format(time.RFC3339)))
		output.WriteString("\n=== Extracted Text ===\n\n")
	}
	output.WriteString(result.Text)
	output.WriteString("\n")

	return writeOutput([]byte(output.String()), outputPath, log)
}
