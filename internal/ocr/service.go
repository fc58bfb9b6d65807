// Package ocr extracts text from images and scanned documents so that image
// translation can hand the text to a text translator.
//
// Three backends are available:
//   - AzureReadService: Azure AI Vision Read (v3.2), asynchronous, waits for the
//     analysis through the poller
//   - GoogleVisionService: Google Cloud Vision document text detection, synchronous
//   - DocumentAIService: Google Document AI OCR processor for PDFs
//
// Limits:
//   - Maximum input size: 20MB
//   - Google Vision processes at most 5 pages of an inline PDF or TIFF
//
// Router picks a backend by MIME type so PDFs and images can go to different
// services behind one Service.
package ocr

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	// MaxFileSizeBytes is the largest input accepted by any backend (20MB).
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the page limit of synchronous Vision file annotation.
	MaxPagesSync = 5

	MimePDF  = "application/pdf"
	MimeTIFF = "image/tiff"
)

// Service extracts text from a single image or document.
type Service interface {
	// ExtractText returns the recognized text. An empty mimeType is sniffed
	// from the data.
	ExtractText(ctx context.Context, data []byte, mimeType string) (*Result, error)
}

// Result contains recognized text with metadata.
type Result struct {
	// Text is the recognized text of all pages in reading order.
	Text string `json:"text"`

	// PageCount is the number of pages that were processed.
	PageCount int `json:"page_count"`

	// Confidence is the average recognition confidence (0.0 to 1.0), zero when
	// the backend reports none.
	Confidence float32 `json:"confidence"`

	// LanguageCodes lists the languages the backend detected, sorted.
	LanguageCodes []string `json:"language_codes,omitempty"`

	ProcessedAt        time.Time     `json:"processed_at"`
	ProcessingDuration time.Duration `json:"processing_duration"`
}

// Router sends PDFs to Documents and everything else to Images. A nil
// Documents routes PDFs to Images too.
type Router struct {
	Images    Service
	Documents Service
}

// ExtractText implements Service.
func (r *Router) ExtractText(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	mimeType = resolveMIME(data, mimeType)
	if mimeType == MimePDF && r.Documents != nil {
		return r.Documents.ExtractText(ctx, data, mimeType)
	}
	if r.Images == nil {
		return nil, NewOCRError("ExtractText", ErrUnsupportedFormat, "no OCR backend for "+mimeType)
	}
	return r.Images.ExtractText(ctx, data, mimeType)
}

// imageTypes are the raster formats every backend accepts.
var imageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/bmp":  {},
	"image/gif":  {},
	"image/webp": {},
	MimeTIFF:     {},
}

// IsImage reports whether mimeType is a supported raster image type.
func IsImage(mimeType string) bool {
	_, ok := imageTypes[normalizeMIME(mimeType)]
	return ok
}

func normalizeMIME(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func resolveMIME(data []byte, mimeType string) string {
	mimeType = normalizeMIME(mimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeMIME(http.DetectContentType(data))
	}
	return mimeType
}

// checkInput applies the limits shared by all backends and returns the
// resolved MIME type.
func checkInput(op string, data []byte, mimeType string, allowPDF bool) (string, error) {
	if len(data) == 0 {
		return "", NewOCRError(op, ErrEmptyDocument, "no input data")
	}
	if len(data) > MaxFileSizeBytes {
		return "", NewOCRError(op, ErrDocumentTooLarge, formatSize(len(data)))
	}
	mimeType = resolveMIME(data, mimeType)
	if IsImage(mimeType) || (allowPDF && mimeType == MimePDF) {
		return mimeType, nil
	}
	return "", NewOCRError(op, ErrUnsupportedFormat, mimeType)
}
