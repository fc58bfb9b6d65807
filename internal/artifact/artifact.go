// Package artifact checks uploaded documents and images before they are
// staged for translation.
//
// Inspect identifies the content type from the bytes, with the file extension
// as a tie-breaker for formats that share a container (plain text, zip), then
// applies the size limit of the artifact's kind and counts PDF pages.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

const (
	// MaxDocumentSize is the largest document a translation batch accepts (40MB).
	MaxDocumentSize = 40 * 1024 * 1024

	// MaxImageSize is the largest image OCR accepts (20MB).
	MaxImageSize = 20 * 1024 * 1024
)

// Kind tells documents (translated as files) from images (translated via OCR).
type Kind string

const (
	KindDocument Kind = "document"
	KindImage    Kind = "image"
)

var (
	// ErrEmpty is returned for zero-length input.
	ErrEmpty = errors.New("artifact is empty")

	// ErrTooLarge is returned when the input exceeds the limit of its kind.
	ErrTooLarge = errors.New("artifact exceeds the size limit")

	// ErrUnsupportedType is returned for content types no provider can translate.
	ErrUnsupportedType = errors.New("unsupported artifact type")

	// ErrCorrupt is returned when a PDF cannot be parsed.
	ErrCorrupt = errors.New("artifact is corrupt")
)

// Artifact is an inspected upload.
type Artifact struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Kind        Kind   `json:"kind"`
	Size        int64  `json:"size"`

	// Pages is the PDF page count, 1 for images and 0 when unknown.
	Pages int `json:"pages"`

	Data []byte `json:"-"`
}

// InspectError describes why an upload was refused.
type InspectError struct {
	Name    string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *InspectError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("artifact %q: %v: %s", e.Name, e.Err, e.Details)
	}
	return fmt.Sprintf("artifact %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *InspectError) Unwrap() error {
	return e.Err
}

var documentTypes = map[string]struct{}{
	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.oasis.opendocument.text":                                   {},
	"application/vnd.oasis.opendocument.spreadsheet":                            {},
	"application/vnd.oasis.opendocument.presentation":                           {},
	"application/vnd.ms-outlook":                                                {},
	"application/rtf":                                                           {},
	"text/rtf":                                                                  {},
	"application/x-xliff+xml":                                                   {},
	"text/html":                                                                 {},
	"text/plain":                                                                {},
	"text/markdown":                                                             {},
	"text/csv":                                                                  {},
	"text/tab-separated-values":                                                 {},
}

var imageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/bmp":  {},
	"image/gif":  {},
	"image/webp": {},
	"image/tiff": {},
}

// extensionTypes refine generic detections for formats without a reliable
// magic number.
var extensionTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".tab":      "text/tab-separated-values",
	".htm":      "text/html",
	".html":     "text/html",
	".msg":      "application/vnd.ms-outlook",
	".xlf":      "application/x-xliff+xml",
	".xliff":    "application/x-xliff+xml",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx":     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx":     "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// genericTypes are detections the extension may override.
var genericTypes = map[string]struct{}{
	"application/octet-stream":  {},
	"application/zip":           {},
	"application/x-ole-storage": {},
	"text/plain":                {},
	"text/xml":                  {},
	"application/xml":           {},
}

// Inspect identifies data and checks it against the limits of its kind.
// declaredType is only consulted when neither the bytes nor the name settle
// the type.
func Inspect(name string, data []byte, declaredType string) (*Artifact, error) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}
	if len(data) == 0 {
		return nil, &InspectError{Name: name, Err: ErrEmpty}
	}

	contentType := DetectType(name, data, declaredType)

	a := &Artifact{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
	}

	limit := int64(MaxDocumentSize)
	switch {
	case isType(imageTypes, contentType):
		a.Kind = KindImage
		a.Pages = 1
		limit = MaxImageSize
	case isType(documentTypes, contentType):
		a.Kind = KindDocument
	default:
		return nil, &InspectError{Name: name, Err: ErrUnsupportedType, Details: contentType}
	}

	if a.Size > limit {
		return nil, &InspectError{Name: name, Err: ErrTooLarge, Details: fmt.Sprintf("%d bytes, limit %d", a.Size, limit)}
	}

	if contentType == "application/pdf" {
		pages, err := CountPDFPages(data)
		if err != nil {
			return nil, &InspectError{Name: name, Err: ErrCorrupt, Details: err.Error()}
		}
		a.Pages = pages
	}

	return a, nil
}

// Open reads and inspects a local file.
func Open(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Inspect(filepath.Base(path), data, "")
}

// DetectType returns the content type of data without parameters.
func DetectType(name string, data []byte, declaredType string) string {
	detected := stripParams(mimetype.Detect(data).String())
	if _, generic := genericTypes[detected]; !generic {
		return detected
	}
	if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return byExt
	}
	if declared := stripParams(declaredType); declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return detected
}

// CountPDFPages parses the PDF cross-reference table and returns the page count.
func CountPDFPages(data []byte) (pages int, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	pages = reader.NumPage()
	if pages == 0 {
		return 0, errors.New("PDF has no pages")
	}
	return pages, nil
}

func isType(set map[string]struct{}, contentType string) bool {
	_, ok := set[contentType]
	return ok
}

func stripParams(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
