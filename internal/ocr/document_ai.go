package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"translator/internal/logger"
)

// DocumentAIConfig names the Document AI OCR processor.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

// DocumentAIService implements Service with a Document AI OCR processor. It
// reads PDFs and the image formats the processor accepts.
type DocumentAIService struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIService creates a processor client on the regional endpoint of
// config.Location.
func NewDocumentAIService(ctx context.Context, config DocumentAIConfig, opts ...option.ClientOption) (*DocumentAIService, error) {
	const op = "NewDocumentAIService"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, NewOCRError(op, ErrInvalidConfiguration, "project and processor ID are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	clientOptions := opts
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append([]option.ClientOption{option.WithEndpoint(endpoint)}, opts...)
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, err.Error())
		}
		return nil, WrapOCRError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewDocumentAIServiceWithClient(config, client), nil
}

// NewDocumentAIServiceWithClient creates a service with an explicit client (for testing).
func NewDocumentAIServiceWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) *DocumentAIService {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &DocumentAIService{
		client: client,
		config: config,
		log:    logger.WithComponent("document-ai"),
	}
}

// ExtractText implements Service.
func (d *DocumentAIService) ExtractText(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	const op = "ExtractText"
	startTime := time.Now()

	mimeType, err := checkInput(op, data, mimeType, true)
	if err != nil {
		return nil, err
	}

	processCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: d.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	}

	resp, err := d.client.ProcessDocument(processCtx, req)
	if err != nil {
		return nil, d.handleProcessingError(op, err)
	}
	if resp.Document == nil {
		return nil, NewOCRError(op, ErrOCRFailed, "no document in response")
	}

	result, err := documentResult(resp.Document)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to read Document AI response")
	}
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	d.log.Debug().
		Str("processor", d.config.ProcessorID).
		Int("pages", result.PageCount).
		Int("characters", len(result.Text)).
		Dur("duration", result.ProcessingDuration).
		Msg("Document processed")

	return result, nil
}

func (d *DocumentAIService) processorName() string {
	if d.config.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			d.config.ProjectID, d.config.Location, d.config.ProcessorID, d.config.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

// handleProcessingError maps gRPC failures of ProcessDocument to OCR errors.
func (d *DocumentAIService) handleProcessingError(op string, err error) error {
	s, ok := status.FromError(err)
	if !ok {
		return WrapOCRError(op, err, "Document AI call failed")
	}

	switch s.Code() {
	case codes.PermissionDenied, codes.Unauthenticated:
		return NewOCRError(op, ErrMissingCredentials, s.Message())
	case codes.NotFound:
		return NewOCRError(op, ErrInvalidConfiguration, fmt.Sprintf("processor not found: %s", d.config.ProcessorID))
	case codes.InvalidArgument:
		return NewOCRError(op, ErrUnsupportedFormat, s.Message())
	default:
		// Keep the gRPC status in the chain so transient codes stay recognizable.
		return NewOCRError(op, fmt.Errorf("%w: %w", ErrOCRFailed, err), "Document AI call failed")
	}
}

// documentResult converts a processed document into a Result.
func documentResult(doc *documentaipb.Document) (*Result, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, ErrEmptyDocument
	}

	var confidenceSum float32
	var confidenceCount int
	languageSet := make(map[string]struct{})

	for _, page := range doc.Pages {
		if page.Layout != nil && page.Layout.Confidence > 0 {
			confidenceSum += page.Layout.Confidence
			confidenceCount++
		}
		for _, lang := range page.DetectedLanguages {
			if lang.LanguageCode != "" {
				languageSet[lang.LanguageCode] = struct{}{}
			}
		}
	}

	var avgConfidence float32
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float32(confidenceCount)
	}

	pageCount := len(doc.Pages)
	if pageCount == 0 {
		pageCount = 1
	}

	return &Result{
		Text:          doc.Text,
		PageCount:     pageCount,
		Confidence:    avgConfidence,
		LanguageCodes: sortedKeys(languageSet),
	}, nil
}

// Close closes the underlying Document AI client.
func (d *DocumentAIService) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
