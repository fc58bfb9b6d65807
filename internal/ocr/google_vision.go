package ocr

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"translator/internal/logger"
)

// GoogleVisionService implements Service using Google Cloud Vision document
// text detection. Images go through BatchAnnotateImages, PDF and TIFF files
// through BatchAnnotateFiles.
type GoogleVisionService struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewGoogleVisionService creates a Vision client. Without credential options
// the client falls back to application default credentials.
func NewGoogleVisionService(ctx context.Context, opts ...option.ClientOption) (*GoogleVisionService, error) {
	const op = "NewGoogleVisionService"

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		if len(opts) == 0 {
			return nil, WrapOCRError(op, ErrMissingCredentials, err.Error())
		}
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return NewGoogleVisionServiceWithClient(client), nil
}

// NewGoogleVisionServiceWithClient creates a service with an explicit client (for testing).
func NewGoogleVisionServiceWithClient(client *vision.ImageAnnotatorClient) *GoogleVisionService {
	return &GoogleVisionService{
		client: client,
		log:    logger.WithComponent("google-vision"),
	}
}

// ExtractText implements Service.
func (g *GoogleVisionService) ExtractText(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	const op = "ExtractText"
	startTime := time.Now()

	mimeType, err := checkInput(op, data, mimeType, true)
	if err != nil {
		return nil, err
	}

	var result *Result
	if mimeType == MimePDF || mimeType == MimeTIFF {
		result, err = g.annotateFile(ctx, data, mimeType)
	} else {
		result, err = g.annotateImage(ctx, data)
	}
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to process Vision API response")
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	g.log.Debug().
		Str("mime_type", mimeType).
		Int("pages", result.PageCount).
		Int("characters", len(result.Text)).
		Dur("duration", result.ProcessingDuration).
		Msg("Text detected")

	return result, nil
}

func (g *GoogleVisionService) annotateImage(ctx context.Context, data []byte) (*Result, error) {
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: Vision API call failed: %w", ErrOCRFailed, err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}
	return processImageResponses(resp.Responses)
}

func (g *GoogleVisionService) annotateFile(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  data,
					MimeType: mimeType,
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: Vision API call failed: %w", ErrOCRFailed, err)
	}
	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("%w: no response from Vision API", ErrOCRFailed)
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, fmt.Errorf("%w: Vision API error: %s", ErrOCRFailed, fileResp.Error.Message)
	}
	if len(fileResp.Responses) > MaxPagesSync {
		return nil, fmt.Errorf("%w: document has %d pages", ErrTooManyPages, len(fileResp.Responses))
	}
	return processImageResponses(fileResp.Responses)
}

// processImageResponses merges per-page annotations into one Result. Pages
// after the first are separated by a page marker.
func processImageResponses(pages []*visionpb.AnnotateImageResponse) (*Result, error) {
	if len(pages) == 0 {
		return nil, ErrEmptyDocument
	}

	var allText strings.Builder
	var confidenceSum float32
	var confidenceCount int
	languageSet := make(map[string]struct{})

	for pageIdx, page := range pages {
		if page.Error != nil {
			return nil, fmt.Errorf("%w: error processing page %d: %s", ErrOCRFailed, pageIdx+1, page.Error.Message)
		}
		annotation := page.FullTextAnnotation
		if annotation == nil {
			continue
		}

		if pageIdx > 0 {
			fmt.Fprintf(&allText, "\n\n--- Page %d ---\n\n", pageIdx+1)
		}
		allText.WriteString(annotation.Text)

		for _, p := range annotation.Pages {
			if p.Confidence > 0 {
				confidenceSum += p.Confidence
				confidenceCount++
			}
		}
		collectVisionLanguages(annotation, languageSet)
	}

	text := allText.String()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	var avgConfidence float32
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float32(confidenceCount)
	}

	return &Result{
		Text:          text,
		PageCount:     len(pages),
		Confidence:    avgConfidence,
		LanguageCodes: sortedKeys(languageSet),
	}, nil
}

func collectVisionLanguages(annotation *visionpb.TextAnnotation, set map[string]struct{}) {
	add := func(property *visionpb.TextAnnotation_TextProperty) {
		if property == nil {
			return
		}
		for _, lang := range property.DetectedLanguages {
			if lang.LanguageCode != "" {
				set[lang.LanguageCode] = struct{}{}
			}
		}
	}

	for _, page := range annotation.Pages {
		add(page.Property)
		for _, block := range page.Blocks {
			add(block.Property)
			for _, paragraph := range block.Paragraphs {
				add(paragraph.Property)
				for _, word := range paragraph.Words {
					add(word.Property)
				}
			}
		}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close closes the underlying Vision client.
func (g *GoogleVisionService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
