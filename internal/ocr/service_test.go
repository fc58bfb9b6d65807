package ocr

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"translator/internal/poller"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeService struct {
	name     string
	mimeType string
}

func (f *fakeService) ExtractText(_ context.Context, _ []byte, mimeType string) (*Result, error) {
	f.mimeType = mimeType
	return &Result{Text: f.name, PageCount: 1}, nil
}

func TestRouterDispatchesByMIME(t *testing.T) {
	images := &fakeService{name: "images"}
	documents := &fakeService{name: "documents"}
	router := &Router{Images: images, Documents: documents}

	result, err := router.ExtractText(context.Background(), pngHeader, "")
	require.NoError(t, err)
	assert.Equal(t, "images", result.Text)
	assert.Equal(t, "image/png", images.mimeType)

	result, err = router.ExtractText(context.Background(), []byte("%PDF-1.7\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "documents", result.Text)
	assert.Equal(t, MimePDF, documents.mimeType)

	imagesOnly := &Router{Images: images}
	result, err = imagesOnly.ExtractText(context.Background(), []byte("%PDF-1.7\n"), MimePDF)
	require.NoError(t, err)
	assert.Equal(t, "images", result.Text)

	_, err = (&Router{}).ExtractText(context.Background(), pngHeader, "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCheckInput(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		mimeType string
		allowPDF bool
		want     string
		err      error
	}{
		{"sniffed png", pngHeader, "", false, "image/png", nil},
		{"declared jpeg with params", []byte{0xFF, 0xD8, 0xFF}, "Image/JPEG; q=1", false, "image/jpeg", nil},
		{"octet stream is sniffed", pngHeader, "application/octet-stream", false, "image/png", nil},
		{"pdf allowed", []byte("%PDF-1.4"), "", true, MimePDF, nil},
		{"pdf refused", []byte("%PDF-1.4"), "", false, "", ErrUnsupportedFormat},
		{"plain text", []byte("hello"), "", true, "", ErrUnsupportedFormat},
		{"empty", nil, "image/png", true, "", ErrEmptyDocument},
		{"too large", make([]byte, MaxFileSizeBytes+1), "image/png", true, "", ErrDocumentTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checkInput("test", tt.data, tt.mimeType, tt.allowPDF)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func visionPage(text string, confidence float32, languages ...string) *visionpb.AnnotateImageResponse {
	var detected []*visionpb.TextAnnotation_DetectedLanguage
	for _, code := range languages {
		detected = append(detected, &visionpb.TextAnnotation_DetectedLanguage{LanguageCode: code, Confidence: 0.9})
	}
	return &visionpb.AnnotateImageResponse{
		FullTextAnnotation: &visionpb.TextAnnotation{
			Text: text,
			Pages: []*visionpb.Page{{
				Confidence: confidence,
				Property:   &visionpb.TextAnnotation_TextProperty{DetectedLanguages: detected},
				Blocks: []*visionpb.Block{{
					Paragraphs: []*visionpb.Paragraph{{
						Words: []*visionpb.Word{{
							Property: &visionpb.TextAnnotation_TextProperty{DetectedLanguages: detected},
						}},
					}},
				}},
			}},
		},
	}
}

func TestProcessImageResponses(t *testing.T) {
	result, err := processImageResponses([]*visionpb.AnnotateImageResponse{
		visionPage("Bonjour", 0.8, "fr"),
		visionPage("Hello", 0.6, "en", "fr"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Bonjour\n\n--- Page 2 ---\n\nHello", result.Text)
	assert.Equal(t, 2, result.PageCount)
	assert.InDelta(t, 0.7, result.Confidence, 1e-6)
	assert.Equal(t, []string{"en", "fr"}, result.LanguageCodes)
}

func TestProcessImageResponsesErrors(t *testing.T) {
	_, err := processImageResponses(nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = processImageResponses([]*visionpb.AnnotateImageResponse{{}})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = processImageResponses([]*visionpb.AnnotateImageResponse{visionPage("  \n ", 0.5)})
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = processImageResponses([]*visionpb.AnnotateImageResponse{
		{Error: &rpcstatus.Status{Code: int32(codes.InvalidArgument), Message: "Bad image data."}},
	})
	assert.ErrorIs(t, err, ErrOCRFailed)
	assert.Contains(t, err.Error(), "Bad image data.")
}

func TestDocumentResult(t *testing.T) {
	doc := &documentaipb.Document{
		Text: "Rechnung\nSumme 42,00 EUR",
		Pages: []*documentaipb.Document_Page{
			{
				Layout:            &documentaipb.Document_Page_Layout{Confidence: 0.9},
				DetectedLanguages: []*documentaipb.Document_Page_DetectedLanguage{{LanguageCode: "de"}},
			},
			{
				Layout: &documentaipb.Document_Page_Layout{Confidence: 0.7},
			},
		},
	}

	result, err := documentResult(doc)
	require.NoError(t, err)
	assert.Equal(t, doc.Text, result.Text)
	assert.Equal(t, 2, result.PageCount)
	assert.InDelta(t, 0.8, result.Confidence, 1e-6)
	assert.Equal(t, []string{"de"}, result.LanguageCodes)

	_, err = documentResult(&documentaipb.Document{Text: " "})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestDocumentAIErrorMapping(t *testing.T) {
	svc := NewDocumentAIServiceWithClient(DocumentAIConfig{ProjectID: "p", Location: "eu", ProcessorID: "ocr-1"}, nil)
	assert.Equal(t, "projects/p/locations/eu/processors/ocr-1", svc.processorName())

	tests := []struct {
		err  error
		want error
	}{
		{status.Error(codes.PermissionDenied, "denied"), ErrMissingCredentials},
		{status.Error(codes.NotFound, "no such processor"), ErrInvalidConfiguration},
		{status.Error(codes.InvalidArgument, "bad document"), ErrUnsupportedFormat},
		{status.Error(codes.Unavailable, "try later"), ErrOCRFailed},
		{errors.New("boom"), nil},
	}
	for _, tt := range tests {
		err := svc.handleProcessingError("ExtractText", tt.err)
		var ocrErr *OCRError
		require.ErrorAs(t, err, &ocrErr)
		if tt.want != nil {
			assert.ErrorIs(t, err, tt.want)
		}
	}

	unavailable := svc.handleProcessingError("ExtractText", status.Error(codes.Unavailable, "try later"))
	assert.True(t, poller.IsTransient(unavailable))
}

func TestNewDocumentAIServiceRequiresProcessor(t *testing.T) {
	_, err := NewDocumentAIService(context.Background(), DocumentAIConfig{ProjectID: "p"})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("image/png"))
	assert.True(t, IsImage("IMAGE/TIFF"))
	assert.False(t, IsImage(MimePDF))
	assert.Equal(t, "text/plain", normalizeMIME(" Text/Plain ; charset=utf-8"))
}
