package translation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v3"
	"translator/internal/logger"
)

// GoogleTextTranslator calls Cloud Translation v3 translateText.
type GoogleTextTranslator struct {
	service *translate.Service
	parent  string
	log     zerolog.Logger
}

// NewGoogleTextTranslator creates the adapter for projectID. Text requests
// are served from the global location.
func NewGoogleTextTranslator(ctx context.Context, projectID string, opts ...option.ClientOption) (*GoogleTextTranslator, error) {
	const op = "NewGoogleTextTranslator"

	if projectID == "" {
		return nil, NewTranslationError(op, ErrInvalidConfiguration, "project ID is required")
	}
	service, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, WrapTranslationError(op, err, "failed to create Cloud Translation client")
	}

	return &GoogleTextTranslator{
		service: service,
		parent:  fmt.Sprintf("projects/%s/locations/global", projectID),
		log:     logger.WithComponent("google-text-translation"),
	}, nil
}

// Translate implements TextTranslator.
func (g *GoogleTextTranslator) Translate(ctx context.Context, text, source, target string) (*TextResult, error) {
	const op = "Translate"

	if err := validateText(text, source, target); err != nil {
		return nil, NewTranslationError(op, err, "invalid text request")
	}
	target = NormalizeLanguage(target)

	req := &translate.TranslateTextRequest{
		Contents:           []string{text},
		TargetLanguageCode: target,
		MimeType:           "text/plain",
	}
	if src := NormalizeLanguage(source); src != AutoDetect {
		req.SourceLanguageCode = src
	}

	resp, err := g.service.Projects.Locations.TranslateText(g.parent, req).Context(ctx).Do()
	if err != nil {
		return nil, WrapTranslationError(op, err, "text translation request failed")
	}
	if len(resp.Translations) == 0 {
		return nil, NewTranslationError(op, ErrEmptyTranslation, "no translations in response")
	}

	first := resp.Translations[0]
	result := &TextResult{
		Text:             first.TranslatedText,
		DetectedLanguage: first.DetectedLanguageCode,
		TargetLanguage:   target,
		Provider:         "google",
	}
	if result.DetectedLanguage == "" {
		result.DetectedLanguage = req.SourceLanguageCode
	}

	g.log.Debug().
		Str("detected_language", result.DetectedLanguage).
		Int("characters", len(text)).
		Msg("Text translated")

	return result, nil
}
