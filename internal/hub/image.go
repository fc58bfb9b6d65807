package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"translator/internal/artifact"
	"translator/internal/ocr"
	"translator/internal/translation"
	"translator/pkg/models"
)

// NoTextMessage is reported as the translation of an image without readable text.
const NoTextMessage = "No text detected in the image"

// TranslateImage recognizes the text in an image and translates it into
// targetLang. An image without text is not an error: the result carries
// NoTextMessage and the language "unknown".
func (h *Hub) TranslateImage(ctx context.Context, a *artifact.Artifact, targetLang string) (*models.ImageTranslation, error) {
	const op = "TranslateImage"

	if err := h.requireImages(op); err != nil {
		return nil, err
	}
	if a == nil || len(a.Data) == 0 {
		return nil, &HubError{Op: op, Err: ErrInvalidArtifact, Details: "no image data"}
	}
	if a.Kind != artifact.KindImage {
		return nil, &HubError{Op: op, Err: ErrInvalidArtifact, Details: fmt.Sprintf("%s is a %s, use document translation", a.Name, a.Kind)}
	}
	if err := translation.ValidateLanguages("", targetLang); err != nil {
		return nil, WrapHubError(op, err, "invalid target language")
	}
	targetLang = translation.NormalizeLanguage(targetLang)

	recognized, err := h.deps.OCR.ExtractText(ctx, a.Data, a.ContentType)
	if err != nil && !errors.Is(err, ocr.ErrEmptyDocument) {
		return nil, WrapHubError(op, err, "text recognition failed")
	}
	if err != nil || recognized == nil || strings.TrimSpace(recognized.Text) == "" {
		h.log.Info().
			Str("image", a.Name).
			Msg("No text detected in image")
		return &models.ImageTranslation{
			TranslatedText: NoTextMessage,
			Language:       "unknown",
			TargetLanguage: targetLang,
			NoTextDetected: true,
		}, nil
	}

	text := strings.TrimSpace(recognized.Text)
	translated, err := h.deps.Text.Translate(ctx, text, translation.AutoDetect, targetLang)
	if err != nil {
		return nil, WrapHubError(op, err, "text translation failed")
	}

	language := translated.DetectedLanguage
	if language == "" && len(recognized.LanguageCodes) > 0 {
		language = recognized.LanguageCodes[0]
	}
	if language == "" {
		language = "unknown"
	}

	h.log.Info().
		Str("image", a.Name).
		Int("characters", len([]rune(text))).
		Str("language", language).
		Str("target", targetLang).
		Str("provider", translated.Provider).
		Msg("Image text translated")

	return &models.ImageTranslation{
		OriginalText:   text,
		TranslatedText: translated.Text,
		Language:       language,
		TargetLanguage: targetLang,
		Confidence:     translated.Confidence,
		OCRConfidence:  recognized.Confidence,
		Provider:       translated.Provider,
	}, nil
}
