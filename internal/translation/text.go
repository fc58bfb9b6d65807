package translation

import (
	"context"
	"fmt"
	"strings"
)

// MaxTextLength bounds a single text translation request in characters.
const MaxTextLength = 50000

// TextResult is a synchronous text translation.
type TextResult struct {
	Text             string  `json:"text"`
	DetectedLanguage string  `json:"detected_language,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	TargetLanguage   string  `json:"target_language"`
	Provider         string  `json:"provider"`
}

// TextTranslator translates short text synchronously.
type TextTranslator interface {
	// Translate converts text into target. An empty or "auto" source asks the
	// provider to detect the language.
	Translate(ctx context.Context, text, source, target string) (*TextResult, error)
}

func validateText(text, source, target string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: text is empty", ErrInvalidRequest)
	}
	if n := len([]rune(text)); n > MaxTextLength {
		return fmt.Errorf("%w: text has %d characters, limit is %d", ErrInvalidRequest, n, MaxTextLength)
	}
	return ValidateLanguages(source, target)
}
