package translation

import (
	"fmt"
	"sort"
	"strings"
)

// AutoDetect lets the provider detect the source language.
const AutoDetect = "auto"

// SupportedLanguages maps language codes to display names.
var SupportedLanguages = map[string]string{
	"ar": "Arabic",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fi": "Finnish",
	"fr": "French",
	"ga": "Irish",
	"hi": "Hindi",
	"hu": "Hungarian",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"sv": "Swedish",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

// LanguageCodes returns the supported codes in sorted order.
func LanguageCodes() []string {
	codes := make([]string, 0, len(SupportedLanguages))
	for code := range SupportedLanguages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// NormalizeLanguage lower-cases a code and maps "" to AutoDetect.
func NormalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return AutoDetect
	}
	return code
}

// ValidateLanguages checks a source/target pair. The source may be empty or
// "auto"; the target must be a concrete supported language.
func ValidateLanguages(source, target string) error {
	source = NormalizeLanguage(source)
	target = NormalizeLanguage(target)

	if target == AutoDetect {
		return fmt.Errorf("%w: target language is required", ErrInvalidRequest)
	}
	if _, ok := SupportedLanguages[target]; !ok {
		return fmt.Errorf("%w: target %q", ErrUnsupportedLanguage, target)
	}
	if source == AutoDetect {
		return nil
	}
	if _, ok := SupportedLanguages[source]; !ok {
		return fmt.Errorf("%w: source %q", ErrUnsupportedLanguage, source)
	}
	if source == target {
		return fmt.Errorf("%w: source and target are both %q", ErrInvalidRequest, source)
	}
	return nil
}
