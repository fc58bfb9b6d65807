package translation

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"translator/internal/logger"
	"translator/internal/rest"
)

// DefaultAzureTextEndpoint is the global Translator text endpoint.
const DefaultAzureTextEndpoint = "https://api.cognitive.microsofttranslator.com"

// AzureTextConfig configures the Azure text translation adapter.
type AzureTextConfig struct {
	Endpoint   string
	Key        string
	Region     string
	RateLimit  float64
	HTTPClient *http.Client
}

// AzureTextTranslator calls the Translator v3 text API.
type AzureTextTranslator struct {
	endpoint string
	client   *rest.Client
	log      zerolog.Logger
}

type azureTextResponse struct {
	DetectedLanguage *struct {
		Language string  `json:"language"`
		Score    float64 `json:"score"`
	} `json:"detectedLanguage"`
	Translations []struct {
		Text string `json:"text"`
		To   string `json:"to"`
	} `json:"translations"`
}

// NewAzureTextTranslator creates the adapter.
func NewAzureTextTranslator(config AzureTextConfig) (*AzureTextTranslator, error) {
	if config.Key == "" {
		return nil, NewTranslationError("NewAzureTextTranslator", ErrInvalidConfiguration, "key is required")
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultAzureTextEndpoint
	}

	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", config.Key)
	if config.Region != "" {
		headers.Set("Ocp-Apim-Subscription-Region", config.Region)
	}

	return &AzureTextTranslator{
		endpoint: strings.TrimRight(config.Endpoint, "/"),
		client:   rest.New(config.HTTPClient, config.RateLimit, headers),
		log:      logger.WithComponent("azure-text-translation"),
	}, nil
}

// Translate implements TextTranslator.
func (a *AzureTextTranslator) Translate(ctx context.Context, text, source, target string) (*TextResult, error) {
	const op = "Translate"

	if err := validateText(text, source, target); err != nil {
		return nil, NewTranslationError(op, err, "invalid text request")
	}
	target = NormalizeLanguage(target)

	query := url.Values{}
	query.Set("api-version", "3.0")
	query.Set("to", target)
	if src := NormalizeLanguage(source); src != AutoDetect {
		query.Set("from", src)
	}

	traceID := uuid.NewString()
	extra := http.Header{}
	extra.Set("X-ClientTraceId", traceID)

	var resp []azureTextResponse
	body := []map[string]string{{"Text": text}}
	if _, err := a.client.Do(ctx, http.MethodPost, a.endpoint+"/translate?"+query.Encode(), body, &resp, extra); err != nil {
		a.log.Error().Err(err).Str("trace_id", traceID).Msg("Text translation request failed")
		return nil, WrapTranslationError(op, err, "text translation request failed")
	}

	if len(resp) == 0 || len(resp[0].Translations) == 0 {
		return nil, NewTranslationError(op, ErrEmptyTranslation, "no translations in response")
	}

	result := &TextResult{
		Text:           resp[0].Translations[0].Text,
		TargetLanguage: target,
		Provider:       "azure",
	}
	if d := resp[0].DetectedLanguage; d != nil {
		result.DetectedLanguage = d.Language
		result.Confidence = d.Score
	} else if src := NormalizeLanguage(source); src != AutoDetect {
		result.DetectedLanguage = src
	}

	a.log.Debug().
		Str("trace_id", traceID).
		Str("detected_language", result.DetectedLanguage).
		Int("characters", len(text)).
		Msg("Text translated")

	return result, nil
}
