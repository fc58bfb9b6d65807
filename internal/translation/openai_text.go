package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"translator/internal/logger"
)

// OpenAIConfig configures the chat-completion translator.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxRetries  int
	// BaseURL overrides the API endpoint, e.g. for a compatible proxy.
	BaseURL string
}

// OpenAITextTranslator translates text with a chat completion model.
type OpenAITextTranslator struct {
	client *openai.Client
	config OpenAIConfig
	log    zerolog.Logger
}

type openAITranslation struct {
	Translation      string  `json:"translation"`
	DetectedLanguage string  `json:"detected_language"`
	Confidence       float64 `json:"confidence"`
}

// NewOpenAITextTranslator creates the adapter.
func NewOpenAITextTranslator(config OpenAIConfig) (*OpenAITextTranslator, error) {
	if config.APIKey == "" {
		return nil, NewTranslationError("NewOpenAITextTranslator", ErrInvalidConfiguration, "API key is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	return &OpenAITextTranslator{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		log:    logger.WithComponent("openai-translation"),
	}, nil
}

// Translate implements TextTranslator.
func (o *OpenAITextTranslator) Translate(ctx context.Context, text, source, target string) (*TextResult, error) {
	const op = "Translate"

	if err := validateText(text, source, target); err != nil {
		return nil, NewTranslationError(op, err, "invalid text request")
	}
	target = NormalizeLanguage(target)
	source = NormalizeLanguage(source)

	o.log.Debug().
		Str("model", o.config.Model).
		Str("target_language", target).
		Int("characters", len(text)).
		Msg("Sending translation request")

	var lastErr error
	for attempt := 1; attempt <= o.config.MaxRetries; attempt++ {
		resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       o.config.Model,
			Temperature: o.config.Temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(source, target)},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, WrapTranslationError(op, ctx.Err(), "translation canceled")
			}
			lastErr = err
			o.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", o.config.MaxRetries).
				Msg("Chat completion failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = ErrEmptyTranslation
			continue
		}

		var parsed openAITranslation
		if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
			lastErr = fmt.Errorf("failed to parse model response: %w", err)
			o.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Msg("Model answered with malformed JSON, retrying")
			continue
		}
		if strings.TrimSpace(parsed.Translation) == "" {
			lastErr = ErrEmptyTranslation
			continue
		}

		result := &TextResult{
			Text:             parsed.Translation,
			DetectedLanguage: strings.ToLower(parsed.DetectedLanguage),
			Confidence:       parsed.Confidence,
			TargetLanguage:   target,
			Provider:         "openai",
		}
		if source != AutoDetect {
			result.DetectedLanguage = source
		}
		return result, nil
	}

	return nil, WrapTranslationError(op, lastErr, fmt.Sprintf("no usable answer after %d attempts", o.config.MaxRetries))
}

func systemPrompt(source, target string) string {
	from := "the detected source language"
	if name, ok := SupportedLanguages[source]; ok {
		from = name
	}
	to := SupportedLanguages[target]

	return fmt.Sprintf(`You are a professional translator. Translate the user's text from %s into %s.
Keep line breaks, numbers and proper nouns. Do not add explanations.
Answer with a JSON object: {"translation": string, "detected_language": ISO 639-1 code, "confidence": number between 0 and 1}.`, from, to)
}
