package translation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"translator/internal/poller"
	"translator/internal/rest"
)

func TestAzureTextTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		assert.Equal(t, "3.0", r.URL.Query().Get("api-version"))
		assert.Equal(t, "fr", r.URL.Query().Get("to"))
		assert.Empty(t, r.URL.Query().Get("from"))
		assert.Equal(t, "text-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "westeurope", r.Header.Get("Ocp-Apim-Subscription-Region"))
		_, err := uuid.Parse(r.Header.Get("X-ClientTraceId"))
		assert.NoError(t, err)

		var body []map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []map[string]string{{"Text": "Hello world"}}, body)

		_, _ = w.Write([]byte(`[{"detectedLanguage":{"language":"en","score":0.97},"translations":[{"text":"Bonjour le monde","to":"fr"}]}]`))
	}))
	defer server.Close()

	translator, err := NewAzureTextTranslator(AzureTextConfig{
		Endpoint:   server.URL,
		Key:        "text-key",
		Region:     "westeurope",
		HTTPClient: server.Client(),
	})
	require.NoError(t, err)
	translator.log = zerolog.Nop()

	result, err := translator.Translate(context.Background(), "Hello world", "auto", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour le monde", result.Text)
	assert.Equal(t, "en", result.DetectedLanguage)
	assert.InDelta(t, 0.97, result.Confidence, 1e-9)
	assert.Equal(t, "fr", result.TargetLanguage)
}

func TestAzureTextTranslateErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"error":{"code":400036,"message":"The target language is not valid."}}`))
	}))
	defer server.Close()

	translator, err := NewAzureTextTranslator(AzureTextConfig{Endpoint: server.URL, Key: "k", HTTPClient: server.Client()})
	require.NoError(t, err)
	translator.log = zerolog.Nop()

	_, err = translator.Translate(context.Background(), "Hello", "en", "fr")
	require.Error(t, err)
	var apiErr *rest.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "400036", apiErr.Code)
	assert.False(t, poller.IsTransient(err))

	status.Store(http.StatusTooManyRequests)
	_, err = translator.Translate(context.Background(), "Hello", "en", "fr")
	assert.True(t, poller.IsTransient(err))

	_, err = translator.Translate(context.Background(), "   ", "en", "fr")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = translator.Translate(context.Background(), strings.Repeat("a", MaxTextLength+1), "en", "fr")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestNewAzureTextTranslatorRequiresKey(t *testing.T) {
	_, err := NewAzureTextTranslator(AzureTextConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func chatCompletion(content string) string {
	payload, _ := json.Marshal(map[string]interface{}{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
	return string(payload)
}

func TestOpenAITextTranslateRetriesMalformedAnswer(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(chatCompletion("Sure! Here is the translation")))
			return
		}
		_, _ = w.Write([]byte(chatCompletion(`{"translation":"Hola mundo","detected_language":"EN","confidence":0.9}`)))
	}))
	defer server.Close()

	translator, err := NewOpenAITextTranslator(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)
	translator.log = zerolog.Nop()

	result, err := translator.Translate(context.Background(), "Hello world", "", "es")
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo", result.Text)
	assert.Equal(t, "en", result.DetectedLanguage)
	assert.Equal(t, "openai", result.Provider)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestOpenAITextTranslateGivesUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletion(`{"translation":""}`)))
	}))
	defer server.Close()

	translator, err := NewOpenAITextTranslator(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL + "/v1", MaxRetries: 3})
	require.NoError(t, err)
	translator.log = zerolog.Nop()

	_, err = translator.Translate(context.Background(), "Hello", "en", "es")
	assert.ErrorIs(t, err, ErrEmptyTranslation)
}

func TestSystemPromptNamesLanguages(t *testing.T) {
	prompt := systemPrompt("en", "ja")
	assert.Contains(t, prompt, "from English into Japanese")

	prompt = systemPrompt(AutoDetect, "fr")
	assert.Contains(t, prompt, "from the detected source language into French")
}
