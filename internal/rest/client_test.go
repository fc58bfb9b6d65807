package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"translator/internal/poller"
)

func TestDoSendsJSONAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "trace-1", r.Header.Get("X-ClientTraceId"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ping", body["message"])
		_, _ = w.Write([]byte(`{"message":"pong"}`))
	}))
	defer server.Close()

	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", "secret")
	client := New(server.Client(), 0, headers)

	extra := http.Header{}
	extra.Set("X-ClientTraceId", "trace-1")

	var out map[string]string
	_, err := client.Do(context.Background(), http.MethodPost, server.URL, map[string]string{"message": "ping"}, &out, extra)
	require.NoError(t, err)
	assert.Equal(t, "pong", out["message"])
}

func TestDoSendsRawBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data)
		w.Header().Set("Operation-Location", "https://example.com/op/1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	resp, err := New(server.Client(), 5, nil).Do(context.Background(), http.MethodPost, server.URL, []byte{0x89, 'P', 'N', 'G'}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/op/1", resp.Header.Get("Operation-Location"))
}

func TestDoKeepsRawMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"Running"}`))
	}))
	defer server.Close()

	var raw json.RawMessage
	_, err := New(server.Client(), 0, nil).Do(context.Background(), http.MethodGet, server.URL, nil, &raw, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Running"}`, string(raw))
}

func TestDoClassifiesErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		code      string
		message   string
	}{
		{"bad request", http.StatusBadRequest, `{"error":{"code":"InvalidRequest","message":"nope"}}`, false, "InvalidRequest", "nope"},
		{"numeric code", http.StatusBadRequest, `{"error":{"code":400036,"message":"bad target"}}`, false, "400036", "bad target"},
		{"throttled", http.StatusTooManyRequests, `{"error":{"code":"429","message":"slow down"}}`, true, "429", "slow down"},
		{"server error", http.StatusBadGateway, `upstream exploded`, true, "", "upstream exploded"},
		{"empty body", http.StatusForbidden, ``, false, "", "Forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := New(server.Client(), 0, nil).Do(context.Background(), http.MethodGet, server.URL, nil, nil, nil)
			require.Error(t, err)
			assert.Equal(t, tt.transient, poller.IsTransient(err))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestDoHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New(nil, 1, nil)
	_, err := client.Do(ctx, http.MethodGet, "http://127.0.0.1:1", nil, nil, nil)
	assert.Error(t, err)
}
