// Package rest sends requests to the cognitive services REST endpoints used by
// the translation and OCR providers.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"translator/internal/logger"
	"translator/internal/poller"
)

const (
	maxErrorBody    = 64 * 1024
	maxResponseBody = 32 << 20
)

// APIError is a non-success HTTP answer from a provider REST endpoint.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Message)
}

// Client sends requests to one provider under a request rate limit.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	headers http.Header
}

// New builds a Client. A requestsPerSecond of zero disables the limit; headers
// are attached to every request.
func New(client *http.Client, requestsPerSecond float64, headers http.Header) *Client {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Client{
		http:    client,
		limiter: rate.NewLimiter(limit, burst),
		headers: headers,
	}
}

// Do sends body and decodes a 2xx answer into out. A []byte body goes out as
// application/octet-stream, anything else is encoded as JSON. A *json.RawMessage
// out receives the body untouched. Throttling and server errors come back as
// poller.TransientError so poll loops retry them.
func (c *Client) Do(ctx context.Context, method, url string, body, out interface{}, extra http.Header) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
		contentType = "application/octet-stream"
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for key, values := range extra {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp, poller.Transient(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := ParseAPIError(resp.StatusCode, data)
		logger.FromContext(ctx).Debug().
			Str("method", method).
			Int("status", resp.StatusCode).
			Str("code", apiErr.Code).
			Msg("Provider request failed")
		if poller.IsTransientStatusCode(resp.StatusCode) {
			return resp, poller.Transient(apiErr)
		}
		return resp, apiErr
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if raw, ok := out.(*json.RawMessage); ok {
			*raw = append((*raw)[:0], data...)
			return resp, nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

// ParseAPIError understands the {"error":{"code","message"}} envelope shared by
// the cognitive services endpoints and falls back to the raw body.
func ParseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var envelope struct {
		Error struct {
			Code    json.RawMessage `json:"code"`
			Message string          `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		var code string
		if json.Unmarshal(envelope.Error.Code, &code) == nil {
			apiErr.Code = code
		} else {
			apiErr.Code = string(envelope.Error.Code)
		}
		return apiErr
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	apiErr.Message = string(bytes.TrimSpace(body))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
