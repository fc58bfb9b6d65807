package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"translator/internal/logger"
	"translator/internal/poller"
	"translator/internal/rest"
)

// AzureReadAPIPath is the Read analyze route of Azure AI Vision v3.2.
const AzureReadAPIPath = "/vision/v3.2/read/analyze"

// AzureReadConfig configures the Azure AI Vision Read backend.
type AzureReadConfig struct {
	Endpoint   string
	Key        string
	RateLimit  float64
	HTTPClient *http.Client

	// Poll bounds the wait for the asynchronous analysis. The zero value
	// uses one-second checks for at most two minutes.
	Poll poller.Config
}

// AzureReadService implements Service with the asynchronous Read API: the
// image is submitted once and the analysis is polled until it finishes.
type AzureReadService struct {
	endpoint *url.URL
	client   *rest.Client
	poll     poller.Config
	log      zerolog.Logger
}

type azureReadResponse struct {
	Status        string `json:"status"`
	AnalyzeResult *struct {
		ReadResults []struct {
			Page     int    `json:"page"`
			Language string `json:"language"`
			Lines    []struct {
				Text     string `json:"text"`
				Language string `json:"language"`
				Words    []struct {
					Text       string  `json:"text"`
					Confidence float32 `json:"confidence"`
				} `json:"words"`
			} `json:"lines"`
		} `json:"readResults"`
	} `json:"analyzeResult"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAzureReadService validates config and builds the backend.
func NewAzureReadService(config AzureReadConfig) (*AzureReadService, error) {
	const op = "NewAzureReadService"

	if config.Endpoint == "" || config.Key == "" {
		return nil, NewOCRError(op, ErrInvalidConfiguration, "endpoint and key are required")
	}
	endpoint, err := url.Parse(strings.TrimRight(config.Endpoint, "/"))
	if err != nil || endpoint.Host == "" {
		return nil, NewOCRError(op, ErrInvalidConfiguration, fmt.Sprintf("invalid endpoint %q", config.Endpoint))
	}

	poll := config.Poll
	if poll.MaxWait <= 0 {
		poll.MaxWait = 2 * time.Minute
	}
	if poll.Interval <= 0 {
		poll.Interval = time.Second
	}

	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", config.Key)

	return &AzureReadService{
		endpoint: endpoint,
		client:   rest.New(config.HTTPClient, config.RateLimit, headers),
		poll:     poll,
		log:      logger.WithComponent("azure-read"),
	}, nil
}

// ExtractText implements Service.
func (a *AzureReadService) ExtractText(ctx context.Context, data []byte, mimeType string) (*Result, error) {
	const op = "ExtractText"
	startTime := time.Now()

	if _, err := checkInput(op, data, mimeType, true); err != nil {
		return nil, err
	}

	resp, err := a.client.Do(ctx, http.MethodPost, a.endpoint.String()+AzureReadAPIPath, data, nil, nil)
	if err != nil {
		return nil, NewOCRError(op, fmt.Errorf("%w: %w", ErrOCRFailed, err), "read request rejected")
	}
	operationURL := resp.Header.Get("Operation-Location")
	if operationURL == "" {
		return nil, NewOCRError(op, ErrOCRFailed, "no Operation-Location header")
	}
	if err := a.checkOperationURL(operationURL); err != nil {
		return nil, NewOCRError(op, err, operationURL)
	}

	a.log.Debug().
		Str("operation_id", operationURL).
		Int("bytes", len(data)).
		Msg("Read analysis submitted")

	final, err := poller.WaitForCompletion(ctx, func(ctx context.Context) (*poller.Operation, error) {
		return a.status(ctx, operationURL)
	},
		poller.WithConfig(a.poll),
		poller.WithLogger(a.log),
	)
	if err != nil {
		if errors.Is(err, poller.ErrJobFailed) || errors.Is(err, poller.ErrTimeout) {
			return nil, NewOCRError(op, fmt.Errorf("%w: %w", ErrOCRFailed, err), "read analysis did not complete")
		}
		return nil, WrapOCRError(op, err, "read analysis did not complete")
	}

	var body azureReadResponse
	if err := json.Unmarshal(final.Payload, &body); err != nil {
		return nil, NewOCRError(op, err, "malformed read result")
	}

	result, err := readResult(&body)
	if err != nil {
		return nil, WrapOCRError(op, err, "no text recognized")
	}
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	a.log.Debug().
		Str("operation_id", operationURL).
		Int("pages", result.PageCount).
		Int("characters", len(result.Text)).
		Dur("duration", result.ProcessingDuration).
		Msg("Read analysis completed")

	return result, nil
}

// status reads one snapshot of the analysis. The Read API reports lower-case
// states, which are mapped onto the poller vocabulary.
func (a *AzureReadService) status(ctx context.Context, operationURL string) (*poller.Operation, error) {
	var raw json.RawMessage
	if _, err := a.client.Do(ctx, http.MethodGet, operationURL, nil, &raw, nil); err != nil {
		return nil, err
	}

	var body azureReadResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("malformed read status: %w", err)
	}

	op := &poller.Operation{
		ID:      operationURL,
		Status:  normalizeReadStatus(body.Status),
		Payload: raw,
	}
	if op.Status == poller.StatusFailed {
		op.Error = "text recognition failed"
		if body.Error != nil && body.Error.Message != "" {
			op.Error = body.Error.Message
		}
	}
	return op, nil
}

func (a *AzureReadService) checkOperationURL(operationURL string) error {
	u, err := url.Parse(operationURL)
	if err != nil {
		return err
	}
	if !strings.EqualFold(u.Host, a.endpoint.Host) || u.Scheme != a.endpoint.Scheme {
		return fmt.Errorf("%w: operation does not belong to the configured endpoint", ErrOCRFailed)
	}
	return nil
}

var readStatuses = []poller.Status{
	poller.StatusNotStarted,
	poller.StatusRunning,
	poller.StatusSucceeded,
	poller.StatusFailed,
	poller.StatusCancelled,
	poller.StatusCancelling,
}

func normalizeReadStatus(s string) poller.Status {
	for _, known := range readStatuses {
		if strings.EqualFold(s, string(known)) {
			return known
		}
	}
	return poller.Status(s)
}

// readResult joins the recognized lines of all pages in reading order.
func readResult(body *azureReadResponse) (*Result, error) {
	if body.AnalyzeResult == nil || len(body.AnalyzeResult.ReadResults) == 0 {
		return nil, ErrEmptyDocument
	}

	var lines []string
	var confidenceSum float32
	var confidenceCount int
	languageSet := make(map[string]struct{})

	for _, page := range body.AnalyzeResult.ReadResults {
		if page.Language != "" {
			languageSet[page.Language] = struct{}{}
		}
		for _, line := range page.Lines {
			lines = append(lines, line.Text)
			if line.Language != "" {
				languageSet[line.Language] = struct{}{}
			}
			for _, word := range line.Words {
				if word.Confidence > 0 {
					confidenceSum += word.Confidence
					confidenceCount++
				}
			}
		}
	}

	text := strings.Join(lines, "\n")
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	var avgConfidence float32
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float32(confidenceCount)
	}

	return &Result{
		Text:          text,
		PageCount:     len(body.AnalyzeResult.ReadResults),
		Confidence:    avgConfidence,
		LanguageCodes: sortedKeys(languageSet),
	}, nil
}
