package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"translator/internal/logger"
	"translator/internal/poller"
	"translator/internal/rest"
	"translator/internal/sas"
)

const (
	// DefaultAzureDocumentAPIVersion is the document translation REST version.
	DefaultAzureDocumentAPIVersion = "2024-05-01"

	// StatusValidationFailed is the Azure status for batches rejected before translation.
	StatusValidationFailed poller.Status = "ValidationFailed"
)

// AzureDocumentConfig configures the Azure document translation adapter.
type AzureDocumentConfig struct {
	Endpoint   string
	Key        string
	Region     string
	APIVersion string
	// GrantMinutes is how long the storage URLs handed to the service stay valid.
	GrantMinutes int
	// RateLimit caps requests per second against the endpoint.
	RateLimit  float64
	HTTPClient *http.Client
}

// AzureDocumentTranslator submits batch jobs to Azure AI Translator. Storage
// access is handed to the service as scoped URLs minted by the issuer.
type AzureDocumentTranslator struct {
	config   AzureDocumentConfig
	endpoint *url.URL
	issuer   *sas.Issuer
	client   *rest.Client
	log      zerolog.Logger
}

type azureBatchRequest struct {
	Inputs []azureBatchInput `json:"inputs"`
}

type azureBatchInput struct {
	StorageType string             `json:"storageType"`
	Source      azureBatchSource   `json:"source"`
	Targets     []azureBatchTarget `json:"targets"`
}

type azureBatchSource struct {
	SourceURL     string             `json:"sourceUrl"`
	StorageSource string             `json:"storageSource"`
	Language      string             `json:"language,omitempty"`
	Filter        *azureSourceFilter `json:"filter,omitempty"`
}

type azureSourceFilter struct {
	Prefix string `json:"prefix,omitempty"`
}

type azureBatchTarget struct {
	TargetURL     string          `json:"targetUrl"`
	StorageSource string          `json:"storageSource"`
	Language      string          `json:"language"`
	Glossaries    []azureGlossary `json:"glossaries,omitempty"`
}

type azureGlossary struct {
	GlossaryURL   string `json:"glossaryUrl"`
	Format        string `json:"format"`
	StorageSource string `json:"storageSource"`
}

// azureBatchStatus is the body returned when reading a batch.
type azureBatchStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		InnerError *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"innerError"`
	} `json:"error"`
	Summary struct {
		Total      int `json:"total"`
		Failed     int `json:"failed"`
		Success    int `json:"success"`
		InProgress int `json:"inProgress"`
		Cancelled  int `json:"cancelled"`
	} `json:"summary"`
}

// NewAzureDocumentTranslator validates config and builds the adapter.
func NewAzureDocumentTranslator(config AzureDocumentConfig, issuer *sas.Issuer) (*AzureDocumentTranslator, error) {
	const op = "NewAzureDocumentTranslator"

	if config.Endpoint == "" || config.Key == "" {
		return nil, NewTranslationError(op, ErrInvalidConfiguration, "endpoint and key are required")
	}
	if issuer == nil {
		return nil, NewTranslationError(op, ErrInvalidConfiguration, "storage issuer is required")
	}
	endpoint, err := url.Parse(strings.TrimRight(config.Endpoint, "/"))
	if err != nil || endpoint.Host == "" {
		return nil, NewTranslationError(op, ErrInvalidConfiguration, fmt.Sprintf("invalid endpoint %q", config.Endpoint))
	}
	if config.APIVersion == "" {
		config.APIVersion = DefaultAzureDocumentAPIVersion
	}
	if config.GrantMinutes <= 0 {
		config.GrantMinutes = int(sas.DefaultDuration.Minutes())
	}

	headers := http.Header{}
	headers.Set("Ocp-Apim-Subscription-Key", config.Key)
	if config.Region != "" {
		headers.Set("Ocp-Apim-Subscription-Region", config.Region)
	}

	return &AzureDocumentTranslator{
		config:   config,
		endpoint: endpoint,
		issuer:   issuer,
		client:   rest.New(config.HTTPClient, config.RateLimit, headers),
		log:      logger.WithComponent("azure-document-translation"),
	}, nil
}

// Name implements JobProvider.
func (a *AzureDocumentTranslator) Name() string {
	return "azure"
}

// FailureStatuses implements JobProvider.
func (a *AzureDocumentTranslator) FailureStatuses() []poller.Status {
	return []poller.Status{StatusValidationFailed}
}

// ResultName implements JobProvider. Azure keeps the source name in the target container.
func (a *AzureDocumentTranslator) ResultName(req JobRequest) string {
	return strings.Trim(req.SourceName, "/")
}

// Submit implements JobProvider.
func (a *AzureDocumentTranslator) Submit(ctx context.Context, req JobRequest) (string, error) {
	const op = "Submit"

	if err := req.Validate(); err != nil {
		return "", NewTranslationError(op, err, "invalid job request")
	}

	body, err := a.buildBatch(req)
	if err != nil {
		return "", WrapTranslationError(op, err, "failed to sign storage URLs")
	}

	batchURL := a.endpoint.String() + "/translator/document/batches?api-version=" + url.QueryEscape(a.config.APIVersion)

	a.log.Info().
		Str("source_container", req.SourceContainer).
		Str("source_name", req.SourceName).
		Str("target_container", req.TargetContainer).
		Str("target_language", req.TargetLanguage).
		Msg("Submitting document translation batch")

	resp, err := a.client.Do(ctx, http.MethodPost, batchURL, body, nil, nil)
	if err != nil {
		return "", WrapTranslationError(op, err, "batch submission rejected")
	}

	operationID := resp.Header.Get("Operation-Location")
	if operationID == "" {
		return "", NewTranslationError(op, ErrMissingOperationID, "no Operation-Location header")
	}

	a.log.Info().
		Str("operation_id", operationID).
		Msg("Document translation batch accepted")
	return operationID, nil
}

func (a *AzureDocumentTranslator) buildBatch(req JobRequest) (*azureBatchRequest, error) {
	storageType := req.storageType()
	name := strings.Trim(req.SourceName, "/")

	var sourceURL, targetURL string
	var filter *azureSourceFilter
	var err error

	if storageType == StorageFile {
		if sourceURL, err = a.issuer.IssueURL(req.SourceContainer+"/"+name, sas.Read, a.config.GrantMinutes); err != nil {
			return nil, err
		}
		if targetURL, err = a.issuer.IssueURL(req.TargetContainer+"/"+a.ResultName(req), sas.Create|sas.Write, a.config.GrantMinutes); err != nil {
			return nil, err
		}
	} else {
		if sourceURL, err = a.issuer.IssueURL(req.SourceContainer, sas.Read|sas.List, a.config.GrantMinutes); err != nil {
			return nil, err
		}
		if targetURL, err = a.issuer.IssueURL(req.TargetContainer, sas.Write|sas.List, a.config.GrantMinutes); err != nil {
			return nil, err
		}
		if name != "" {
			filter = &azureSourceFilter{Prefix: name}
		}
	}

	source := azureBatchSource{
		SourceURL:     sourceURL,
		StorageSource: "AzureBlob",
		Filter:        filter,
	}
	if lang := NormalizeLanguage(req.SourceLanguage); lang != AutoDetect {
		source.Language = lang
	}

	target := azureBatchTarget{
		TargetURL:     targetURL,
		StorageSource: "AzureBlob",
		Language:      NormalizeLanguage(req.TargetLanguage),
	}
	if req.GlossaryURL != "" {
		format := req.GlossaryFormat
		if format == "" {
			format = "TSV"
		}
		target.Glossaries = []azureGlossary{{GlossaryURL: req.GlossaryURL, Format: format, StorageSource: "AzureBlob"}}
	}

	return &azureBatchRequest{Inputs: []azureBatchInput{{
		StorageType: string(storageType),
		Source:      source,
		Targets:     []azureBatchTarget{target},
	}}}, nil
}

// Status implements JobProvider. The subscription key is only ever sent to
// the configured endpoint host.
func (a *AzureDocumentTranslator) Status(ctx context.Context, operationID string) (*poller.Operation, error) {
	const op = "Status"

	statusURL, err := a.statusURL(operationID)
	if err != nil {
		return nil, NewTranslationError(op, err, operationID)
	}

	var raw json.RawMessage
	if _, err := a.client.Do(ctx, http.MethodGet, statusURL, nil, &raw, nil); err != nil {
		if poller.IsTransient(err) {
			return nil, err
		}
		return nil, WrapTranslationError(op, err, "failed to read batch status")
	}

	var body azureBatchStatus
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, NewTranslationError(op, err, "malformed batch status")
	}

	result := &poller.Operation{
		ID:      operationID,
		Status:  poller.Status(body.Status),
		Payload: raw,
	}
	if body.Error != nil {
		result.Error = body.Error.Message
		if body.Error.InnerError != nil && body.Error.InnerError.Message != "" {
			result.Error = fmt.Sprintf("%s (%s)", body.Error.Message, body.Error.InnerError.Message)
		}
	}
	if result.Status == poller.StatusSucceeded && body.Summary.Failed > 0 {
		result.Error = fmt.Sprintf("%d of %d documents failed", body.Summary.Failed, body.Summary.Total)
	}

	a.log.Debug().
		Str("operation_id", operationID).
		Str("status", body.Status).
		Int("documents_total", body.Summary.Total).
		Int("documents_succeeded", body.Summary.Success).
		Int("documents_in_progress", body.Summary.InProgress).
		Msg("Batch status read")

	return result, nil
}

func (a *AzureDocumentTranslator) statusURL(operationID string) (string, error) {
	if operationID == "" {
		return "", ErrMissingOperationID
	}
	u, err := url.Parse(operationID)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		// A bare batch ID.
		return a.endpoint.String() + "/translator/document/batches/" + url.PathEscape(operationID) +
			"?api-version=" + url.QueryEscape(a.config.APIVersion), nil
	}
	if !strings.EqualFold(u.Host, a.endpoint.Host) || u.Scheme != a.endpoint.Scheme {
		return "", ErrForeignOperation
	}
	return u.String(), nil
}
