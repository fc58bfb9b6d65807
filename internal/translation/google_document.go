package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v3"
	"translator/internal/logger"
	"translator/internal/poller"
)

// GoogleDocumentConfig configures the Cloud Translation batch document adapter.
type GoogleDocumentConfig struct {
	ProjectID string
	// Location must be a regional location; batch jobs are not served from "global".
	Location string
}

// GoogleDocumentTranslator runs batch document jobs on Cloud Translation v3.
// Sources and results live in Cloud Storage buckets named by the job's containers.
type GoogleDocumentTranslator struct {
	service *translate.Service
	config  GoogleDocumentConfig
	log     zerolog.Logger
}

// NewGoogleDocumentTranslator creates the adapter with application default
// credentials unless opts say otherwise.
func NewGoogleDocumentTranslator(ctx context.Context, config GoogleDocumentConfig, opts ...option.ClientOption) (*GoogleDocumentTranslator, error) {
	const op = "NewGoogleDocumentTranslator"

	if config.ProjectID == "" {
		return nil, NewTranslationError(op, ErrInvalidConfiguration, "project ID is required")
	}
	if config.Location == "" || config.Location == "global" {
		config.Location = "us-central1"
	}

	service, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, WrapTranslationError(op, err, "failed to create Cloud Translation client")
	}

	return &GoogleDocumentTranslator{
		service: service,
		config:  config,
		log:     logger.WithComponent("google-document-translation"),
	}, nil
}

// Name implements JobProvider.
func (g *GoogleDocumentTranslator) Name() string {
	return "google"
}

// FailureStatuses implements JobProvider. Google states are mapped onto the
// common vocabulary, so no extra values are needed.
func (g *GoogleDocumentTranslator) FailureStatuses() []poller.Status {
	return nil
}

// ResultName implements JobProvider. Cloud Translation writes
// "<bucket>_<name>_<lang>_translations<ext>" under the output prefix.
func (g *GoogleDocumentTranslator) ResultName(req JobRequest) string {
	name := strings.Trim(req.SourceName, "/")
	ext := path.Ext(name)
	stem := strings.ReplaceAll(strings.TrimSuffix(name, ext), "/", "_")
	return fmt.Sprintf("%s_%s_%s_translations%s", req.SourceContainer, stem, NormalizeLanguage(req.TargetLanguage), ext)
}

// Submit implements JobProvider.
func (g *GoogleDocumentTranslator) Submit(ctx context.Context, req JobRequest) (string, error) {
	const op = "Submit"

	if err := req.Validate(); err != nil {
		return "", NewTranslationError(op, err, "invalid job request")
	}
	source := NormalizeLanguage(req.SourceLanguage)
	if source == AutoDetect {
		return "", NewTranslationError(op, ErrInvalidRequest, "batch document translation needs an explicit source language")
	}

	input := &translate.BatchDocumentInputConfig{
		GcsSource: &translate.GcsSource{
			InputUri: fmt.Sprintf("gs://%s/%s", req.SourceContainer, strings.Trim(req.SourceName, "/")),
		},
	}
	body := &translate.BatchTranslateDocumentRequest{
		SourceLanguageCode:  source,
		TargetLanguageCodes: []string{NormalizeLanguage(req.TargetLanguage)},
		InputConfigs:        []*translate.BatchDocumentInputConfig{input},
		OutputConfig: &translate.BatchDocumentOutputConfig{
			GcsDestination: &translate.GcsDestination{
				OutputUriPrefix: fmt.Sprintf("gs://%s/", req.TargetContainer),
			},
		},
	}
	if req.GlossaryURL != "" {
		body.Glossaries = map[string]translate.TranslateTextGlossaryConfig{
			NormalizeLanguage(req.TargetLanguage): {Glossary: req.GlossaryURL},
		}
	}

	g.log.Info().
		Str("input_uri", input.GcsSource.InputUri).
		Str("target_language", req.TargetLanguage).
		Msg("Submitting batch document translation")

	operation, err := g.service.Projects.Locations.BatchTranslateDocument(g.parent(), body).Context(ctx).Do()
	if err != nil {
		return "", WrapTranslationError(op, err, "batch submission rejected")
	}
	if operation.Name == "" {
		return "", NewTranslationError(op, ErrMissingOperationID, "empty operation name")
	}

	g.log.Info().Str("operation_id", operation.Name).Msg("Batch document translation accepted")
	return operation.Name, nil
}

// Status implements JobProvider.
func (g *GoogleDocumentTranslator) Status(ctx context.Context, operationID string) (*poller.Operation, error) {
	const op = "Status"

	if !strings.HasPrefix(operationID, g.parent()+"/operations/") {
		return nil, NewTranslationError(op, ErrForeignOperation, operationID)
	}

	operation, err := g.service.Projects.Locations.Operations.Get(operationID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && poller.IsTransientStatusCode(apiErr.Code) {
			return nil, poller.Transient(err)
		}
		if poller.IsTransient(err) {
			return nil, err
		}
		return nil, WrapTranslationError(op, err, "failed to read operation")
	}

	return g.toOperation(operation)
}

// toOperation maps a long-running operation onto the common status vocabulary.
func (g *GoogleDocumentTranslator) toOperation(operation *translate.Operation) (*poller.Operation, error) {
	payload, err := json.Marshal(operation)
	if err != nil {
		return nil, err
	}

	var metadata struct {
		State string `json:"state"`
	}
	if len(operation.Metadata) > 0 {
		_ = json.Unmarshal(operation.Metadata, &metadata)
	}

	result := &poller.Operation{
		ID:      operation.Name,
		Status:  mapGoogleState(metadata.State),
		Payload: payload,
	}

	if operation.Done {
		switch {
		case operation.Error != nil:
			result.Error = operation.Error.Message
			if result.Status != poller.StatusCancelled {
				result.Status = poller.StatusFailed
			}
		case result.Status != poller.StatusCancelled && result.Status != poller.StatusFailed:
			result.Status = poller.StatusSucceeded
		}
	}

	return result, nil
}

func (g *GoogleDocumentTranslator) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", g.config.ProjectID, g.config.Location)
}

func mapGoogleState(state string) poller.Status {
	switch state {
	case "RUNNING":
		return poller.StatusRunning
	case "SUCCEEDED":
		return poller.StatusSucceeded
	case "FAILED":
		return poller.StatusFailed
	case "CANCELLING":
		return poller.StatusCancelling
	case "CANCELLED":
		return poller.StatusCancelled
	case "", "STATE_UNSPECIFIED":
		return poller.StatusNotStarted
	default:
		return poller.Status(state)
	}
}
