package hub

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"translator/internal/artifact"
	"translator/internal/poller"
	"translator/internal/storage"
	"translator/internal/translation"
	"translator/pkg/models"
)

// StartJob uploads a document and submits one translation job for it.
// sourceLang may be empty or "auto" when the provider detects the language.
func (h *Hub) StartJob(ctx context.Context, a *artifact.Artifact, sourceLang, targetLang string) (*models.TranslationJob, error) {
	const op = "StartJob"

	if err := h.requireDocuments(op); err != nil {
		return nil, err
	}
	if a == nil || len(a.Data) == 0 {
		return nil, &HubError{Op: op, Err: ErrInvalidArtifact, Details: "no document data"}
	}
	if a.Kind != artifact.KindDocument {
		return nil, &HubError{Op: op, Err: ErrInvalidArtifact, Details: fmt.Sprintf("%s is a %s, use image translation", a.Name, a.Kind)}
	}
	if err := translation.ValidateLanguages(sourceLang, targetLang); err != nil {
		return nil, WrapHubError(op, err, "invalid language pair")
	}
	targetLang = translation.NormalizeLanguage(targetLang)

	for _, container := range []string{h.config.SourceContainer, h.config.TargetContainer} {
		if err := h.deps.Store.EnsureContainer(ctx, container); err != nil {
			return nil, WrapHubError(op, err, "failed to prepare container "+container)
		}
	}

	now := h.now()
	name, err := h.freeSourceName(ctx, a.Name, targetLang, now)
	if err != nil {
		return nil, WrapHubError(op, err, "failed to name source document")
	}
	if err := h.deps.Store.Put(ctx, h.config.SourceContainer, name, bytes.NewReader(a.Data), a.Size, a.ContentType); err != nil {
		return nil, WrapHubError(op, err, "failed to upload source document")
	}

	h.log.Info().
		Str("container", h.config.SourceContainer).
		Str("blob", name).
		Int64("size", a.Size).
		Str("content_type", a.ContentType).
		Msg("Source document uploaded")

	req := translation.JobRequest{
		SourceContainer: h.config.SourceContainer,
		SourceName:      name,
		TargetContainer: h.config.TargetContainer,
		SourceLanguage:  sourceLang,
		TargetLanguage:  targetLang,
		StorageType:     h.config.StorageType,
	}
	operationID, err := h.deps.Jobs.Submit(ctx, req)
	if err != nil {
		return nil, WrapHubError(op, err, "failed to submit translation job")
	}

	handle := &models.TranslationJob{
		OperationID:     operationID,
		Provider:        h.deps.Jobs.Name(),
		SourceContainer: h.config.SourceContainer,
		SourceName:      name,
		ResultContainer: h.config.TargetContainer,
		ResultName:      h.deps.Jobs.ResultName(req),
		SourceLanguage:  translation.NormalizeLanguage(sourceLang),
		TargetLanguage:  targetLang,
		SubmittedAt:     now.UTC(),
	}

	h.log.Info().
		Str("operation_id", operationID).
		Str("provider", handle.Provider).
		Str("result", handle.ResultContainer+"/"+handle.ResultName).
		Msg("Translation job submitted")

	return handle, nil
}

// AwaitJob polls the job until it reaches a terminal state and returns a
// read-only download link for the result. onProgress, when set, receives one
// event per status check. Job failure and timeout come back as
// *poller.JobFailedError and *poller.TimeoutError.
func (h *Hub) AwaitJob(ctx context.Context, handle *models.TranslationJob, onProgress func(poller.Event)) (*models.TranslationResult, error) {
	const op = "AwaitJob"

	if err := h.requireDocuments(op); err != nil {
		return nil, err
	}
	if err := handle.Validate(); err != nil {
		return nil, &HubError{Op: op, Err: ErrInvalidHandle, Details: err.Error()}
	}

	attempts := 0
	final, err := poller.WaitForCompletion(ctx, func(ctx context.Context) (*poller.Operation, error) {
		return h.deps.Jobs.Status(ctx, handle.OperationID)
	},
		poller.WithConfig(h.config.Poll),
		poller.WithFailureStatuses(h.deps.Jobs.FailureStatuses()...),
		poller.WithObserver(func(ev poller.Event) { attempts = ev.Attempt }),
		poller.WithObserver(onProgress),
		poller.WithLogger(h.log),
	)
	if err != nil {
		return nil, err
	}

	result := &models.TranslationResult{Status: string(final.Status), Message: final.Error, Attempts: attempts}
	if err := h.attachDownload(ctx, handle, result); err != nil {
		return nil, WrapHubError(op, err, "job succeeded but the result is not downloadable")
	}

	h.log.Info().
		Str("operation_id", handle.OperationID).
		Str("result", handle.ResultContainer+"/"+handle.ResultName).
		Msg("Translation ready for download")

	return result, nil
}

// CheckJob reads the job status once. A succeeded job gets a download link.
func (h *Hub) CheckJob(ctx context.Context, handle *models.TranslationJob) (*models.TranslationResult, error) {
	const op = "CheckJob"

	if err := h.requireDocuments(op); err != nil {
		return nil, err
	}
	if handle == nil || handle.OperationID == "" {
		return nil, &HubError{Op: op, Err: ErrInvalidHandle, Details: "operation ID is required"}
	}

	observed, err := h.deps.Jobs.Status(ctx, handle.OperationID)
	if err != nil {
		return nil, WrapHubError(op, err, "failed to read job status")
	}
	if observed == nil {
		return nil, &HubError{Op: op, Err: poller.ErrNilOperation, Details: "provider returned no status for " + handle.OperationID}
	}

	result := &models.TranslationResult{Status: string(observed.Status), Message: observed.Error, Attempts: 1}
	if observed.Status == poller.StatusSucceeded && handle.ResultContainer != "" && handle.ResultName != "" {
		if err := h.attachDownload(ctx, handle, result); err != nil {
			return nil, WrapHubError(op, err, "job succeeded but the result is not downloadable")
		}
	}
	return result, nil
}

// maxNameAttempts bounds how often a fresh token is drawn for an upload name.
const maxNameAttempts = 5

// freeSourceName picks an upload name that is not yet used in the source container.
func (h *Hub) freeSourceName(ctx context.Context, original, targetLang string, now time.Time) (string, error) {
	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		name := storage.BlobName(original, targetLang, now, h.token())
		exists, err := h.deps.Store.Exists(ctx, h.config.SourceContainer, name)
		if err != nil {
			return "", err
		}
		if !exists {
			return name, nil
		}
		h.log.Debug().Str("blob", name).Int("attempt", attempt).Msg("Upload name taken, drawing a new one")
	}
	return "", fmt.Errorf("%w: %s after %d attempts", ErrNameTaken, original, maxNameAttempts)
}

func (h *Hub) attachDownload(ctx context.Context, handle *models.TranslationJob, result *models.TranslationResult) error {
	link, err := h.deps.Links.PresignGet(ctx, handle.ResultContainer, handle.ResultName, h.config.DownloadExpiry)
	if err != nil {
		return err
	}
	expires := h.now().UTC().Add(h.config.DownloadExpiry).Truncate(time.Second)
	result.DownloadURL = link
	result.ExpiresAt = &expires
	return nil
}
