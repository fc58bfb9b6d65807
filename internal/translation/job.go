// Package translation submits document translation jobs and translates text
// through external providers.
package translation

import (
	"context"
	"fmt"
	"strings"

	"translator/internal/poller"
)

// StorageType tells the provider whether the source names one file or a folder prefix.
type StorageType string

const (
	StorageFolder StorageType = "Folder"
	StorageFile   StorageType = "File"
)

// JobRequest is one document translation submission. The same request shape
// serves every provider.
type JobRequest struct {
	SourceContainer string
	// SourceName is the blob name for file jobs and the prefix filter for folder jobs.
	SourceName      string
	TargetContainer string
	// SourceLanguage may be empty or "auto" for providers that detect it.
	SourceLanguage string
	TargetLanguage string
	StorageType    StorageType
	GlossaryURL    string
	GlossaryFormat string
}

// Validate checks the request before any provider call.
func (r JobRequest) Validate() error {
	switch {
	case r.SourceContainer == "":
		return fmt.Errorf("%w: source container is required", ErrInvalidRequest)
	case r.TargetContainer == "":
		return fmt.Errorf("%w: target container is required", ErrInvalidRequest)
	case r.StorageType == StorageFile && strings.Trim(r.SourceName, "/") == "":
		return fmt.Errorf("%w: file jobs need a source name", ErrInvalidRequest)
	case r.StorageType != "" && r.StorageType != StorageFile && r.StorageType != StorageFolder:
		return fmt.Errorf("%w: unknown storage type %q", ErrInvalidRequest, r.StorageType)
	}
	return ValidateLanguages(r.SourceLanguage, r.TargetLanguage)
}

func (r JobRequest) storageType() StorageType {
	if r.StorageType == "" {
		return StorageFolder
	}
	return r.StorageType
}

// JobProvider is an asynchronous document translation backend.
type JobProvider interface {
	// Name identifies the provider in logs.
	Name() string
	// Submit starts a job and returns its operation ID.
	Submit(ctx context.Context, req JobRequest) (string, error)
	// Status reads the job's current state once. It is safe to call repeatedly.
	Status(ctx context.Context, operationID string) (*poller.Operation, error)
	// ResultName predicts the object name of the translated document in the target container.
	ResultName(req JobRequest) string
	// FailureStatuses lists provider statuses that end a job unsuccessfully in
	// addition to Failed and Cancelled.
	FailureStatuses() []poller.Status
}
