// Package hub ties storage, translation providers, OCR and the poller into the
// operations the CLI exposes.
//
// Document flow:
//
//	StartJob  -> upload the source under a collision-free name, submit one job
//	AwaitJob  -> poll the job to a terminal state, mint a read-only download link
//	CheckJob  -> read the status once, with a download link when it succeeded
//
// Image flow:
//
//	TranslateImage -> OCR the image, translate the recognized text
package hub

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"translator/internal/logger"
	"translator/internal/ocr"
	"translator/internal/poller"
	"translator/internal/storage"
	"translator/internal/translation"
	"translator/pkg/services"
)

// DefaultDownloadExpiry is how long download links stay valid.
const DefaultDownloadExpiry = time.Hour

var (
	// ErrNotConfigured is returned when an operation needs a dependency the hub was built without.
	ErrNotConfigured = errors.New("hub dependency not configured")

	// ErrInvalidArtifact is returned for artifacts the requested flow cannot take.
	ErrInvalidArtifact = errors.New("invalid artifact")

	// ErrInvalidHandle is returned for job handles missing their operation or result location.
	ErrInvalidHandle = errors.New("invalid job handle")

	// ErrNameTaken is returned when no free upload name was found for a document.
	ErrNameTaken = errors.New("upload name already taken")
)

// HubError wraps errors with the hub operation that failed.
type HubError struct {
	Op      string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *HubError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("hub: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("hub: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *HubError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *HubError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapHubError wraps an error as a HubError if it isn't already one.
func WrapHubError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var hErr *HubError
	if errors.As(err, &hErr) {
		return err
	}
	return &HubError{Op: op, Err: err, Details: details}
}

// Dependencies are the collaborators of a Hub. Document operations need
// Store, Links and Jobs; TranslateImage needs OCR and Text.
type Dependencies struct {
	Store storage.ObjectStore
	Links storage.Presigner
	Jobs  translation.JobProvider
	OCR   ocr.Service
	Text  translation.TextTranslator
}

// Config holds the hub policy.
type Config struct {
	SourceContainer string
	TargetContainer string

	// StorageType selects file or folder jobs. Folder jobs use the uploaded
	// name as a prefix filter.
	StorageType translation.StorageType

	// DownloadExpiry bounds download links. Zero means DefaultDownloadExpiry.
	DownloadExpiry time.Duration

	Poll poller.Config
}

var _ services.TranslationService = (*Hub)(nil)

// Hub runs document and image translations.
type Hub struct {
	deps   Dependencies
	config Config
	now    func() time.Time
	token  func() string
	log    zerolog.Logger
}

// Option configures a Hub.
type Option func(*Hub)

// WithClock overrides the clock used for blob naming.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithUploadToken overrides the generator of the random part of upload names.
func WithUploadToken(token func() string) Option {
	return func(h *Hub) {
		if token != nil {
			h.token = token
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(h *Hub) {
		h.log = log
	}
}

// New validates config and builds a Hub.
func New(deps Dependencies, config Config, opts ...Option) (*Hub, error) {
	const op = "New"

	if deps.Jobs != nil || deps.Store != nil {
		if err := storage.ValidateContainerName(config.SourceContainer); err != nil {
			return nil, WrapHubError(op, err, "source container")
		}
		if err := storage.ValidateContainerName(config.TargetContainer); err != nil {
			return nil, WrapHubError(op, err, "target container")
		}
	}
	if config.DownloadExpiry <= 0 {
		config.DownloadExpiry = DefaultDownloadExpiry
	}
	if config.Poll.MaxWait <= 0 || config.Poll.Interval <= 0 {
		defaults := poller.DefaultConfig()
		if config.Poll.MaxWait <= 0 {
			config.Poll.MaxWait = defaults.MaxWait
		}
		if config.Poll.Interval <= 0 {
			config.Poll.Interval = defaults.Interval
		}
	}

	h := &Hub{
		deps:   deps,
		config: config,
		now:    time.Now,
		token:  storage.UploadToken,
		log:    logger.WithComponent("hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Hub) requireDocuments(op string) error {
	if h.deps.Store == nil || h.deps.Links == nil || h.deps.Jobs == nil {
		return &HubError{Op: op, Err: ErrNotConfigured, Details: "document translation needs storage and a job provider"}
	}
	return nil
}

func (h *Hub) requireImages(op string) error {
	if h.deps.OCR == nil || h.deps.Text == nil {
		return &HubError{Op: op, Err: ErrNotConfigured, Details: "image translation needs OCR and a text translator"}
	}
	return nil
}
