// Package poller waits for asynchronous provider jobs to reach a terminal state.
//
// A poll session repeatedly invokes a caller-supplied status check on a fixed
// interval until the job succeeds, fails, or the session runs out of time.
// The poller is purely observational: it never submits, retries or cancels the
// underlying job, it only reads its status.
//
// Outcomes:
//   - success: the final Operation snapshot is returned with a nil error
//   - job failure: a *JobFailedError carrying the provider's message
//   - timeout: a *TimeoutError with the elapsed time and last observed status
//
// Transient check failures (network errors, aborted or timed out check calls,
// throttling) are logged and retried until the overall deadline. Every other
// check error aborts the session immediately.
package poller

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// DefaultMaxWait bounds the total wall-clock time of a poll session.
	DefaultMaxWait = 10 * time.Minute

	// DefaultInterval is the delay between two status checks.
	DefaultInterval = 3 * time.Second
)

// Status is a provider-reported job state.
type Status string

const (
	StatusNotStarted Status = "NotStarted"
	StatusRunning    Status = "Running"
	StatusSucceeded  Status = "Succeeded"
	StatusFailed     Status = "Failed"
	StatusCancelled  Status = "Cancelled"
	StatusCancelling Status = "Cancelling"
)

// knownStatuses lists the vocabulary the poller understands out of the box.
var knownStatuses = map[Status]struct{}{
	StatusNotStarted: {},
	StatusRunning:    {},
	StatusSucceeded:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
	StatusCancelling: {},
}

// Operation is a snapshot of an asynchronous job as seen by one status check.
type Operation struct {
	// ID is the opaque identifier (often a URL) naming the job with its provider.
	ID string `json:"id"`

	// Status is the provider-reported state.
	Status Status `json:"status"`

	// Error is the provider's diagnostic message, set for failed jobs.
	Error string `json:"error,omitempty"`

	// ResultLocation optionally points at the produced artifact.
	ResultLocation string `json:"result_location,omitempty"`

	// Payload is the raw status response, kept for diagnostics.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CheckFunc reads the current state of a job. It must be idempotent and must
// not change the job.
type CheckFunc func(ctx context.Context) (*Operation, error)

// Event reports the progress of a poll session.
type Event struct {
	// Attempt is the 1-based number of the status check that produced the event.
	Attempt int

	// Elapsed is the time since the session started.
	Elapsed time.Duration

	// Operation is the observed snapshot, nil when the check failed.
	Operation *Operation

	// Err is the transient check error, or the terminal error when Done is set.
	Err error

	// Done marks the final event of a session.
	Done bool
}

// Config holds the timing policy of a poll session.
type Config struct {
	// MaxWait is the upper bound on total wall-clock wait. Must be > 0.
	MaxWait time.Duration

	// Interval is the delay before each status check. Must be > 0.
	Interval time.Duration

	// CheckTimeout bounds a single status check. Zero leaves the check
	// bounded only by the session context.
	CheckTimeout time.Duration
}

// DefaultConfig returns the default polling policy: a check every three
// seconds for at most ten minutes.
func DefaultConfig() Config {
	return Config{
		MaxWait:  DefaultMaxWait,
		Interval: DefaultInterval,
	}
}
