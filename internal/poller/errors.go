package poller

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Common polling errors
var (
	// ErrConfiguration is returned when the timing policy is invalid.
	ErrConfiguration = errors.New("invalid poller configuration")

	// ErrJobFailed matches every *JobFailedError.
	ErrJobFailed = errors.New("operation reached a failure state")

	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("operation did not complete in time")

	// ErrNilOperation is returned when a status check yields neither an operation nor an error.
	ErrNilOperation = errors.New("status check returned no operation")
)

// PollError wraps errors with additional context about the polling failure.
type PollError struct {
	// Op is the operation that failed (e.g., "Wait", "New").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *PollError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("poller: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("poller: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *PollError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *PollError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewPollError creates a new PollError with the specified operation and underlying error.
func NewPollError(op string, err error, details string) *PollError {
	return &PollError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapPollError wraps an error as a PollError if it isn't already one.
func WrapPollError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var pollErr *PollError
	if errors.As(err, &pollErr) {
		return err
	}

	return NewPollError(op, err, details)
}

// JobFailedError reports that the provider moved the job into a failure state.
type JobFailedError struct {
	Operation *Operation
	Status    Status
	Message   string
}

// Error implements the error interface.
func (e *JobFailedError) Error() string {
	message := e.Message
	if message == "" {
		message = "unknown reason"
	}
	id := ""
	if e.Operation != nil {
		id = e.Operation.ID
	}
	return fmt.Sprintf("operation %s ended with status %s: %s", id, e.Status, message)
}

// Is reports whether target is ErrJobFailed.
func (e *JobFailedError) Is(target error) bool {
	return target == ErrJobFailed
}

// TimeoutError reports that no terminal state was observed within the allotted window.
type TimeoutError struct {
	Elapsed      time.Duration
	LastObserved *Operation
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %d seconds; last status: %s",
		int64(e.Elapsed/time.Second), describeOperation(e.LastObserved))
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// TransientError marks a check failure that should be retried.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable. It returns nil for a nil error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func describeOperation(op *Operation) string {
	if op == nil {
		return "unknown"
	}
	if len(op.Payload) > 0 {
		return string(op.Payload)
	}
	data, err := json.Marshal(op)
	if err != nil {
		return string(op.Status)
	}
	return string(data)
}
