package translation

import (
	"errors"
	"fmt"
)

// Common translation errors
var (
	// ErrInvalidRequest is returned when a job or text request is incomplete.
	ErrInvalidRequest = errors.New("invalid translation request")

	// ErrUnsupportedLanguage is returned for language codes outside the supported set.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrInvalidConfiguration is returned when a provider is missing endpoints or keys.
	ErrInvalidConfiguration = errors.New("invalid translation provider configuration")

	// ErrMissingOperationID is returned when a provider accepts a job but names no operation.
	ErrMissingOperationID = errors.New("provider did not return an operation identifier")

	// ErrForeignOperation is returned when an operation ID does not belong to the configured endpoint.
	ErrForeignOperation = errors.New("operation does not belong to the configured endpoint")

	// ErrEmptyTranslation is returned when a provider answers without translated text.
	ErrEmptyTranslation = errors.New("provider returned no translation")
)

// TranslationError wraps errors with the provider operation that failed.
type TranslationError struct {
	Op      string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *TranslationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("translation: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("translation: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *TranslationError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *TranslationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTranslationError creates a new TranslationError.
func NewTranslationError(op string, err error, details string) *TranslationError {
	return &TranslationError{Op: op, Err: err, Details: details}
}

// WrapTranslationError wraps an error as a TranslationError if it isn't already one.
func WrapTranslationError(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	var tErr *TranslationError
	if errors.As(err, &tErr) {
		return err
	}
	return NewTranslationError(op, err, details)
}
