package sas

import (
	"errors"
	"fmt"
)

// Common issuance and verification errors
var (
	// ErrConfiguration is returned when the signing credential or endpoint is absent or malformed.
	ErrConfiguration = errors.New("invalid signing configuration")

	// ErrEmptyResource is returned when no resource path is given.
	ErrEmptyResource = errors.New("resource path is required")

	// ErrInvalidPermission is returned for empty permission sets and unknown permission tokens.
	ErrInvalidPermission = errors.New("invalid permission")

	// ErrInvalidDuration is returned when the validity window is not positive.
	ErrInvalidDuration = errors.New("duration must be positive")

	// ErrMalformedURL is returned when a URL does not carry a complete grant.
	ErrMalformedURL = errors.New("malformed scoped access URL")

	// ErrSignatureMismatch is returned when a grant was not signed by the expected credential
	// or any signed field was altered.
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrExpired is returned when a grant is evaluated at or after its expiry.
	ErrExpired = errors.New("scoped access URL expired")

	// ErrNotYetValid is returned when a grant is evaluated before its start time.
	ErrNotYetValid = errors.New("scoped access URL not yet valid")
)

// ValidationError reports malformed issuance input. No I/O happens before it is returned.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// Unwrap returns the sentinel describing the failure class.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, err error, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// ConfigurationError reports a missing or unusable credential or endpoint.
type ConfigurationError struct {
	Op      string
	Details string
	Err     error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Err != nil && e.Err != ErrConfiguration {
		return fmt.Sprintf("sas: %s: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("sas: %s: %s", e.Op, e.Details)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Is reports configuration errors as ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func newConfigurationError(op, details string, err error) *ConfigurationError {
	if err == nil {
		err = ErrConfiguration
	}
	return &ConfigurationError{Op: op, Details: details, Err: err}
}
