package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
	ErrIntegrity    = errors.New("integrity check failed")
)

// Specific errors.
var (
	ErrEndAfterToday       = fmt.Errorf("end day after first day: %w", ErrInvalidInput)
	ErrInvalidDelta        = fmt.Errorf("delta: %w", ErrInvalidInput)
	ErrInvalidDate         = fmt.Errorf("date: %w", ErrInvalidInput)
	ErrInvalidGranuleName  = fmt.Errorf("granule name: %w", ErrInvalidInput)
	ErrNoDataInWindow      = fmt.Errorf("no data available for requested days: %w", ErrNotFound)
	ErrConnectionExhausted = fmt.Errorf("connection retries exhausted: %w", ErrUnavailable)
	ErrTransferExhausted   = fmt.Errorf("transfer retries exhausted: %w", ErrUnavailable)
	ErrSizeMismatch        = fmt.Errorf("size mismatch: %w", ErrIntegrity)
	ErrCorruptFile         = fmt.Errorf("corrupt file: %w", ErrIntegrity)
	ErrGroupConflict       = fmt.Errorf("more than one local version: %w", ErrIntegrity)
	ErrRateLimited         = errors.New("rate limit exceeded")
)

// ValidationError represents a detailed validation error.
type ValidationError struct {
	Field      string      // Field that failed validation
	Value      interface{} // The invalid value
	Constraint string      // The constraint that was violated
	Message    string      // Human-readable message
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s (value: %v, constraint: %s)",
		e.Field, e.Message, e.Value, e.Constraint)
}

// Unwrap returns the underlying error type.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// CatalogError represents a failure talking to the remote catalog.
type CatalogError struct {
	Operation string // connect, list-days, list-files
	Day       DayID  // Day directory, empty for session-level operations
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	if e.Day != "" {
		return fmt.Sprintf("catalog error during %s for %s: %v", e.Operation, e.Day, e.Err)
	}
	return fmt.Sprintf("catalog error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// TransferError is returned when a single file could not be fetched.
type TransferError struct {
	Name     string // Remote file name
	Day      DayID  // Remote day directory
	Attempts int    // Number of attempts made
	Err      error  // Last underlying error
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %s/%s failed after %d attempts: %v",
		e.Day, e.Name, e.Attempts, e.Err)
}

// Unwrap returns both the exhaustion sentinel and the last cause.
func (e *TransferError) Unwrap() []error {
	return []error{ErrTransferExhausted, e.Err}
}

// ConflictError reports several local files sharing one group prefix.
type ConflictError struct {
	Remote string   // Remote file that could not be reconciled
	Local  []string // Local files sharing its group prefix
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%d local files share the group of %s: %v", len(e.Local), e.Remote, e.Local)
}

// Unwrap returns the underlying error type.
func (e *ConflictError) Unwrap() error {
	return ErrGroupConflict
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}
