package errors

import (
	"errors"
	"fmt"
)

// ShelfError is the structured error type for barshelf.
// It carries enough context for the transport layer to pick a status and for
// logs to be filtered by code.
type ShelfError struct {
	// Code is the unique error code (e.g., "ERR_301_UPSTREAM_FETCH").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Upstream, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the caller may retry the operation.
	// Nothing inside barshelf retries; the flag is advice for the caller.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *ShelfError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ShelfError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with sentinel ShelfErrors.
func (e *ShelfError) Is(target error) bool {
	if t, ok := target.(*ShelfError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ShelfError) WithDetail(key, value string) *ShelfError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *ShelfError) WithSuggestion(suggestion string) *ShelfError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ShelfError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ShelfError {
	return &ShelfError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ShelfError from an existing error.
// The error's message becomes the ShelfError message.
func Wrap(code string, err error) *ShelfError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ShelfError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// UpstreamError creates an upstream fetch error. It is never retried
// internally; retry policy belongs to whoever called GetCatalog.
func UpstreamError(message string, cause error) *ShelfError {
	return New(ErrCodeUpstreamFetch, message, cause)
}

// PersistenceError creates a persistent store error. Best-effort paths log
// these and carry on.
func PersistenceError(message string, cause error) *ShelfError {
	return New(ErrCodePersistence, message, cause)
}

// StructuralError marks a loaded catalog or cache entry that failed its
// invariant checks. Callers treat it as a miss.
func StructuralError(message string, cause error) *ShelfError {
	return New(ErrCodeStructural, message, cause)
}

// NotFoundError creates a not-found error for an item or page.
func NotFoundError(message string) *ShelfError {
	return New(ErrCodeNotFound, message, nil)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ShelfError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ShelfError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether any ShelfError in err's chain is retryable.
func IsRetryable(err error) bool {
	var se *ShelfError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var se *ShelfError
	if errors.As(err, &se) {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first ShelfError in err's chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var se *ShelfError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from the first ShelfError in err's chain.
func GetCategory(err error) Category {
	var se *ShelfError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}
