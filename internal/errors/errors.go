package errors

import (
	"errors"
	"fmt"
)

// IndexError is the structured error type for batchidx.
// It provides rich context for error handling, logging, and user presentation.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_507_FLUSH_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Index).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinels for errors.Is matching. Matching is by code, so any IndexError
// carrying the same code matches regardless of message or cause.
var (
	ErrInvalidProperty = &IndexError{Code: ErrCodeInvalidProperty}
	ErrQueryBackend    = &IndexError{Code: ErrCodeQueryBackend}
	ErrFlushFailed     = &IndexError{Code: ErrCodeFlushFailed}
	ErrIndexClosed     = &IndexError{Code: ErrCodeIndexClosed}
	ErrStaleCursor     = &IndexError{Code: ErrCodeStaleCursor}
	ErrIndexLocked     = &IndexError{Code: ErrCodeIndexLocked}
)

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *IndexError) WithSuggestion(suggestion string) *IndexError {
	e.Suggestion = suggestion
	return e
}

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexError from an existing error.
// The error's message becomes the IndexError message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *IndexError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InvalidPropertyError reports malformed key/value input. The rejected call
// leaves the pending buffer untouched.
func InvalidPropertyError(key string, reason string) *IndexError {
	msg := fmt.Sprintf("invalid property %q: %s", key, reason)
	if key == "" {
		msg = "invalid property: " + reason
	}
	return New(ErrCodeInvalidProperty, msg, nil).WithDetail("key", key)
}

// FlushFailureError reports a backend commit failure. Nothing from the
// generation became visible and the pending entries are kept for a retry.
func FlushFailureError(generation uint64, cause error) *IndexError {
	return New(ErrCodeFlushFailed, fmt.Sprintf("flush of generation %d failed", generation), cause).
		WithDetail("generation", fmt.Sprint(generation)).
		WithSuggestion("pending entries were kept; call Flush again once the backend recovers")
}

// QueryBackendError reports a query rejected by the backend.
func QueryBackendError(backend string, cause error) *IndexError {
	return New(ErrCodeQueryBackend, fmt.Sprintf("%s backend rejected query", backend), cause).
		WithDetail("backend", backend)
}

// ClosedIndexError reports a call made after the index was shut down.
func ClosedIndexError(op string) *IndexError {
	return New(ErrCodeIndexClosed, fmt.Sprintf("%s: index is shut down", op), nil).
		WithDetail("operation", op)
}

// StaleCursorError reports a lazy cursor read after a newer generation was flushed.
func StaleCursorError(opened, current uint64) *IndexError {
	return New(ErrCodeStaleCursor,
		fmt.Sprintf("cursor opened at generation %d cannot continue at generation %d", opened, current), nil).
		WithSuggestion("consume or close cursors before the next flush, or re-run the query")
}

// IndexLockedError reports a data directory owned by another writer.
func IndexLockedError(dir string, cause error) *IndexError {
	return New(ErrCodeIndexLocked, fmt.Sprintf("data directory %s is locked by another process", dir), cause).
		WithDetail("data_dir", dir).
		WithSuggestion("only one batch loader may write to a data directory at a time")
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *IndexError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if any IndexError in the chain has the Retryable flag set.
func IsRetryable(err error) bool {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an IndexError.
// Returns empty string if not an IndexError.
func GetCode(err error) string {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

// GetCategory extracts the category from an IndexError.
func GetCategory(err error) Category {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Category
	}
	return ""
}
