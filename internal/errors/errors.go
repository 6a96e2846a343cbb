package errors

import (
	stderrors "errors"
	"fmt"
)

// RankError is the structured error type for tinyrerank.
// It provides rich context for error handling, logging, and user presentation.
type RankError struct {
	// Code is the unique error code (e.g., "ERR_207_EMPTY_CORPUS").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
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

// Sentinel errors for errors.Is checks. Matching is by code, so any
// RankError created with the same code matches its sentinel.
var (
	// ErrEmptyCorpus means there are no documents to index.
	ErrEmptyCorpus = New(ErrCodeEmptyCorpus, "no documents found", nil)

	// ErrNotFitted means a query was issued before the index was built.
	ErrNotFitted = New(ErrCodeNotFitted, "retriever queried before fit", nil)

	// ErrEmbeddingFailed means the embedding capability failed.
	ErrEmbeddingFailed = New(ErrCodeEmbeddingFailed, "embedding failed", nil)

	// ErrScoringFailed means the pairwise relevance capability failed.
	ErrScoringFailed = New(ErrCodeScoringFailed, "scoring failed", nil)

	// ErrInvalidJudgment means a relevance judgment entry is malformed.
	ErrInvalidJudgment = New(ErrCodeInvalidJudgment, "invalid judgment", nil)
)

// Error implements the error interface.
func (e *RankError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RankError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RankError.
func (e *RankError) Is(target error) bool {
	if t, ok := target.(*RankError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RankError) WithDetail(key, value string) *RankError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *RankError) WithSuggestion(suggestion string) *RankError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RankError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RankError {
	return &RankError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new RankError with a formatted message and no cause.
func Newf(code string, format string, args ...any) *RankError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a RankError from an existing error.
// The error's message becomes the RankError message.
func Wrap(code string, err error) *RankError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RankError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *RankError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *RankError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RankError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RankError {
	return New(ErrCodeInternal, message, cause)
}

// EmptyCorpusError reports that no documents were found under root.
func EmptyCorpusError(root string) *RankError {
	return New(ErrCodeEmptyCorpus, fmt.Sprintf("no markdown files found under %s", root), nil).
		WithDetail("root", root).
		WithSuggestion("check --root and the corpus include/exclude patterns")
}

// InvalidJudgmentError reports a malformed judgment entry for one query.
func InvalidJudgmentError(query, reason string) *RankError {
	return New(ErrCodeInvalidJudgment, fmt.Sprintf("invalid judgment for query %q: %s", query, reason), nil).
		WithDetail("query", query)
}

// as finds the first RankError in err's chain.
func as(err error) (*RankError, bool) {
	var re *RankError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain holds a RankError with Retryable flag set.
func IsRetryable(err error) bool {
	if re, ok := as(err); ok {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if re, ok := as(err); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a RankError.
// Returns empty string if not a RankError.
func GetCode(err error) string {
	if re, ok := as(err); ok {
		return re.Code
	}
	return ""
}

// GetMessage returns a RankError's message without its code, or err.Error()
// for any other error.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	if re, ok := as(err); ok {
		return re.Message
	}
	return err.Error()
}

// GetCategory extracts the category from a RankError.
// Returns empty string if not a RankError.
func GetCategory(err error) Category {
	if re, ok := as(err); ok {
		return re.Category
	}
	return ""
}
