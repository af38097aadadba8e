package errors

import (
	"errors"
	"fmt"
)

// CodalexError is the structured error type used across the module. It
// carries enough context for a caller to decide whether to retry, degrade,
// or propagate, matching the taxonomy in spec.md §7.
type CodalexError struct {
	Code      string
	Message   string
	Category  Category
	Severity  Severity
	Details   map[string]string
	Cause     error
	Retryable bool
}

func (e *CodalexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CodalexError) Unwrap() error {
	return e.Cause
}

func (e *CodalexError) Is(target error) bool {
	var t *CodalexError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetail attaches a key/value pair of context and returns the error for
// chaining.
func (e *CodalexError) WithDetail(key, value string) *CodalexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New constructs a CodalexError, deriving category/severity/retryability
// from the code.
func New(code, message string, cause error) *CodalexError {
	return &CodalexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap turns a plain error into a CodalexError, reusing err's message.
func Wrap(code string, err error) *CodalexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// --- spec.md §7 taxonomy constructors ---

// SchemaMismatch refuses to open a store written by a newer schema version.
func SchemaMismatch(storedVersion, wantVersion int) *CodalexError {
	return New(ErrCodeSchemaMismatch,
		fmt.Sprintf("index schema v%d is newer than supported v%d", storedVersion, wantVersion), nil).
		WithDetail("stored_version", fmt.Sprintf("%d", storedVersion)).
		WithDetail("want_version", fmt.Sprintf("%d", wantVersion))
}

// RepositoryNotIndexed is returned when a query targets a repository with no
// rows in the store.
func RepositoryNotIndexed(repositoryID string) *CodalexError {
	return New(ErrCodeRepositoryNotIdx,
		fmt.Sprintf("repository %q has not been indexed", repositoryID), nil).
		WithDetail("repository_id", repositoryID)
}

// ModelMismatch is returned when a semantic query's embedding model does not
// match the collection's recorded model.
func ModelMismatch(wantModel, gotModel string) *CodalexError {
	return New(ErrCodeModelMismatch,
		fmt.Sprintf("query model %q does not match index model %q", wantModel, gotModel), nil).
		WithDetail("query_model", wantModel).
		WithDetail("index_model", gotModel)
}

// InvalidQuery is returned only when a query is syntactically impossible
// (empty after trimming); anything else degrades rather than erroring.
func InvalidQuery(reason string) *CodalexError {
	return New(ErrCodeInvalidQuery, reason, nil)
}

// StorageExhausted wraps a disk-full commit failure. The pre-transaction
// state is left intact by the caller.
func StorageExhausted(cause error) *CodalexError {
	return New(ErrCodeStorageExhausted, "disk exhausted during commit", cause)
}

// OutsidePathError is returned by the identity resolver when a path escapes
// the repository root.
func OutsidePathError(path, root string) *CodalexError {
	return New(ErrCodeOutsidePath,
		fmt.Sprintf("path %q resolves outside repository root %q", path, root), nil).
		WithDetail("path", path).WithDetail("root", root)
}

// IsRetryable reports whether err (or any error it wraps) is marked
// retryable.
func IsRetryable(err error) bool {
	var ce *CodalexError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal reports whether err carries FATAL severity and must propagate
// unchanged rather than degrade.
func IsFatal(err error) bool {
	var ce *CodalexError
	if errors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// Code extracts the error code, or "" if err is not a CodalexError.
func Code(err error) string {
	var ce *CodalexError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
