package engine

import (
	"errors"
	"fmt"
)

// Error is a typed failure of an engine operation.
//
// Error codes:
//   - NOT_FOUND: a referenced context, result, or scan does not exist
//   - PARAMETER: the caller violated a precondition
//   - CONSISTENCY: the operation would leave the sequences misaligned
//   - EXPORT_IO: the export artifact could not be written
//
// Rejected operations leave the store unchanged. EXPORT_IO is the only code
// returned after a commit, and only from explicit rewrites.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Token identifies the operation that failed.
	Token string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a referenced row does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeParameter indicates a violated precondition.
	ErrCodeParameter ErrorCode = "PARAMETER"

	// ErrCodeConsistency indicates the reconciliation invariants could not
	// be re-established.
	ErrCodeConsistency ErrorCode = "CONSISTENCY"

	// ErrCodeExportIO indicates the artifact write failed.
	ErrCodeExportIO ErrorCode = "EXPORT_IO"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Token != "" {
		msg += fmt.Sprintf(" (op=%s)", e.Token)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound returns true if err is a NOT_FOUND engine error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsParameter returns true if err is a PARAMETER engine error.
func IsParameter(err error) bool {
	return CodeOf(err) == ErrCodeParameter
}

// IsConsistencyFault returns true if err is a CONSISTENCY engine error.
func IsConsistencyFault(err error) bool {
	return CodeOf(err) == ErrCodeConsistency
}

// IsExportIO returns true if err is an EXPORT_IO engine error.
func IsExportIO(err error) bool {
	return CodeOf(err) == ErrCodeExportIO
}

// NewNotFoundError creates an Error for a missing row.
func NewNotFoundError(kind string, id int64) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %d not found", kind, id),
		Details: map[string]string{
			"kind": kind,
			"id":   fmt.Sprintf("%d", id),
		},
	}
}

// NewParameterError creates an Error for a violated precondition.
func NewParameterError(format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeParameter,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewConsistencyFault creates an Error for a broken invariant.
func NewConsistencyFault(invariant, message string) *Error {
	return &Error{
		Code:    ErrCodeConsistency,
		Message: message,
		Details: map[string]string{"invariant": invariant},
	}
}

// NewExportError creates an Error wrapping an artifact write failure.
func NewExportError(path string, err error) *Error {
	return &Error{
		Code:    ErrCodeExportIO,
		Message: fmt.Sprintf("write export artifact %q", path),
		Details: map[string]string{"path": path},
		Err:     err,
	}
}
