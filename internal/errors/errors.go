package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a tablesnap error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrCaptureNotFound   ErrorCode = "CAPTURE_NOT_FOUND"  // 404
	ErrFileNotFound      ErrorCode = "FILE_NOT_FOUND"     // 404
	ErrCancelled         ErrorCode = "CANCELLED"          // 409
	ErrMalformedCapture  ErrorCode = "MALFORMED_CAPTURE"  // 422
	ErrInternal          ErrorCode = "INTERNAL"           // 500
	ErrSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE" // 503
)

// TablesnapError represents a structured error with code, status, and details.
type TablesnapError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *TablesnapError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *TablesnapError) Unwrap() error {
	return e.Err
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TablesnapError {
	return &TablesnapError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing history record.
func NewNotFound(kind, identifier string) *TablesnapError {
	return &TablesnapError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewCaptureNotFound creates a 404 error when no capture exists for a table under a label.
func NewCaptureNotFound(label, table string) *TablesnapError {
	return &TablesnapError{
		Code:    ErrCaptureNotFound,
		Status:  404,
		Message: fmt.Sprintf("no %q capture for table %q", label, table),
		Details: map[string]any{"label": label, "table": table},
	}
}

// NewFileNotFound creates a 404 error for a missing file.
func NewFileNotFound(path string) *TablesnapError {
	return &TablesnapError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewMalformedCapture creates a 422 error for a capture that cannot be decoded.
func NewMalformedCapture(label, table string, err error) *TablesnapError {
	msg := fmt.Sprintf("malformed %q capture for table %q", label, table)
	if err != nil {
		msg += ": " + err.Error()
	}
	return &TablesnapError{
		Code:    ErrMalformedCapture,
		Status:  422,
		Message: msg,
		Details: map[string]any{"label": label, "table": table},
		Err:     err,
	}
}

// NewSourceUnavailable creates a 503 error when the source database cannot be reached.
func NewSourceUnavailable(driver string, err error) *TablesnapError {
	msg := fmt.Sprintf("source database (%s) unavailable", driver)
	if err != nil {
		msg += ": " + err.Error()
	}
	return &TablesnapError{
		Code:    ErrSourceUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"driver": driver},
		Err:     err,
	}
}

// NewCancelled creates an error for an operation interrupted by context cancellation.
func NewCancelled(operation string) *TablesnapError {
	return &TablesnapError{
		Code:    ErrCancelled,
		Status:  409,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the cause is kept in Details for logging.
func NewInternal(err error) *TablesnapError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &TablesnapError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		Err:     err,
	}
}

// Is checks if err (or anything it wraps) is a TablesnapError with the given code.
func Is(err error, code ErrorCode) bool {
	var tsErr *TablesnapError
	if stderrors.As(err, &tsErr) {
		return tsErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first TablesnapError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var tsErr *TablesnapError
	if stderrors.As(err, &tsErr) {
		return tsErr.Code
	}
	return ErrInternal
}
