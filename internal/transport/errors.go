package transport

import (
	"errors"
	"fmt"
)

// ErrorCode classifies transport and channel failures. Codes feed metric
// labels and decide retryability, so they are coarse on purpose.
type ErrorCode string

const (
	// CodeConnection indicates a network or dial failure.
	CodeConnection ErrorCode = "CONNECTION_ERROR"

	// CodeClosed indicates an operation on a closed connection or channel.
	CodeClosed ErrorCode = "CLOSED"

	// CodeJoinFailed indicates a channel join acknowledged with "error".
	CodeJoinFailed ErrorCode = "JOIN_FAILED"

	// CodePushFailed indicates an individual push acknowledged with "error".
	CodePushFailed ErrorCode = "PUSH_FAILED"

	// CodeInvalidFrame indicates a frame or payload that could not be decoded.
	CodeInvalidFrame ErrorCode = "INVALID_FRAME"
)

// Error is a structured transport error with a code and wrapped cause.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a structured error.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from err, or CodeConnection for plain
// network errors without classification.
func CodeOf(err error) ErrorCode {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Code
	}
	return CodeConnection
}

// IsRetryable reports whether err describes a transient condition the
// reconnect loop may retry. Join and push acknowledgment errors are never
// retried automatically; retry policy for those belongs to the caller.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case CodeConnection, CodeClosed:
		return true
	default:
		return false
	}
}
