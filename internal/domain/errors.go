package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an error that did not come from the domain.
	CodeUnknown Code = "UNKNOWN"

	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeCanceled means the caller gave up before the request finished.
	// Nothing was committed.
	CodeCanceled Code = "CANCELED"

	// Session errors
	CodeSessionNotFound   Code = "SESSION_NOT_FOUND"
	CodeOutOfSequenceTurn Code = "OUT_OF_SEQUENCE_TURN"
	CodeSessionTerminated Code = "SESSION_TERMINATED"

	// Agent errors
	CodeAgentNotFound        Code = "AGENT_NOT_FOUND"
	CodeAgentTimeout         Code = "AGENT_TIMEOUT"
	CodeAgentResponseInvalid Code = "AGENT_RESPONSE_INVALID"
	CodeAgentUnavailable     Code = "AGENT_UNAVAILABLE"

	// Storage errors
	CodePersistence     Code = "PERSISTENCE_ERROR"
	CodeVersionConflict Code = "VERSION_CONFLICT"

	// Account errors
	CodeAccountNotFound Code = "ACCOUNT_NOT_FOUND"
	CodeAccessDenied    Code = "ACCESS_DENIED"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeSessionNotFound, CodeAccountNotFound, CodeAgentNotFound:
		return http.StatusNotFound
	case CodeOutOfSequenceTurn, CodeSessionTerminated, CodeVersionConflict:
		return http.StatusConflict
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeCanceled:
		return http.StatusRequestTimeout
	case CodeAgentTimeout:
		return http.StatusGatewayTimeout
	case CodeAgentResponseInvalid, CodeAgentUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether resubmitting the same request may succeed.
// Persistence conflicts are retryable after the caller reloads the session.
func (c Code) Retryable() bool {
	switch c {
	case CodeAgentTimeout, CodeAgentResponseInvalid, CodeAgentUnavailable,
		CodePersistence, CodeVersionConflict, CodeCanceled:
		return true
	}
	return false
}

// IsPersistence reports whether the code is a server-side storage fault.
func (c Code) IsPersistence() bool {
	return c == CodePersistence || c == CodeVersionConflict
}

// Error is a domain error carrying a Code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a domain error with a formatted message.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error wrapping a cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// MessageOf returns the user-facing message of a domain error, or a generic
// message for anything else.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an unexpected error occurred"
}
