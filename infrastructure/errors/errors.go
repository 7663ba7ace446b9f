// Package errors provides the wire error taxonomy for the sandbox core.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a wire-level error kind. Values are the exact strings the
// external protocol carries in a failure response's error.code field.
type Code string

const (
	CodeInvalidRequest      Code = "invalid_request"
	CodeSandboxRejection    Code = "sandbox_rejection"
	CodeTimedOut            Code = "timed_out"
	CodePayloadTooLarge     Code = "payload_too_large"
	CodeTokenLimitExceeded  Code = "token_limit_exceeded"
	CodeOverloaded          Code = "overloaded"
	CodeUnknownIntent       Code = "unknown_intent"
	CodeBackendUnavailable Code = "backend_unavailable"
	CodeInternalError       Code = "internal_error"
	CodeMissingParameter   Code = "missing_parameter"
)

var httpStatus = map[Code]int{
	CodeInvalidRequest:     http.StatusBadRequest,
	CodeSandboxRejection:   http.StatusForbidden,
	CodeTimedOut:           http.StatusRequestTimeout,
	CodePayloadTooLarge:    http.StatusRequestEntityTooLarge,
	CodeTokenLimitExceeded: http.StatusTooManyRequests,
	CodeOverloaded:         http.StatusTooManyRequests,
	CodeUnknownIntent:      http.StatusNotImplemented,
	CodeBackendUnavailable: http.StatusServiceUnavailable,
	CodeInternalError:      http.StatusInternalServerError,
	CodeMissingParameter:   http.StatusBadRequest,
}

// SandboxError is a structured error carrying a wire code, an HTTP status
// for embedders that want one, optional details, and an optional cause.
type SandboxError struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"-"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *SandboxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SandboxError) Unwrap() error { return e.Err }

// WithDetails attaches a key/value pair, creating the Details map lazily.
func (e *SandboxError) WithDetails(key string, value interface{}) *SandboxError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New builds a SandboxError for the given wire code, deriving its HTTP
// status from the code's fixed mapping (§6 of the error taxonomy).
func New(code Code, message string) *SandboxError {
	return &SandboxError{Code: code, Message: message, Status: httpStatus[code]}
}

// Wrap builds a SandboxError around an underlying cause.
func Wrap(code Code, message string, err error) *SandboxError {
	return &SandboxError{Code: code, Message: message, Status: httpStatus[code], Err: err}
}

func InvalidRequest(reason string) *SandboxError {
	return New(CodeInvalidRequest, reason)
}

func SandboxRejection(reason string) *SandboxError {
	return New(CodeSandboxRejection, reason)
}

func TimedOut(operation string) *SandboxError {
	return New(CodeTimedOut, "operation timed out").WithDetails("operation", operation)
}

func PayloadTooLarge(limit, actual int) *SandboxError {
	return New(CodePayloadTooLarge, "value exceeds the configured size limit").
		WithDetails("limit_bytes", limit).
		WithDetails("actual_bytes", actual)
}

func TokenLimitExceeded(limit, estimated int) *SandboxError {
	return New(CodeTokenLimitExceeded, "estimated token cost exceeds the configured limit").
		WithDetails("limit", limit).
		WithDetails("estimated", estimated)
}

func Overloaded() *SandboxError {
	return New(CodeOverloaded, "concurrency cap reached, queue is full")
}

func UnknownIntent(name string) *SandboxError {
	return New(CodeUnknownIntent, "intent is not present in the capability index").
		WithDetails("intent", name)
}

func BackendUnavailable(backend string, err error) *SandboxError {
	return Wrap(CodeBackendUnavailable, "backend is unavailable", err).
		WithDetails("backend", backend)
}

func Internal(message string, err error) *SandboxError {
	return Wrap(CodeInternalError, message, err)
}

func MissingParameter(name string) *SandboxError {
	return New(CodeMissingParameter, "template placeholder has no matching parameter").
		WithDetails("parameter", name)
}

// As extracts a *SandboxError from an error chain, if present.
func As(err error) *SandboxError {
	var se *SandboxError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// StatusFor returns the HTTP status an embedder should use for err, falling
// back to 500 when err carries no SandboxError.
func StatusFor(err error) int {
	if se := As(err); se != nil {
		return se.Status
	}
	return http.StatusInternalServerError
}
