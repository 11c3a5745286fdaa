// SPDX-License-Identifier: Apache-2.0
// Package errors provides the typed error taxonomy shared by the relay
// pipeline: model client failures, request validation and pipeline faults.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies relay errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeNetwork indicates the model endpoint could not be reached.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeQuota indicates the model provider rejected the call for quota or rate reasons.
	CodeQuota ErrorCode = "QUOTA_EXCEEDED"

	// CodeInvalidResponse indicates the model answered with content that could not be used.
	CodeInvalidResponse ErrorCode = "INVALID_RESPONSE"

	// CodeValidation indicates a malformed request rejected before entering a pipeline.
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// CodePipeline indicates a missing or failed upstream result.
	CodePipeline ErrorCode = "PIPELINE_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeNotFound indicates a session or pipeline was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeContextLost indicates the context was cancelled mid-operation.
	CodeContextLost ErrorCode = "CONTEXT_LOST"
)

// RelayError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type RelayError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int // HTTP status used by the API surface
}

// Error implements the error interface.
func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *RelayError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging and API responses.
func (e *RelayError) MarshalJSON() ([]byte, error) {
	out := struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Recoverable bool                   `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new RelayError with the given code, message, and cause.
// Client-side failure codes start out recoverable.
func New(code ErrorCode, msg string, cause error) *RelayError {
	return &RelayError{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Context:     make(map[string]interface{}),
		Attributes:  make(map[string]string),
		Recoverable: defaultRecoverable(code),
		StatusCode:  codeToStatusCode(code),
	}
}

// Validation returns a non-recoverable validation error for a request field.
func Validation(field, msg string) *RelayError {
	return New(CodeValidation, msg, nil).WithContext("field", field)
}

// Pipeline returns a pipeline error naming the stage that blocked progress.
func Pipeline(stage, msg string) *RelayError {
	return New(CodePipeline, msg, nil).
		WithContext("stage", stage).
		WithAttribute("relay.stage", stage)
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *RelayError) WithContext(key string, value interface{}) *RelayError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *RelayError) WithAttribute(key, value string) *RelayError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *RelayError) WithRecoverable(recoverable bool) *RelayError {
	e.Recoverable = recoverable
	return e
}

// Stage returns the stage recorded in the error context, if any.
func (e *RelayError) Stage() string {
	if e == nil || e.Context == nil {
		return ""
	}
	stage, _ := e.Context["stage"].(string)
	return stage
}

// AsRelayError finds a RelayError in the chain of err.
// Unknown errors are wrapped as internal errors.
func AsRelayError(err error) *RelayError {
	if err == nil {
		return nil
	}
	var re *RelayError
	if stderrors.As(err, &re) {
		return re
	}
	return New(CodeInternal, "wrapped error", err)
}

// IsCode reports whether err carries a RelayError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var re *RelayError
	if !stderrors.As(err, &re) {
		return false
	}
	return re.Code == code
}

// IsClientFailure reports whether err is one of the model client failure
// classes that callers are expected to absorb with a fallback.
func IsClientFailure(err error) bool {
	return IsCode(err, CodeNetwork) || IsCode(err, CodeQuota) ||
		IsCode(err, CodeInvalidResponse) || IsCode(err, CodeTimeout)
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *RelayError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

func defaultRecoverable(code ErrorCode) bool {
	switch code {
	case CodeNetwork, CodeQuota, CodeInvalidResponse, CodeTimeout:
		return true
	default:
		return false
	}
}

// codeToStatusCode maps error codes to HTTP status codes.
func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound:
		return 404
	case CodeValidation:
		return 400
	case CodeTimeout:
		return 408
	case CodeQuota:
		return 429
	case CodePipeline:
		return 409
	case CodeNetwork, CodeInvalidResponse:
		return 502
	default:
		return 500
	}
}
