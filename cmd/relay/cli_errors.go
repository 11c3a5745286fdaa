// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/jllopis/relay/pkg/errors"
)

// CLIError wraps RelayError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.RelayError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(re *errors.RelayError, hint string) *CLIError {
	return &CLIError{
		RelayError: re,
		Hint:       hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.RelayError == nil {
		return "unknown error"
	}

	msg := e.RelayError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the RelayError to errors.As.
func (e *CLIError) Unwrap() error {
	if e.RelayError == nil {
		return nil
	}
	return e.RelayError
}

// PrintError prints the error with appropriate formatting.
func (e *CLIError) PrintError(w io.Writer, asJSON bool) {
	if asJSON {
		out := map[string]any{"error": map[string]any{
			"code":    e.RelayError.Code,
			"message": e.RelayError.Message,
			"hint":    e.Hint,
		}}
		_ = json.NewEncoder(w).Encode(out)
		return
	}

	fmt.Fprintf(w, "Error [%s]: %s\n", FormatErrorCode(e.RelayError.Code), e.RelayError.Message)
	if e.RelayError.Err != nil {
		fmt.Fprintf(w, "  Cause: %v\n", e.RelayError.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(w, "  Hint: %s\n", e.Hint)
	}
}

// NewNotFoundError creates a not found error with CLI hints.
func NewNotFoundError(resource, name string) *CLIError {
	re := errors.New(errors.CodeNotFound, fmt.Sprintf("%s '%s' not found", resource, name), nil).
		WithContext("resource", resource).
		WithContext("name", name)
	return NewCLIError(re, fmt.Sprintf("run 'relay %s --help' to see how %ss are addressed", commandFor(resource), resource))
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	re := errors.Validation(arg, fmt.Sprintf("invalid argument: %s", reason))
	return NewCLIError(re, "run 'relay help' for usage information")
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	re := errors.New(errors.CodeValidation, "configuration error", err).
		WithContext("config_path", configPath)

	hint := "check your configuration values and RELAY_* environment variables"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(re, hint)
}

// NewFailedSessionError reports a session that stopped at stage.
func NewFailedSessionError(id, stage, lastErr string) *CLIError {
	re := errors.Pipeline(stage, fmt.Sprintf("session %s failed at stage %s: %s", id, stage, lastErr)).
		WithContext("session_id", id)
	return NewCLIError(re, fmt.Sprintf("retry the stage with 'relay modify %s --from %s'", id, stage))
}

// wrapError gives any error returned by a command a code and a hint.
func wrapError(err error) *CLIError {
	var ce *CLIError
	if stderrors.As(err, &ce) {
		return ce
	}
	var re *errors.RelayError
	if stderrors.As(err, &re) {
		return NewCLIError(re, hintFor(re.Code))
	}
	return NewCLIError(errors.New(errors.CodeInternal, err.Error(), nil), "")
}

func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeValidation:
		return "run the command with --help to see accepted values"
	case errors.CodeNotFound:
		return "list sessions with 'relay audit' or check the session store settings"
	case errors.CodeNetwork, errors.CodeTimeout:
		return "check that the model endpoint is reachable or use llm.provider=mock"
	case errors.CodeQuota:
		return "the provider quota is exhausted; try again later or switch providers"
	case errors.CodePipeline:
		return "inspect the session with 'relay show <id>'"
	default:
		return ""
	}
}

func commandFor(resource string) string {
	switch resource {
	case "pipeline":
		return "graph"
	default:
		return "show"
	}
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeNetwork:
		return "Network Error"
	case errors.CodeQuota:
		return "Quota Exceeded"
	case errors.CodeInvalidResponse:
		return "Invalid Response"
	case errors.CodeValidation:
		return "Invalid Input"
	case errors.CodePipeline:
		return "Pipeline Error"
	case errors.CodeTimeout:
		return "Timeout"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeContextLost:
		return "Context Lost"
	default:
		return string(code)
	}
}
