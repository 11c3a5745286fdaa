// SPDX-License-Identifier: Apache-2.0
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	re := New(CodeNetwork, "model endpoint unreachable", cause)

	if re.Code != CodeNetwork {
		t.Errorf("expected CodeNetwork, got %v", re.Code)
	}
	if re.Message != "model endpoint unreachable" {
		t.Errorf("unexpected message %q", re.Message)
	}
	if !errors.Is(re, cause) {
		t.Errorf("expected errors.Is to work with wrapped error")
	}
	if !re.Recoverable {
		t.Errorf("network errors should start out recoverable")
	}
}

func TestDefaultRecoverable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{CodeNetwork, true},
		{CodeQuota, true},
		{CodeInvalidResponse, true},
		{CodeTimeout, true},
		{CodeValidation, false},
		{CodePipeline, false},
		{CodeInternal, false},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x", nil).Recoverable; got != tt.want {
			t.Errorf("%s: expected recoverable=%v, got %v", tt.code, tt.want, got)
		}
	}
}

func TestWithContextAndAttributes(t *testing.T) {
	re := New(CodeInvalidResponse, "unparseable reply", nil).
		WithContext("stage", "booking").
		WithAttribute("relay.provider", "gemini").
		WithRecoverable(false)

	if re.Context["stage"] != "booking" {
		t.Errorf("expected context stage to be booking")
	}
	if re.Attributes["relay.provider"] != "gemini" {
		t.Errorf("expected provider attribute")
	}
	if re.Recoverable {
		t.Errorf("expected recoverable false after WithRecoverable(false)")
	}
}

func TestPipelineCarriesStage(t *testing.T) {
	re := Pipeline("destination", "upstream result missing")
	if re.Stage() != "destination" {
		t.Fatalf("expected stage destination, got %q", re.Stage())
	}
	if re.StatusCode != 409 {
		t.Fatalf("expected 409, got %d", re.StatusCode)
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		re       *RelayError
		expected string
	}{
		{
			name:     "with cause",
			re:       New(CodeTimeout, "completion timed out", errors.New("deadline exceeded")),
			expected: "[TIMEOUT] completion timed out: deadline exceeded",
		},
		{
			name:     "without cause",
			re:       New(CodeNotFound, "session not found", nil),
			expected: "[NOT_FOUND] session not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.re.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestAsRelayError(t *testing.T) {
	wrapped := fmt.Errorf("stage failed: %w", New(CodeQuota, "quota", nil))

	tests := []struct {
		name     string
		err      error
		expected ErrorCode
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "already RelayError", err: New(CodeValidation, "bad", nil), expected: CodeValidation},
		{name: "wrapped RelayError", err: wrapped, expected: CodeQuota},
		{name: "generic error", err: errors.New("generic"), expected: CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := AsRelayError(tt.err)
			if tt.expected == "" {
				if re != nil {
					t.Errorf("expected nil for nil error")
				}
				return
			}
			if re == nil {
				t.Fatalf("expected non-nil RelayError")
			}
			if re.Code != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, re.Code)
			}
		})
	}
}

func TestIsClientFailure(t *testing.T) {
	if !IsClientFailure(fmt.Errorf("x: %w", New(CodeNetwork, "n", nil))) {
		t.Errorf("network error should be a client failure")
	}
	if IsClientFailure(Validation("mood", "unknown mood")) {
		t.Errorf("validation error is not a client failure")
	}
	if IsClientFailure(errors.New("plain")) {
		t.Errorf("plain error is not a client failure")
	}
}

func TestMarshalJSON(t *testing.T) {
	re := New(CodePipeline, "plan unavailable", errors.New("session failed")).
		WithContext("stage", "destination")

	data, err := json.Marshal(re)
	if err != nil {
		t.Fatalf("unexpected error marshaling: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unexpected error unmarshaling: %v", err)
	}

	if result["code"] != "PIPELINE_ERROR" {
		t.Errorf("expected code PIPELINE_ERROR, got %v", result["code"])
	}
	if result["error"] != "session failed" {
		t.Errorf("expected cause in error field, got %v", result["error"])
	}
	ctx, _ := result["context"].(map[string]interface{})
	if ctx["stage"] != "destination" {
		t.Errorf("expected stage in context, got %v", result["context"])
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{CodeNotFound, 404},
		{CodeValidation, 400},
		{CodeTimeout, 408},
		{CodeQuota, 429},
		{CodePipeline, 409},
		{CodeNetwork, 502},
		{CodeInternal, 500},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "test", nil).StatusCode; got != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, got)
			}
		})
	}
}
