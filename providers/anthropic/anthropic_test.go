// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package anthropic

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/llm"
)

func TestNewProvider(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != "claude-sonnet-4-20250514" {
		t.Errorf("expected model claude-sonnet-4-20250514, got %s", p.model)
	}
	if p.maxTokens != 4096 {
		t.Errorf("expected maxTokens 4096, got %d", p.maxTokens)
	}
}

func TestWithMaxTokens(t *testing.T) {
	p := New(WithMaxTokens(8192))
	if p.maxTokens != 8192 {
		t.Errorf("expected maxTokens 8192, got %d", p.maxTokens)
	}
}

func TestParamsSystemPrompt(t *testing.T) {
	p := New()
	params := p.params(llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Rank games."},
			{Role: llm.RoleUser, Content: "strategy"},
		},
		MaxTokens: 300,
		JSON:      true,
	})

	require.Len(t, params.System, 1)
	assert.Contains(t, params.System[0].Text, "Rank games.")
	assert.Contains(t, params.System[0].Text, jsonInstruction)
	assert.Len(t, params.Messages, 1)
	assert.Equal(t, int64(300), params.MaxTokens)
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "{\"games\": "}, {"type": "text", "text": "[]}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 4}
		}`)
	}))
	defer srv.Close()

	p := NewWithAPIKey("test-key", WithBaseURL(srv.URL))
	resp, err := p.Chat(t.Context(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"games": []}`, resp.Content)
	assert.Equal(t, 14, resp.Usage.TotalTokens)
}

func TestChatRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"type": "error", "error": {"type": "rate_limit_error", "message": "slow down"}}`)
	}))
	defer srv.Close()

	p := NewWithAPIKey("test-key", WithBaseURL(srv.URL))
	_, err := p.Chat(t.Context(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	})
	assert.True(t, errors.IsCode(err, errors.CodeQuota), "got %v", err)
}
