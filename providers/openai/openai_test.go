// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package openai

import (
	"encoding/json"
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
	if p.model != "gpt-5-mini" {
		t.Errorf("expected model gpt-5-mini, got %s", p.model)
	}
}

func TestWithModel(t *testing.T) {
	p := New(WithModel("gpt-4o"))
	if p.model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %s", p.model)
	}
}

func TestParams(t *testing.T) {
	p := New(WithModel("gpt-4o"))
	params := p.params(llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "rank destinations"},
			{Role: llm.RoleUser, Content: "culture"},
		},
		Temperature: 0.2,
		MaxTokens:   256,
		JSON:        true,
	})

	assert.Equal(t, "gpt-4o", params.Model)
	assert.Len(t, params.Messages, 2)
	assert.NotNil(t, params.Messages[0].OfSystem)
	assert.NotNil(t, params.Messages[1].OfUser)
	assert.Equal(t, 0.2, params.Temperature.Value)
	assert.Equal(t, int64(256), params.MaxCompletionTokens.Value)
	assert.NotNil(t, params.ResponseFormat.OfJSONObject)
}

func TestChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"destinations\": []}"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`)
	}))
	defer srv.Close()

	p := NewWithAPIKey("test-key", WithBaseURL(srv.URL), WithModel("gpt-4o"))
	resp, err := p.Chat(t.Context(), llm.ChatRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"destinations": []}`, resp.Content)
	assert.Equal(t, 17, resp.Usage.TotalTokens)
	assert.Equal(t, "gpt-4o", body["model"])
}

func TestChatClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   errors.ErrorCode
	}{
		{http.StatusTooManyRequests, errors.CodeQuota},
		{http.StatusServiceUnavailable, errors.CodeNetwork},
		{http.StatusBadRequest, errors.CodeInvalidResponse},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"error": {"message": "nope", "type": "error"}}`)
		}))

		p := NewWithAPIKey("test-key", WithBaseURL(srv.URL))
		_, err := p.Chat(t.Context(), llm.ChatRequest{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
		})
		srv.Close()
		assert.True(t, errors.IsCode(err, tt.want), "status %d: got %v", tt.status, err)
	}
}
