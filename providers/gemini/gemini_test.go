// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/llm"
)

func TestWithModel(t *testing.T) {
	opt := WithModel("gemini-2.5-pro")
	p := &Provider{model: "gemini-3-flash-preview"}
	opt(p)
	if p.model != "gemini-2.5-pro" {
		t.Errorf("expected model gemini-2.5-pro, got %s", p.model)
	}
}

func TestNewWithAPIKey(t *testing.T) {
	p, err := NewWithAPIKey(context.Background(), "test-key", WithBaseURL("http://127.0.0.1:1"))
	require.NoError(t, err)
	assert.Equal(t, "gemini-3-flash-preview", p.model)
	assert.Equal(t, "test-key", p.config.APIKey)
	assert.Equal(t, "http://127.0.0.1:1", p.config.HTTPOptions.BaseURL)
}

func TestConvertMessages(t *testing.T) {
	contents, system := convertMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "You pick careers"},
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleAssistant, Content: "Hi there"},
	})

	assert.Equal(t, "You pick careers", system)
	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
}

func TestGenerateConfig(t *testing.T) {
	cfg := generateConfig(llm.ChatRequest{Temperature: 0.5, MaxTokens: 128, JSON: true}, "sys")
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "sys", cfg.SystemInstruction.Parts[0].Text)
	assert.Equal(t, float32(0.5), *cfg.Temperature)
	assert.Equal(t, int32(128), cfg.MaxOutputTokens)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)

	plain := generateConfig(llm.ChatRequest{}, "")
	assert.Nil(t, plain.SystemInstruction)
	assert.Nil(t, plain.Temperature)
}

func TestConvertResponse(t *testing.T) {
	resp := convertResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: `{"careers": `}, {Text: `[]}`}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 9},
	})
	assert.Equal(t, `{"careers": []}`, resp.Content)
	assert.Equal(t, 9, resp.Usage.TotalTokens)
}

func TestClassify(t *testing.T) {
	err := classify(genai.APIError{Code: 429, Message: "quota"})
	assert.True(t, errors.IsCode(err, errors.CodeQuota))

	err = classify(context.DeadlineExceeded)
	assert.True(t, errors.IsCode(err, errors.CodeTimeout))
}
