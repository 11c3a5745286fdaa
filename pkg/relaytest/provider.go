// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package relaytest

import (
	"context"
	"strings"
	"sync"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/llm"
)

// ScenarioProvider is a scripted llm.Provider. Responses are consumed in
// order; a response with a condition is skipped until a request matches it.
type ScenarioProvider struct {
	mu           sync.Mutex
	responses    []ScriptedResponse
	requests     []llm.ChatRequest
	defaultError error
}

// ScriptedResponse defines one reply of the scenario provider.
type ScriptedResponse struct {
	Content string
	Error   error
	// Condition restricts the response to matching requests.
	Condition func(req llm.ChatRequest) bool
}

// NewScenarioProvider creates a provider that answers with a quota error
// once its script runs out.
func NewScenarioProvider() *ScenarioProvider {
	return &ScenarioProvider{
		defaultError: errors.New(errors.CodeQuota, "scenario provider: script exhausted", nil),
	}
}

// FailingProvider fails every call with code.
func FailingProvider(code errors.ErrorCode) *ScenarioProvider {
	return NewScenarioProvider().WithDefaultError(errors.New(code, "scenario provider: scripted failure", nil))
}

// AddResponse queues a reply.
func (p *ScenarioProvider) AddResponse(content string) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Content: content})
}

// AddErrorResponse queues a failure.
func (p *ScenarioProvider) AddErrorResponse(err error) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{Error: err})
}

// AddResponseWhen queues a reply served only to a prompt containing substr.
func (p *ScenarioProvider) AddResponseWhen(substr, content string) *ScenarioProvider {
	return p.AddScriptedResponse(ScriptedResponse{
		Content:   content,
		Condition: PromptContains(substr),
	})
}

// AddScriptedResponse adds a fully configured response.
func (p *ScenarioProvider) AddScriptedResponse(resp ScriptedResponse) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, resp)
	return p
}

// WithDefaultError sets the error returned when nothing in the script applies.
func (p *ScenarioProvider) WithDefaultError(err error) *ScenarioProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultError = err
	return p
}

// Chat implements llm.Provider.
func (p *ScenarioProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, resp := range p.responses {
		if resp.Condition != nil && !resp.Condition(req) {
			continue
		}
		p.responses = append(p.responses[:i:i], p.responses[i+1:]...)
		if resp.Error != nil {
			return nil, resp.Error
		}
		return &llm.ChatResponse{Content: resp.Content}, nil
	}
	return nil, p.defaultError
}

// Client wraps the provider the way production code wraps a backend.
func (p *ScenarioProvider) Client(opts ...llm.ClientOption) llm.Client {
	return llm.NewClient(p, append([]llm.ClientOption{llm.WithProviderName("scenario")}, opts...)...)
}

// Requests returns all captured requests.
func (p *ScenarioProvider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]llm.ChatRequest, len(p.requests))
	copy(result, p.requests)
	return result
}

// CallCount returns the number of Chat calls made.
func (p *ScenarioProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Remaining returns how many scripted responses are still queued.
func (p *ScenarioProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.responses)
}

// PromptContains matches requests whose user prompt contains substr.
func PromptContains(substr string) func(llm.ChatRequest) bool {
	return func(req llm.ChatRequest) bool {
		for _, m := range req.Messages {
			if m.Role == llm.RoleUser && strings.Contains(m.Content, substr) {
				return true
			}
		}
		return false
	}
}
