// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the specialized agents that run pipeline stages
// and the registry the coordinator dispatches through.
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/session"
)

// Agent runs one pipeline stage. Handle never panics and never returns an
// error: every failure is reported as a failed AgentResult.
type Agent interface {
	Name() string
	Handle(ctx context.Context, in handoff.StageInput) session.AgentResult
}

// Func adapts a function to the Agent interface. Panics are recovered.
type Func struct {
	AgentName string
	Fn        func(ctx context.Context, in handoff.StageInput) session.AgentResult
}

// Name implements Agent.
func (f Func) Name() string { return f.AgentName }

// Handle implements Agent.
func (f Func) Handle(ctx context.Context, in handoff.StageInput) (res session.AgentResult) {
	defer recoverInto(&res, in.Stage, f.AgentName)
	res = f.Fn(ctx, in)
	if res.Stage == "" {
		res.Stage = in.Stage
	}
	if res.Agent == "" {
		res.Agent = f.AgentName
	}
	return res
}

// Invoke calls a.Handle and turns a panic into a failed result, for
// agents that do not recover on their own.
func Invoke(ctx context.Context, a Agent, in handoff.StageInput) (res session.AgentResult) {
	defer recoverInto(&res, in.Stage, a.Name())
	return a.Handle(ctx, in)
}

func recoverInto(res *session.AgentResult, stage, name string) {
	if r := recover(); r != nil {
		*res = session.Failed(stage, string(errors.CodeInternal), fmt.Errorf("agent %s panicked: %v", name, r))
		res.Agent = name
	}
}

// failure converts an error into a failed result carrying its code.
func failure(stage string, err error) session.AgentResult {
	re := errors.AsRelayError(err)
	return session.Failed(stage, string(re.Code), err)
}

// Registry maps stage names to agents. It is the only way the coordinator
// finds the agent for a stage.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register binds an agent to a stage, replacing any previous binding.
func (r *Registry) Register(stage string, a Agent) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[stage] = a
	return r
}

// Lookup returns the agent bound to stage.
func (r *Registry) Lookup(stage string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[stage]
	return a, ok
}

// Stages lists the bound stages, sorted.
func (r *Registry) Stages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for s := range r.agents {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Covers checks that every stage of p has an agent.
func (r *Registry) Covers(p *handoff.Pipeline) error {
	for _, st := range p.Stages {
		if _, ok := r.Lookup(st.ID); !ok {
			return errors.New(errors.CodeNotFound, fmt.Sprintf("no agent registered for stage %q", st.ID), nil).
				WithContext("pipeline", p.ID).
				WithContext("stage", st.ID)
		}
	}
	return nil
}
