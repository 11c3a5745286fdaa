// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package guardrails screens the free-text fields of a request before any
// of it is interpolated into a model prompt.
//
// Structured fields (moods, budgets, dates, levels) are validated by the
// session package; guardrails only look at text the user typed freely:
// travel preferences and special requirements, the game action and the
// career query, interests and skills.
//
//	guard := guardrails.New(guardrails.WithPromptInjectionDetector())
//	if err := guard.CheckRequest(ctx, req); err != nil {
//	    return err // VALIDATION_ERROR naming the offending field
//	}
package guardrails

import (
	"context"
	"fmt"
	"sync"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/session"
)

// CheckResult represents the outcome of a guardrail check.
type CheckResult struct {
	// Blocked indicates the content should not proceed.
	Blocked bool

	// Reason explains why content was blocked (empty if not blocked).
	Reason string

	// GuardrailID identifies which guardrail triggered the block.
	GuardrailID string

	// Confidence is the detection confidence (0.0-1.0).
	Confidence float64

	// Metadata contains additional context from the check.
	Metadata map[string]any
}

// InputChecker validates user text before it reaches the model.
type InputChecker interface {
	CheckInput(ctx context.Context, input string) CheckResult
	ID() string
}

// Guardrails runs a chain of input checkers.
type Guardrails struct {
	mu            sync.RWMutex
	inputCheckers []InputChecker
	failOpen      bool

	checked int
	blocked int
}

// Option configures the Guardrails instance.
type Option func(*Guardrails)

// New creates a new Guardrails instance with the given options.
func New(opts ...Option) *Guardrails {
	g := &Guardrails{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithInputChecker adds an input checker to the guardrails.
func WithInputChecker(checker InputChecker) Option {
	return func(g *Guardrails) {
		g.inputCheckers = append(g.inputCheckers, checker)
	}
}

// WithFailOpen lets content through when a check is cancelled.
// The default is fail-closed.
func WithFailOpen(failOpen bool) Option {
	return func(g *Guardrails) {
		g.failOpen = failOpen
	}
}

// CheckInput runs all input checkers and returns the first blocking result.
func (g *Guardrails) CheckInput(ctx context.Context, input string) CheckResult {
	g.mu.RLock()
	checkers := g.inputCheckers
	g.mu.RUnlock()

	for _, checker := range checkers {
		if ctx.Err() != nil {
			if g.failOpen {
				return CheckResult{}
			}
			return CheckResult{
				Blocked:     true,
				Reason:      "guardrail check cancelled",
				GuardrailID: "system",
			}
		}

		result := checker.CheckInput(ctx, input)
		if result.Blocked {
			result.GuardrailID = checker.ID()
			return result
		}
	}
	return CheckResult{}
}

// CheckRequest screens every free-text field of req. The first blocked
// field is reported as a VALIDATION_ERROR.
func (g *Guardrails) CheckRequest(ctx context.Context, req session.Request) error {
	for _, f := range TextFields(req) {
		result := g.CheckInput(ctx, f.Value)
		g.mu.Lock()
		g.checked++
		if result.Blocked {
			g.blocked++
		}
		g.mu.Unlock()
		if result.Blocked {
			return errors.Validation(f.Name, fmt.Sprintf("%s rejected: %s", f.Name, result.Reason)).
				WithContext("guardrail", result.GuardrailID).
				WithContext("confidence", result.Confidence)
		}
	}
	return nil
}

// Field is one piece of user-typed text and the request path it came from.
type Field struct {
	Name  string
	Value string
}

// TextFields lists the free-text fields of req in a stable order.
func TextFields(req session.Request) []Field {
	var out []Field
	add := func(name string, values ...string) {
		for i, v := range values {
			if v == "" {
				continue
			}
			n := name
			if len(values) > 1 {
				n = fmt.Sprintf("%s[%d]", name, i)
			}
			out = append(out, Field{Name: n, Value: v})
		}
	}
	if t := req.Travel; t != nil {
		add("travel.user_name", t.UserName)
		add("travel.destination_preferences", t.Preferences...)
		add("travel.special_requirements", t.SpecialRequirements...)
	}
	if gr := req.Game; gr != nil {
		add("game.player_name", gr.PlayerName)
		add("game.action", gr.Action)
		add("game.location", gr.Location)
	}
	if c := req.Career; c != nil {
		add("career.query", c.Query)
		add("career.interests", c.Interests...)
		add("career.skills", c.Skills...)
	}
	return out
}

// Stats returns current guardrails statistics.
func (g *Guardrails) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return Stats{
		InputCheckers: len(g.inputCheckers),
		FailOpen:      g.failOpen,
		Checked:       g.checked,
		Blocked:       g.blocked,
	}
}

// Stats contains guardrails runtime statistics.
type Stats struct {
	InputCheckers int  `json:"input_checkers"`
	FailOpen      bool `json:"fail_open"`
	Checked       int  `json:"checked_fields"`
	Blocked       int  `json:"blocked_fields"`
}
