// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package guardrails

import (
	"context"
	"regexp"
	"sort"
)

// PromptInjectionDetector flags text that tries to steer the agent prompts
// instead of describing a trip, a move or a question. Detection is pattern
// based and grouped by technique.
type PromptInjectionDetector struct {
	rules      []injectionRule
	threshold  float64
	strictMode bool
}

type injectionRule struct {
	technique string
	re        *regexp.Regexp
}

// PromptInjectionOption configures the prompt injection detector.
type PromptInjectionOption func(*PromptInjectionDetector)

// Techniques and the phrasings that give them away. "act as", "roleplay"
// and "enter the X" are ordinary game actions and are not listed.
var injectionTechniques = map[string][]string{
	"override": {
		`(?i)(ignore|disregard|forget|override)\s+(all\s+)?(the\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?)`,
		`(?i)new\s+instructions?\s*:`,
	},
	"persona": {
		`(?i)you\s+are\s+now\s+(a|an|the)\s+`,
		`(?i)pretend\s+(you\s+are|to\s+be)\s+(a|an)\s+(system|ai|assistant|model)`,
		`(?i)pretend\s+to\s+be\s+a\s+\w+\s+with\s+no\s+restrictions`,
		`(?i)switch\s+to\s+\w+\s+mode`,
	},
	"extraction": {
		`(?i)(what|show|reveal|print|display|repeat)\s+(is|are|me)?\s*your\s+(system\s+)?(prompt|instructions?)`,
	},
	"jailbreak": {
		`(?i)do\s+anything\s+now`,
		`(?i)\bDAN\s+mode`,
		`(?i)jailbreak`,
		`(?i)bypass\s+(the\s+)?(safety|content|filters?|guardrails?)`,
		`(?i)(developer|debug|sudo|admin|maintenance)\s+mode`,
	},
	"delimiter": {
		`(?i)\]\]\s*system\s*:`,
		`<\|[^|]*\|>`,
		`(?i)\[/?INST\]`,
		`(?i)<</?SYS>>`,
		"(?i)```\\s*system",
	},
}

// NewPromptInjectionDetector creates a detector with the built in rules.
func NewPromptInjectionDetector(opts ...PromptInjectionOption) *PromptInjectionDetector {
	d := &PromptInjectionDetector{}
	techniques := make([]string, 0, len(injectionTechniques))
	for t := range injectionTechniques {
		techniques = append(techniques, t)
	}
	sort.Strings(techniques)
	for _, t := range techniques {
		for _, p := range injectionTechniques[t] {
			d.rules = append(d.rules, injectionRule{technique: t, re: regexp.MustCompile(p)})
		}
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithInjectionPatterns adds patterns reported under the "custom"
// technique. Patterns that do not compile are ignored.
func WithInjectionPatterns(patterns []string) PromptInjectionOption {
	return func(d *PromptInjectionDetector) {
		for _, p := range patterns {
			if re, err := regexp.Compile(p); err == nil {
				d.rules = append(d.rules, injectionRule{technique: "custom", re: re})
			}
		}
	}
}

// WithInjectionThreshold sets the confidence a match must reach to block.
func WithInjectionThreshold(threshold float64) PromptInjectionOption {
	return func(d *PromptInjectionDetector) {
		if threshold >= 0 && threshold <= 1 {
			d.threshold = threshold
		}
	}
}

// WithStrictMode blocks on the first match with full confidence.
func WithStrictMode(strict bool) PromptInjectionOption {
	return func(d *PromptInjectionDetector) {
		d.strictMode = strict
	}
}

// ID returns the guardrail identifier.
func (d *PromptInjectionDetector) ID() string {
	return "prompt-injection"
}

// CheckInput scans input against every rule. Confidence grows with the
// number of distinct techniques found: 0.7 for one, +0.15 for each other.
func (d *PromptInjectionDetector) CheckInput(ctx context.Context, input string) CheckResult {
	if input == "" {
		return CheckResult{}
	}

	seen := make(map[string]bool)
	var techniques []string
	for _, rule := range d.rules {
		if ctx.Err() != nil {
			return CheckResult{}
		}
		if !rule.re.MatchString(input) {
			continue
		}
		if d.strictMode {
			return d.blocked(1.0, []string{rule.technique})
		}
		if !seen[rule.technique] {
			seen[rule.technique] = true
			techniques = append(techniques, rule.technique)
		}
	}
	if len(techniques) == 0 {
		return CheckResult{}
	}

	confidence := 0.7 + 0.15*float64(len(techniques)-1)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < d.threshold {
		return CheckResult{Confidence: confidence}
	}
	return d.blocked(confidence, techniques)
}

func (d *PromptInjectionDetector) blocked(confidence float64, techniques []string) CheckResult {
	return CheckResult{
		Blocked:     true,
		Reason:      "text reads as instructions to the assistant",
		GuardrailID: d.ID(),
		Confidence:  confidence,
		Metadata:    map[string]any{"techniques": techniques},
	}
}

// WithPromptInjectionDetector adds a prompt injection detector.
func WithPromptInjectionDetector(opts ...PromptInjectionOption) Option {
	return func(g *Guardrails) {
		g.inputCheckers = append(g.inputCheckers, NewPromptInjectionDetector(opts...))
	}
}
