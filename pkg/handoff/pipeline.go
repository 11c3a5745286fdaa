// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package handoff defines the table-driven pipelines that decide which
// specialized agent runs next and what context it receives.
package handoff

import (
	"fmt"
	"strings"
)

// Pipeline is a declarative stage graph for one domain.
type Pipeline struct {
	ID          string  `json:"id" yaml:"id"`
	Domain      string  `json:"domain" yaml:"domain"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Start       string  `json:"start,omitempty" yaml:"start,omitempty"`
	Stages      []Stage `json:"stages" yaml:"stages"`
	Edges       []Edge  `json:"edges,omitempty" yaml:"edges,omitempty"`
}

// Stage is one step of a pipeline.
type Stage struct {
	ID    string `json:"id" yaml:"id"`
	Agent string `json:"agent,omitempty" yaml:"agent,omitempty"`
	// Reads lists upstream stages whose results are passed to the agent.
	Reads []string `json:"reads,omitempty" yaml:"reads,omitempty"`
	// Requires lists upstream stages that must have succeeded before this
	// stage may run.
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
	// Inputs lists the request fields (dotted, e.g. "travel.mood") the
	// stage depends on. A prefix such as "travel" covers every field below it.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	// Optional stages may be skipped by a branch without blocking the plan.
	Optional    bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Edge is a transition between stages. Edges leaving the same stage are
// evaluated in declaration order and the first matching one wins.
type Edge struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Validate ensures the pipeline is well-formed and acyclic.
func (p *Pipeline) Validate() error {
	if p == nil {
		return fmt.Errorf("pipeline is nil")
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("pipeline id is required")
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline %q has no stages", p.ID)
	}

	seen := make(map[string]bool, len(p.Stages))
	for i, st := range p.Stages {
		if st.ID == "" {
			return fmt.Errorf("stage %d: id is required", i)
		}
		if seen[st.ID] {
			return fmt.Errorf("duplicate stage %q", st.ID)
		}
		seen[st.ID] = true
	}
	for _, st := range p.Stages {
		for _, dep := range append(append([]string(nil), st.Reads...), st.Requires...) {
			if !seen[dep] {
				return fmt.Errorf("stage %q references unknown stage %q", st.ID, dep)
			}
			if dep == st.ID {
				return fmt.Errorf("stage %q cannot depend on itself", st.ID)
			}
		}
	}
	if p.Start != "" && !seen[p.Start] {
		return fmt.Errorf("start stage %q not found", p.Start)
	}

	for _, edge := range p.Edges {
		if edge.From == "" || edge.To == "" {
			return fmt.Errorf("edge must include from/to")
		}
		if !seen[edge.From] {
			return fmt.Errorf("edge from %q not found", edge.From)
		}
		if !seen[edge.To] {
			return fmt.Errorf("edge to %q not found", edge.To)
		}
		if _, err := parseCondition(edge.Condition); err != nil {
			return fmt.Errorf("edge %s -> %s: %w", edge.From, edge.To, err)
		}
	}
	return p.checkAcyclic()
}

func (p *Pipeline) checkAcyclic() error {
	adj := p.adjacency()
	const (
		unvisited = iota
		visiting
		done
	)
	mark := make(map[string]int, len(p.Stages))
	var visit func(id string) error
	visit = func(id string) error {
		switch mark[id] {
		case visiting:
			return fmt.Errorf("cycle detected at stage %q", id)
		case done:
			return nil
		}
		mark[id] = visiting
		for _, edge := range adj[id] {
			if err := visit(edge.To); err != nil {
				return err
			}
		}
		mark[id] = done
		return nil
	}
	for _, st := range p.Stages {
		if err := visit(st.ID); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) adjacency() map[string][]Edge {
	adj := make(map[string][]Edge, len(p.Stages))
	for _, edge := range p.Edges {
		adj[edge.From] = append(adj[edge.From], edge)
	}
	return adj
}

// StartStage returns the declared start or the first stage.
func (p *Pipeline) StartStage() string {
	if p.Start != "" {
		return p.Start
	}
	return p.Stages[0].ID
}

// Stage looks up a stage by id.
func (p *Pipeline) Stage(id string) (Stage, bool) {
	for _, st := range p.Stages {
		if st.ID == id {
			return st, true
		}
	}
	return Stage{}, false
}

// Index returns the declaration position of a stage, or -1.
func (p *Pipeline) Index(id string) int {
	for i, st := range p.Stages {
		if st.ID == id {
			return i
		}
	}
	return -1
}

// StageNames lists the stages in declaration order.
func (p *Pipeline) StageNames() []string {
	out := make([]string, len(p.Stages))
	for i, st := range p.Stages {
		out[i] = st.ID
	}
	return out
}

// Required lists the stages a complete plan must contain.
func (p *Pipeline) Required() []string {
	var out []string
	for _, st := range p.Stages {
		if !st.Optional {
			out = append(out, st.ID)
		}
	}
	return out
}

// Divergence returns the first stage of order whose declared inputs cover
// any of the changed request fields, or "" when none is affected.
func (p *Pipeline) Divergence(order []string, changed []string) string {
	if len(changed) == 0 {
		return ""
	}
	for _, id := range order {
		st, ok := p.Stage(id)
		if !ok {
			continue
		}
		for _, input := range st.Inputs {
			for _, field := range changed {
				if coversField(input, field) {
					return id
				}
			}
		}
	}
	return ""
}

func coversField(input, field string) bool {
	return input == field || strings.HasPrefix(field, input+".")
}
