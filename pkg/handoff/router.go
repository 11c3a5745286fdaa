package handoff

import (
	"fmt"

	"github.com/jllopis/relay/pkg/session"
)

// Outcome classifies a terminal decision.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeFailed   Outcome = "failed"
)

// StageInput is everything an agent may see: the request and read-only
// copies of the upstream results its stage declared in Reads.
type StageInput struct {
	Stage string `json:"stage"`
	Agent string `json:"agent,omitempty"`
	// Index is the stage's declaration position, used to derive its seed.
	Index    int                            `json:"index"`
	Request  session.Request                `json:"request"`
	Upstream map[string]session.AgentResult `json:"upstream,omitempty"`
}

// Result returns the upstream result of stage if it was read and succeeded.
func (in StageInput) Result(stage string) (session.AgentResult, bool) {
	r, ok := in.Upstream[stage]
	if !ok || !r.Success {
		return session.AgentResult{}, false
	}
	return r.Clone(), true
}

// WithRequest returns a copy of the input carrying req.
func (in StageInput) WithRequest(req session.Request) StageInput {
	in.Request = req.Clone()
	return in
}

// Seed derives the stage's random seed from the request seed.
func (in StageInput) Seed() int64 {
	return in.Request.Seed + int64(in.Index)
}

// Decision is the router's answer: either the next stage with its input,
// or a terminal outcome. Decisions are plain values and compare with
// reflect.DeepEqual.
type Decision struct {
	Next     string     `json:"next,omitempty"`
	Input    StageInput `json:"input"`
	Terminal bool       `json:"terminal"`
	Outcome  Outcome    `json:"outcome,omitempty"`
	// Stage names the blocking stage of a failed decision.
	Stage  string `json:"stage,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Router maps (current stage, accumulated context) to the next decision.
// It holds no state besides its immutable pipeline.
type Router struct {
	pipeline *Pipeline
	adj      map[string][]Edge
	conds    map[Edge]condition
}

// NewRouter validates p and builds a router over it.
func NewRouter(p *Pipeline) (*Router, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r := &Router{
		pipeline: p,
		adj:      p.adjacency(),
		conds:    make(map[Edge]condition, len(p.Edges)),
	}
	for _, edge := range p.Edges {
		c, err := parseCondition(edge.Condition)
		if err != nil {
			return nil, err
		}
		r.conds[edge] = c
	}
	return r, nil
}

// Pipeline returns the router's pipeline.
func (r *Router) Pipeline() *Pipeline {
	return r.pipeline
}

// Next decides what follows stage. An empty stage means the pipeline has
// not started yet. The router never advances past a missing or failed
// upstream result: it returns a failed terminal decision naming it.
func (r *Router) Next(stage string, results map[string]session.AgentResult) Decision {
	if stage == "" {
		return r.enter(r.pipeline.StartStage(), results)
	}
	if _, ok := r.pipeline.Stage(stage); !ok {
		return failed(stage, fmt.Sprintf("stage %q is not part of pipeline %q", stage, r.pipeline.ID))
	}
	if res, ok := results[stage]; !ok || !res.Success {
		return failed(stage, fmt.Sprintf("stage %q has no successful result", stage))
	}

	for _, edge := range r.adj[stage] {
		if r.conds[edge].eval(results) {
			return r.enter(edge.To, results)
		}
	}
	return Decision{Terminal: true, Outcome: OutcomeComplete}
}

func (r *Router) enter(id string, results map[string]session.AgentResult) Decision {
	st, _ := r.pipeline.Stage(id)
	for _, dep := range st.Requires {
		if res, ok := results[dep]; !ok || !res.Success {
			return failed(dep, fmt.Sprintf("stage %q requires a successful %q result", id, dep))
		}
	}

	input := StageInput{
		Stage: st.ID,
		Agent: st.Agent,
		Index: r.pipeline.Index(st.ID),
	}
	for _, name := range st.Reads {
		if res, ok := results[name]; ok && res.Success {
			if input.Upstream == nil {
				input.Upstream = make(map[string]session.AgentResult, len(st.Reads))
			}
			input.Upstream[name] = res.Clone()
		}
	}
	return Decision{Next: st.ID, Input: input}
}

func failed(stage, reason string) Decision {
	return Decision{Terminal: true, Outcome: OutcomeFailed, Stage: stage, Reason: reason}
}
