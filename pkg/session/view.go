package session

import (
	"time"

	"github.com/jllopis/relay/pkg/errors"
)

// View is a read-only snapshot of a session. It shares no memory with the
// State it was taken from.
type View struct {
	ID            string                 `json:"id"`
	Domain        Domain                 `json:"domain"`
	PipelineID    string                 `json:"pipeline_id"`
	Status        Status                 `json:"status"`
	Request       Request                `json:"request"`
	CurrentStage  string                 `json:"current_stage"`
	LastStage     string                 `json:"last_successful_stage,omitempty"`
	FailedStage   string                 `json:"failed_stage,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
	Results       []AgentResult          `json:"results"`
	Context       map[string]AgentResult `json:"-"`
	Modifications int                    `json:"modifications,omitempty"`
	Plan          *CompositePlan         `json:"plan,omitempty"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// View takes a deep-copied snapshot of the state.
func (s *State) View() View {
	c := s.Clone()
	return View{
		ID:            c.ID,
		Domain:        c.Domain,
		PipelineID:    c.PipelineID,
		Status:        c.Status,
		Request:       c.Request,
		CurrentStage:  c.CurrentStage,
		LastStage:     c.LastSuccessful(),
		FailedStage:   c.FailedStage,
		LastError:     c.LastError,
		Results:       c.Results(),
		Context:       c.Context,
		Modifications: c.Modifications,
		Plan:          c.Plan,
		UpdatedAt:     c.UpdatedAt,
	}
}

// Partial returns the payloads computed so far, in stage order. A FAILED
// session keeps these for display instead of discarding them.
func (v View) Partial() []StagePayload {
	out := make([]StagePayload, 0, len(v.Results))
	for _, r := range v.Results {
		out = append(out, StagePayload{Stage: r.Stage, Source: r.Source, Payload: ClonePayload(r.Payload)})
	}
	return out
}

// StagePayload is one stage's contribution to a CompositePlan.
type StagePayload struct {
	Stage   string  `json:"stage"`
	Source  Source  `json:"source"`
	Payload Payload `json:"payload"`
}

// CompositePlan is the final multi-stage output of a completed session.
type CompositePlan struct {
	SessionID string         `json:"session_id"`
	Domain    Domain         `json:"domain"`
	Stages    []StagePayload `json:"stages"`
	Sources   []Source       `json:"sources"`
	Summary   string         `json:"summary,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Clone deep-copies the plan.
func (p CompositePlan) Clone() CompositePlan {
	out := p
	out.Stages = make([]StagePayload, len(p.Stages))
	for i, sp := range p.Stages {
		out.Stages[i] = StagePayload{Stage: sp.Stage, Source: sp.Source, Payload: ClonePayload(sp.Payload)}
	}
	out.Sources = append([]Source(nil), p.Sources...)
	return out
}

// Payload returns the payload recorded for stage.
func (p CompositePlan) Payload(stage string) (Payload, bool) {
	for _, sp := range p.Stages {
		if sp.Stage == stage {
			return ClonePayload(sp.Payload), true
		}
	}
	return nil, false
}

// StageNames lists the plan's stages in order.
func (p CompositePlan) StageNames() []string {
	out := make([]string, len(p.Stages))
	for i, sp := range p.Stages {
		out[i] = sp.Stage
	}
	return out
}

// MockSourced reports whether any stage fell back to mock data.
func (p CompositePlan) MockSourced() bool {
	for _, s := range p.Sources {
		if s == SourceMock {
			return true
		}
	}
	return false
}

// BuildPlan assembles the composite plan from the merged results. required
// lists the stages that must have succeeded; the build is refused with a
// PIPELINE_ERROR naming the offending stage otherwise.
func (s *State) BuildPlan(required []string, summary string, now time.Time) (CompositePlan, error) {
	if s.Status != StatusComplete {
		stage := s.FailedStage
		if stage == "" {
			stage = s.CurrentStage
		}
		return CompositePlan{}, errors.Pipeline(stage, "plan is only available for completed sessions").
			WithContext("status", string(s.Status)).
			WithContext("session_id", s.ID)
	}
	for _, stage := range required {
		r, ok := s.Context[stage]
		if !ok || !r.Success {
			return CompositePlan{}, errors.Pipeline(stage, "required stage has no successful result").
				WithContext("session_id", s.ID)
		}
	}

	plan := CompositePlan{
		SessionID: s.ID,
		Domain:    s.Domain,
		Summary:   summary,
		CreatedAt: now.UTC(),
	}
	for _, stage := range s.Order {
		r := s.Context[stage]
		plan.Stages = append(plan.Stages, StagePayload{Stage: stage, Source: r.Source, Payload: ClonePayload(r.Payload)})
		plan.Sources = append(plan.Sources, r.Source)
	}
	return plan, nil
}
