package session

import (
	"time"

	"github.com/jllopis/relay/pkg/errors"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusComplete Status = "COMPLETE"
	StatusFailed   Status = "FAILED"
)

// State is the mutable record of one in-progress request. It is owned by a
// single coordinator and only mutated between router steps; everything
// handed out of it is a copy.
type State struct {
	ID           string                 `json:"id"`
	Domain       Domain                 `json:"domain"`
	PipelineID   string                 `json:"pipeline_id"`
	Request      Request                `json:"request"`
	CurrentStage string                 `json:"current_stage"`
	Context      map[string]AgentResult `json:"context"`
	// Order lists the stages in Context in the order they completed.
	Order         []string       `json:"order"`
	Status        Status         `json:"status"`
	FailedStage   string         `json:"failed_stage,omitempty"`
	FailedResult  *AgentResult   `json:"failed_result,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	Modifications int            `json:"modifications,omitempty"`
	Plan          *CompositePlan `json:"plan,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewState creates an ACTIVE session for an accepted request.
func NewState(id string, req Request, pipelineID string, now time.Time) *State {
	return &State{
		ID:         id,
		Domain:     req.Domain,
		PipelineID: pipelineID,
		Request:    req.Clone(),
		Context:    make(map[string]AgentResult),
		Status:     StatusActive,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}
}

// Merge appends a successful result. A stage may hold at most one result;
// a second one is refused until Rewind clears it.
func (s *State) Merge(r AgentResult, now time.Time) error {
	if !r.Success {
		return errors.Pipeline(r.Stage, "cannot merge a failed result")
	}
	if _, exists := s.Context[r.Stage]; exists {
		return errors.Pipeline(r.Stage, "stage already has a result")
	}
	if s.Context == nil {
		s.Context = make(map[string]AgentResult)
	}
	s.Context[r.Stage] = r.Clone()
	s.Order = append(s.Order, r.Stage)
	s.CurrentStage = r.Stage
	s.UpdatedAt = now.UTC()
	return nil
}

// Fail marks the session FAILED at stage. Results already merged are kept.
func (s *State) Fail(stage string, r *AgentResult, reason string, now time.Time) {
	s.Status = StatusFailed
	s.FailedStage = stage
	s.LastError = reason
	if r != nil {
		clone := r.Clone()
		s.FailedResult = &clone
	}
	s.Plan = nil
	s.UpdatedAt = now.UTC()
}

// Complete stores the plan and marks the session COMPLETE.
func (s *State) Complete(plan CompositePlan, now time.Time) {
	s.Status = StatusComplete
	s.FailedStage = ""
	s.FailedResult = nil
	s.LastError = ""
	p := plan.Clone()
	s.Plan = &p
	s.UpdatedAt = now.UTC()
}

// Rewind clears stage and every stage completed after it, resets the status
// to ACTIVE and points CurrentStage at the last surviving stage. It returns
// the cleared stages. An empty stage clears nothing but still reactivates.
func (s *State) Rewind(stage string, now time.Time) []string {
	idx := len(s.Order)
	for i, name := range s.Order {
		if name == stage {
			idx = i
			break
		}
	}
	cleared := append([]string(nil), s.Order[idx:]...)
	for _, name := range cleared {
		delete(s.Context, name)
	}
	s.Order = s.Order[:idx]
	s.CurrentStage = ""
	if idx > 0 {
		s.CurrentStage = s.Order[idx-1]
	}
	s.Status = StatusActive
	s.FailedStage = ""
	s.FailedResult = nil
	s.LastError = ""
	s.Plan = nil
	s.UpdatedAt = now.UTC()
	return cleared
}

// LastSuccessful returns the most recently completed stage.
func (s *State) LastSuccessful() string {
	if len(s.Order) == 0 {
		return ""
	}
	return s.Order[len(s.Order)-1]
}

// Results returns copies of the merged results in completion order.
func (s *State) Results() []AgentResult {
	out := make([]AgentResult, 0, len(s.Order))
	for _, name := range s.Order {
		out = append(out, s.Context[name].Clone())
	}
	return out
}

// ContextView returns a deep copy of the accumulated context.
func (s *State) ContextView() map[string]AgentResult {
	out := make(map[string]AgentResult, len(s.Context))
	for k, v := range s.Context {
		out[k] = v.Clone()
	}
	return out
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := *s
	out.Request = s.Request.Clone()
	out.Context = s.ContextView()
	out.Order = append([]string(nil), s.Order...)
	if s.FailedResult != nil {
		r := s.FailedResult.Clone()
		out.FailedResult = &r
	}
	if s.Plan != nil {
		p := s.Plan.Clone()
		out.Plan = &p
	}
	return &out
}
