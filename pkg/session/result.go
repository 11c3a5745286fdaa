package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Source records where a stage payload came from.
type Source string

const (
	// SourceModel means the payload was parsed from a model completion.
	SourceModel Source = "model"
	// SourceMock means the model was unavailable and static data was used.
	SourceMock Source = "mock"
	// SourceTool means the stage is pure computation over a seeded source.
	SourceTool Source = "tool"
)

// Payload is the structured output of one stage. Payloads only hold JSON
// shaped values (maps, slices, strings, float64 numbers, bools) so they
// survive persistence unchanged.
type Payload = map[string]any

// AgentResult is the outcome of exactly one agent invocation.
type AgentResult struct {
	Stage      string    `json:"stage"`
	Agent      string    `json:"agent,omitempty"`
	Success    bool      `json:"success"`
	Payload    Payload   `json:"payload,omitempty"`
	Error      string    `json:"error,omitempty"`
	Code       string    `json:"code,omitempty"`
	Source     Source    `json:"source,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	ProducedAt time.Time `json:"produced_at"`
}

// Succeeded builds a successful result.
func Succeeded(stage string, source Source, payload Payload) AgentResult {
	return AgentResult{
		Stage:      stage,
		Success:    true,
		Payload:    payload,
		Source:     source,
		ProducedAt: time.Now().UTC(),
	}
}

// Failed builds a failed result carrying the error text and code.
func Failed(stage string, code string, err error) AgentResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return AgentResult{
		Stage:      stage,
		Success:    false,
		Error:      msg,
		Code:       code,
		ProducedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy of the result.
func (r AgentResult) Clone() AgentResult {
	r.Payload = ClonePayload(r.Payload)
	return r
}

// ToPayload converts a typed value into a JSON shaped Payload.
func ToPayload(v any) (Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var out Payload
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return out, nil
}

// FromPayload decodes a Payload into a typed value.
func FromPayload(p Payload, v any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ClonePayload deep-copies a payload.
func ClonePayload(p Payload) Payload {
	if p == nil {
		return nil
	}
	return cloneValue(p).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val).(map[string]any)
		}
		return out
	default:
		return v
	}
}
