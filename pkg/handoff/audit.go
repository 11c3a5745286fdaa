package handoff

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Audit statuses.
const (
	AuditCompleted = "completed"
	AuditFailed    = "failed"
	AuditFallback  = "fallback"
	AuditTerminal  = "terminal"
)

// AuditEvent records one stage attempt of a session.
type AuditEvent struct {
	PipelineID string    `json:"pipeline_id"`
	SessionID  string    `json:"session_id"`
	Stage      string    `json:"stage"`
	Agent      string    `json:"agent,omitempty"`
	Attempt    int       `json:"attempt"`
	Status     string    `json:"status"`
	Source     string    `json:"source,omitempty"`
	Output     any       `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// AuditStore persists audit events.
type AuditStore interface {
	Record(ctx context.Context, event AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditFilter limits audit event queries.
type AuditFilter struct {
	PipelineID string
	SessionID  string
	Stage      string
	Status     string
	Limit      int
}

// MemoryAuditStore keeps audit events in memory.
type MemoryAuditStore struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditStore returns an in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Record appends an audit event.
func (s *MemoryAuditStore) Record(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns filtered audit events in insertion order.
func (s *MemoryAuditStore) List(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, 0, len(s.events))
	for _, ev := range s.events {
		if filter.PipelineID != "" && ev.PipelineID != filter.PipelineID {
			continue
		}
		if filter.SessionID != "" && ev.SessionID != filter.SessionID {
			continue
		}
		if filter.Stage != "" && ev.Stage != filter.Stage {
			continue
		}
		if filter.Status != "" && ev.Status != filter.Status {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func encodeAuditOutput(output any) ([]byte, error) {
	if output == nil {
		return []byte("null"), nil
	}
	return json.Marshal(output)
}

func decodeAuditOutput(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeAuditTime(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
