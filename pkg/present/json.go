package present

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/jllopis/relay/pkg/session"
)

// Event is one line written by the JSON sink.
type Event struct {
	Type     string                 `json:"type"`
	Snapshot *session.View          `json:"snapshot,omitempty"`
	Plan     *session.CompositePlan `json:"plan,omitempty"`
}

// Event types.
const (
	EventSnapshot = "snapshot"
	EventPlan     = "plan"
)

// JSON writes newline-delimited events.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSON creates a JSON sink over w.
func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

// Snapshot implements Sink.
func (j *JSON) Snapshot(v session.View) {
	j.write(Event{Type: EventSnapshot, Snapshot: &v})
}

// Plan implements Sink.
func (j *JSON) Plan(p session.CompositePlan) {
	j.write(Event{Type: EventPlan, Plan: &p})
}

func (j *JSON) write(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(e); err != nil {
		slog.Warn("present: write event", "type", e.Type, "error", err)
	}
}
