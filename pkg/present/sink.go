// Package present delivers read-only session snapshots and composite plans
// to whatever displays them.
package present

import (
	"sync"

	"github.com/jllopis/relay/pkg/session"
)

// Sink receives copies of session state. Implementations must not block
// for long: the coordinator publishes synchronously between stages.
type Sink interface {
	Snapshot(v session.View)
	Plan(p session.CompositePlan)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Snapshot(session.View)      {}
func (Nop) Plan(session.CompositePlan) {}

// Multi fans out to several sinks in order.
type Multi []Sink

// Snapshot implements Sink.
func (m Multi) Snapshot(v session.View) {
	for _, s := range m {
		if s != nil {
			s.Snapshot(v)
		}
	}
}

// Plan implements Sink.
func (m Multi) Plan(p session.CompositePlan) {
	for _, s := range m {
		if s != nil {
			s.Plan(p.Clone())
		}
	}
}

// Recorder keeps everything it receives. It is used by tests and by the
// HTTP layer to replay the latest snapshot to late subscribers.
type Recorder struct {
	mu        sync.Mutex
	snapshots []session.View
	plans     []session.CompositePlan
}

// Snapshot implements Sink.
func (r *Recorder) Snapshot(v session.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, v)
}

// Plan implements Sink.
func (r *Recorder) Plan(p session.CompositePlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, p)
}

// Snapshots returns the recorded snapshots.
func (r *Recorder) Snapshots() []session.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.View(nil), r.snapshots...)
}

// Plans returns the recorded plans.
func (r *Recorder) Plans() []session.CompositePlan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.CompositePlan(nil), r.plans...)
}
