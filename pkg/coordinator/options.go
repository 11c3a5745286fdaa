package coordinator

import (
	"log/slog"
	"time"

	"github.com/jllopis/relay/pkg/guardrails"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/present"
	"github.com/jllopis/relay/pkg/resilience"
	"github.com/jllopis/relay/pkg/session"
	"github.com/jllopis/relay/pkg/telemetry"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRetry sets the retry policy applied around every agent invocation.
func WithRetry(rc resilience.RetryConfig) Option {
	return func(c *Coordinator) {
		c.retry = rc
	}
}

// WithStore persists the session after every step.
func WithStore(store session.Store) Option {
	return func(c *Coordinator) {
		c.store = store
	}
}

// WithAuditStore records every stage attempt.
func WithAuditStore(store handoff.AuditStore) Option {
	return func(c *Coordinator) {
		c.audit = store
	}
}

// WithSink publishes snapshots and the final plan.
func WithSink(sink present.Sink) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records pipeline counters.
func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithSummarizer sets how the plan summary is written.
func WithSummarizer(s Summarizer) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.summarize = s
		}
	}
}

// WithGuardrails screens the free text of every request the coordinator
// accepts, on Start and Modify alike.
func WithGuardrails(g *guardrails.Guardrails) Option {
	return func(c *Coordinator) {
		c.guard = g
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDefaultSeed seeds requests that carry no seed of their own.
func WithDefaultSeed(seed int64) Option {
	return func(c *Coordinator) {
		c.seed = seed
	}
}

// WithIDGenerator overrides how session IDs are minted.
func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}
