// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator drives sessions through their pipelines: it asks the
// router for the next stage, invokes the registered agent under the retry
// policy, merges the result and assembles the composite plan.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/relay/pkg/agent"
	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/guardrails"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/present"
	"github.com/jllopis/relay/pkg/resilience"
	"github.com/jllopis/relay/pkg/session"
	"github.com/jllopis/relay/pkg/telemetry"
)

// Coordinator owns exactly one session. Run, Modify and Handoff are
// serialized; View and Plan read the last published snapshot and never
// wait for a running stage.
type Coordinator struct {
	mu       sync.Mutex
	pipeline *handoff.Pipeline
	router   *handoff.Router
	registry *agent.Registry
	state    *session.State

	snapMu   sync.RWMutex
	snapshot *session.State

	retry     resilience.RetryConfig
	store     session.Store
	audit     handoff.AuditStore
	sink      present.Sink
	logger    *slog.Logger
	metrics   *telemetry.PipelineMetrics
	summarize Summarizer
	guard     *guardrails.Guardrails
	now       func() time.Time
	newID     func() string
	seed      int64
	tracer    trace.Tracer
}

// New creates a coordinator for pipeline p. Every stage of p must have an
// agent in registry.
func New(p *handoff.Pipeline, registry *agent.Registry, opts ...Option) (*Coordinator, error) {
	if p == nil {
		return nil, errors.New(errors.CodeNotFound, "pipeline is nil", nil)
	}
	if registry == nil {
		return nil, errors.New(errors.CodeNotFound, "agent registry is nil", nil)
	}
	router, err := handoff.NewRouter(p)
	if err != nil {
		return nil, err
	}
	if err := registry.Covers(p); err != nil {
		return nil, err
	}
	c := &Coordinator{
		pipeline:  p,
		router:    router,
		registry:  registry,
		retry:     resilience.DefaultRetryConfig(),
		sink:      present.Nop{},
		logger:    slog.Default(),
		summarize: TemplateSummary,
		now:       time.Now,
		newID:     uuid.NewString,
		tracer:    otel.Tracer("relay/coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Resume rebuilds a coordinator from a persisted session. The session is
// not run; call Run to continue an ACTIVE one.
func Resume(ctx context.Context, store session.Store, id string, p *handoff.Pipeline, registry *agent.Registry, opts ...Option) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New(errors.CodeNotFound, "no session store configured", nil)
	}
	st, err := store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	c, err := New(p, registry, append([]Option{WithStore(store)}, opts...)...)
	if err != nil {
		return nil, err
	}
	if st.Domain != session.Domain(p.Domain) {
		return nil, errors.Pipeline(st.CurrentStage, fmt.Sprintf("session %s belongs to domain %q, not %q", id, st.Domain, p.Domain)).
			WithContext("session_id", id)
	}
	c.state = st
	c.publishSnapshot()
	return c, nil
}

// Pipeline returns the pipeline the coordinator runs.
func (c *Coordinator) Pipeline() *handoff.Pipeline {
	return c.pipeline
}

// ID returns the session ID, or "" before Start.
func (c *Coordinator) ID() string {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	if c.snapshot == nil {
		return ""
	}
	return c.snapshot.ID
}

// Start validates req, creates the session and runs it to a terminal
// state. An invalid request returns a VALIDATION_ERROR and creates nothing.
func (c *Coordinator) Start(ctx context.Context, req session.Request) (session.View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if view, err := c.begin(ctx, req); err != nil {
		return view, err
	}
	return c.run(ctx)
}

// begin creates and persists the ACTIVE session without running a stage.
// The caller holds c.mu.
func (c *Coordinator) begin(ctx context.Context, req session.Request) (session.View, error) {
	if c.state != nil {
		return c.state.View(), errors.Pipeline(c.state.CurrentStage, "session already started").
			WithContext("session_id", c.state.ID)
	}
	req, err := c.accept(ctx, req)
	if err != nil {
		return session.View{}, err
	}

	c.state = session.NewState(c.newID(), req, c.pipeline.ID, c.now())
	c.logger.InfoContext(ctx, "session started",
		"session_id", c.state.ID,
		"domain", string(req.Domain),
		"pipeline", c.pipeline.ID,
	)
	if err := c.persist(ctx); err != nil {
		return c.state.View(), err
	}
	c.publish()
	return c.state.View(), nil
}

// accept normalizes, validates and screens a request for this pipeline.
func (c *Coordinator) accept(ctx context.Context, req session.Request) (session.Request, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return req, err
	}
	if c.guard != nil {
		if err := c.guard.CheckRequest(ctx, req); err != nil {
			c.logger.WarnContext(ctx, "request rejected by guardrails", "error", err)
			return req, err
		}
	}
	if string(req.Domain) != c.pipeline.Domain {
		return req, errors.Validation("domain", fmt.Sprintf("pipeline %q serves domain %q, not %q", c.pipeline.ID, c.pipeline.Domain, req.Domain))
	}
	if req.Seed == 0 {
		req.Seed = c.seed
	}
	return req, nil
}

// Run drives an ACTIVE session until it completes, fails or ctx is done.
// A FAILED session is not an error: inspect the returned view. Errors are
// reserved for cancellation and persistence failures.
func (c *Coordinator) Run(ctx context.Context) (session.View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return session.View{}, errors.New(errors.CodeNotFound, "session not started", nil)
	}
	return c.run(ctx)
}

func (c *Coordinator) run(ctx context.Context) (session.View, error) {
	st := c.state
	if st.Status != session.StatusActive {
		return st.View(), nil
	}

	ctx, span := c.tracer.Start(ctx, "Coordinator.Run",
		trace.WithAttributes(telemetry.SessionAttributes(st.ID, string(st.Domain), c.pipeline.ID)...),
	)
	defer span.End()

	for {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "context done")
			_ = c.persist(ctx)
			return st.View(), errors.New(errors.CodeContextLost, "session interrupted", err).
				WithContext("session_id", st.ID).
				WithContext("stage", st.CurrentStage)
		}

		d := c.router.Next(st.CurrentStage, st.Context)
		if d.Terminal {
			c.finish(ctx, d)
			span.SetAttributes(attribute.String(telemetry.AttrSessionStatus, string(st.Status)))
			if st.Status == session.StatusFailed {
				span.SetAttributes(attribute.String(telemetry.AttrStageFailedAt, st.FailedStage))
				span.SetStatus(codes.Error, st.LastError)
			}
			if err := c.persist(ctx); err != nil {
				return st.View(), err
			}
			c.publish()
			if st.Plan != nil {
				c.sink.Plan(st.Plan.Clone())
			}
			return st.View(), nil
		}

		in := d.Input.WithRequest(st.Request)
		res := c.invoke(ctx, st.ID, in)
		if res.Success {
			if err := st.Merge(res, c.now()); err != nil {
				res = session.Failed(in.Stage, string(errors.CodePipeline), err)
			}
		}
		if !res.Success {
			st.Fail(in.Stage, &res, res.Error, c.now())
			c.logger.WarnContext(ctx, "stage failed",
				"session_id", st.ID,
				"stage", in.Stage,
				"attempt", res.Attempts,
				"code", res.Code,
				"error", res.Error,
			)
			c.metrics.RecordSession(ctx, string(st.Domain), false)
			span.SetAttributes(
				attribute.String(telemetry.AttrSessionStatus, string(st.Status)),
				attribute.String(telemetry.AttrStageFailedAt, in.Stage),
			)
			span.SetStatus(codes.Error, res.Error)
			if err := c.persist(ctx); err != nil {
				return st.View(), err
			}
			c.publish()
			return st.View(), nil
		}

		c.logger.InfoContext(ctx, "stage completed",
			"session_id", st.ID,
			"stage", in.Stage,
			"attempt", res.Attempts,
			"source", string(res.Source),
		)
		if err := c.persist(ctx); err != nil {
			return st.View(), err
		}
		c.publish()
	}
}

// finish applies a terminal router decision.
func (c *Coordinator) finish(ctx context.Context, d handoff.Decision) {
	st := c.state
	c.recordAudit(ctx, handoff.AuditEvent{
		Stage:      d.Stage,
		Status:     handoff.AuditTerminal,
		Output:     map[string]any{"outcome": string(d.Outcome), "reason": d.Reason},
		StartedAt:  c.now(),
		FinishedAt: c.now(),
	})

	if d.Outcome == handoff.OutcomeFailed {
		st.Fail(d.Stage, nil, d.Reason, c.now())
		c.metrics.RecordSession(ctx, string(st.Domain), false)
		c.logger.WarnContext(ctx, "session failed", "session_id", st.ID, "stage", d.Stage, "reason", d.Reason)
		return
	}

	// BuildPlan only accepts COMPLETE sessions; a missing required stage
	// turns the status back to FAILED below.
	st.Status = session.StatusComplete
	summary := c.summarize(ctx, st.View())
	plan, err := st.BuildPlan(c.pipeline.Required(), summary, c.now())
	if err != nil {
		re := errors.AsRelayError(err)
		st.Fail(re.Stage(), nil, err.Error(), c.now())
		c.metrics.RecordSession(ctx, string(st.Domain), false)
		c.logger.WarnContext(ctx, "plan rejected", "session_id", st.ID, "stage", re.Stage(), "error", err)
		return
	}
	st.Complete(plan, c.now())
	c.metrics.RecordSession(ctx, string(st.Domain), true)
	c.logger.InfoContext(ctx, "session completed",
		"session_id", st.ID,
		"stages", len(plan.Stages),
		"mock_sourced", plan.MockSourced(),
	)
}

// invoke runs the stage agent under the retry policy. The returned result
// always names in.Stage and carries the number of attempts made. sessionID
// is empty for single-shot consultations.
func (c *Coordinator) invoke(ctx context.Context, sessionID string, in handoff.StageInput) session.AgentResult {
	a, ok := c.registry.Lookup(in.Stage)
	if !ok {
		err := errors.New(errors.CodeNotFound, fmt.Sprintf("no agent registered for stage %q", in.Stage), nil)
		return session.Failed(in.Stage, string(errors.CodeNotFound), err)
	}

	ctx, span := c.tracer.Start(ctx, "Handoff.Stage",
		trace.WithAttributes(telemetry.StageAttributes(in.Stage, a.Name(), 0)...),
	)
	defer span.End()

	domain := c.pipeline.Domain
	retry := c.retry
	userHook := retry.OnRetry
	retry.OnRetry = func(attempt int, err error) {
		c.metrics.RecordRetry(ctx, domain, in.Stage)
		c.logger.InfoContext(ctx, "retrying stage",
			"session_id", sessionID,
			"stage", in.Stage,
			"attempt", attempt,
			"error", err.Error(),
		)
		if userHook != nil {
			userHook(attempt, err)
		}
	}

	var res session.AgentResult
	attempts := 0
	err := retry.Do(ctx, func() error {
		attempts++
		started := c.now()
		c.metrics.RecordInvocation(ctx, domain, in.Stage)

		res = agent.Invoke(ctx, a, in)
		res.Stage = in.Stage
		if res.Agent == "" {
			res.Agent = a.Name()
		}
		res.Attempts = attempts
		c.recordAttempt(ctx, sessionID, in, res, started)

		if res.Success {
			if res.Source == session.SourceMock {
				c.metrics.RecordFallback(ctx, domain, in.Stage)
			}
			return nil
		}
		rerr := resultError(res)
		c.metrics.RecordFailure(ctx, domain, in.Stage, rerr)
		return rerr
	})
	if err != nil && errors.IsCode(err, errors.CodeContextLost) {
		c.logger.WarnContext(ctx, "retry abandoned", "session_id", sessionID, "stage", in.Stage, "attempt", attempts)
	}

	span.SetAttributes(telemetry.StageOutcomeAttributes(res.Success, string(res.Source))...)
	span.SetAttributes(attribute.Int(telemetry.AttrStageAttempt, attempts))
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

// resultError rebuilds the typed error carried by a failed result so the
// retry policy can judge whether it is recoverable.
func resultError(res session.AgentResult) error {
	code := errors.ErrorCode(res.Code)
	if code == "" {
		code = errors.CodeInternal
	}
	return errors.New(code, res.Error, nil).WithContext("stage", res.Stage)
}

func (c *Coordinator) recordAttempt(ctx context.Context, sessionID string, in handoff.StageInput, res session.AgentResult, started time.Time) {
	event := handoff.AuditEvent{
		SessionID:  sessionID,
		Stage:      in.Stage,
		Agent:      res.Agent,
		Attempt:    res.Attempts,
		Source:     string(res.Source),
		StartedAt:  started,
		FinishedAt: c.now(),
	}
	switch {
	case !res.Success:
		event.Status = handoff.AuditFailed
		event.Error = res.Error
	case res.Source == session.SourceMock:
		event.Status = handoff.AuditFallback
		event.Output = res.Payload
	default:
		event.Status = handoff.AuditCompleted
		event.Output = res.Payload
	}
	c.recordAudit(ctx, event)
}

func (c *Coordinator) recordAudit(ctx context.Context, event handoff.AuditEvent) {
	if c.audit == nil {
		return
	}
	event.PipelineID = c.pipeline.ID
	if event.SessionID == "" && c.state != nil {
		event.SessionID = c.state.ID
	}
	if err := c.audit.Record(ctx, event); err != nil {
		c.logger.WarnContext(ctx, "audit record failed", "session_id", event.SessionID, "stage", event.Stage, "error", err)
	}
}

func (c *Coordinator) persist(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	// Persist even when ctx is done so an interrupted session can resume.
	if err := c.store.Save(context.WithoutCancel(ctx), c.state); err != nil {
		return errors.New(errors.CodeInternal, "persist session", err).WithContext("session_id", c.state.ID)
	}
	return nil
}

func (c *Coordinator) publish() {
	c.publishSnapshot()
	c.sink.Snapshot(c.state.View())
}

func (c *Coordinator) publishSnapshot() {
	snap := c.state.Clone()
	c.snapMu.Lock()
	c.snapshot = snap
	c.snapMu.Unlock()
}

// View returns a deep-copied snapshot of the session.
func (c *Coordinator) View() (session.View, error) {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	if c.snapshot == nil {
		return session.View{}, errors.New(errors.CodeNotFound, "session not started", nil)
	}
	return c.snapshot.View(), nil
}

// Plan returns the composite plan. Sessions that are not COMPLETE return a
// PIPELINE_ERROR naming the stage that blocked them.
func (c *Coordinator) Plan() (session.CompositePlan, error) {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	if c.snapshot == nil {
		return session.CompositePlan{}, errors.New(errors.CodeNotFound, "session not started", nil)
	}
	if c.snapshot.Status == session.StatusComplete && c.snapshot.Plan != nil {
		return c.snapshot.Plan.Clone(), nil
	}
	return c.snapshot.BuildPlan(c.pipeline.Required(), "", c.now())
}
