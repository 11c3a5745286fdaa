// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package relaytest provides a declarative harness for running a request
// through a real coordinator and checking what the session ended up as.
//
// Example usage:
//
//	provider := relaytest.FailingProvider(errors.CodeNetwork)
//	scenario := relaytest.NewScenario("offline trip").
//	    WithRequest(req).
//	    WithProvider(provider).
//	    ExpectStatus(session.StatusComplete).
//	    ExpectStages("destination", "booking", "explore").
//	    ExpectSource("booking", session.SourceMock)
//
//	result := scenario.Run(t)
//	result.Assert(t, scenario)
package relaytest

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/relay/pkg/agent"
	"github.com/jllopis/relay/pkg/coordinator"
	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/present"
	"github.com/jllopis/relay/pkg/resilience"
	"github.com/jllopis/relay/pkg/session"
)

// Scenario runs one request through a coordinator built from the builtin
// pipeline and agents of the request's domain.
type Scenario struct {
	name         string
	request      session.Request
	provider     *ScenarioProvider
	pipeline     *handoff.Pipeline
	registry     *agent.Registry
	options      []coordinator.Option
	timeout      time.Duration
	expectations []Expectation
}

// Expectation defines a condition to verify after running a scenario.
type Expectation interface {
	Check(result *ScenarioResult) error
	Description() string
}

// ScenarioResult contains the outcome of running a scenario.
type ScenarioResult struct {
	View      session.View
	Plan      session.CompositePlan
	PlanErr   error
	Err       error
	Snapshots []session.View
	Audit     []handoff.AuditEvent
	Calls     int
	Duration  time.Duration
}

// NewScenario creates a scenario whose provider fails every call, so all
// model stages are served from mock data unless a provider is set.
func NewScenario(name string) *Scenario {
	return &Scenario{
		name:     name,
		provider: FailingProvider(errors.CodeNetwork),
		timeout:  30 * time.Second,
	}
}

// WithRequest sets the request to start the session with.
func (s *Scenario) WithRequest(req session.Request) *Scenario {
	s.request = req
	return s
}

// WithProvider sets the scripted model backend.
func (s *Scenario) WithProvider(p *ScenarioProvider) *Scenario {
	s.provider = p
	return s
}

// WithPipeline replaces the builtin pipeline of the request's domain.
func (s *Scenario) WithPipeline(p *handoff.Pipeline) *Scenario {
	s.pipeline = p
	return s
}

// WithRegistry replaces the builtin agents of the request's domain.
func (s *Scenario) WithRegistry(r *agent.Registry) *Scenario {
	s.registry = r
	return s
}

// WithOptions adds coordinator options.
func (s *Scenario) WithOptions(opts ...coordinator.Option) *Scenario {
	s.options = append(s.options, opts...)
	return s
}

// WithTimeout bounds the whole run.
func (s *Scenario) WithTimeout(d time.Duration) *Scenario {
	s.timeout = d
	return s
}

// Expect adds an expectation.
func (s *Scenario) Expect(exp Expectation) *Scenario {
	s.expectations = append(s.expectations, exp)
	return s
}

// ExpectStatus expects the final session status.
func (s *Scenario) ExpectStatus(status session.Status) *Scenario {
	return s.Expect(&statusExpectation{status: status})
}

// ExpectStages expects exactly these stage results, in order.
func (s *Scenario) ExpectStages(stages ...string) *Scenario {
	return s.Expect(&stagesExpectation{stages: stages})
}

// ExpectFailedAt expects a FAILED session blocked at stage.
func (s *Scenario) ExpectFailedAt(stage string) *Scenario {
	return s.Expect(&failedAtExpectation{stage: stage})
}

// ExpectSource expects stage to have been produced from source.
func (s *Scenario) ExpectSource(stage string, source session.Source) *Scenario {
	return s.Expect(&sourceExpectation{stage: stage, source: source})
}

// ExpectAttempts expects the number of attempts recorded for stage.
func (s *Scenario) ExpectAttempts(stage string, attempts int) *Scenario {
	return s.Expect(&attemptsExpectation{stage: stage, attempts: attempts})
}

// ExpectPlan expects a composite plan to be available.
func (s *Scenario) ExpectPlan() *Scenario {
	return s.Expect(&planExpectation{})
}

// ExpectNoPlan expects the plan request to fail with code.
func (s *Scenario) ExpectNoPlan(code errors.ErrorCode) *Scenario {
	return s.Expect(&noPlanExpectation{code: code})
}

// ExpectSummary expects the plan summary to match.
func (s *Scenario) ExpectSummary(m StringMatcher) *Scenario {
	return s.Expect(&summaryExpectation{matcher: m})
}

// ExpectError expects Start to fail with code.
func (s *Scenario) ExpectError(code errors.ErrorCode) *Scenario {
	return s.Expect(&errorExpectation{code: code})
}

// ExpectMaxDuration expects the run to finish within d.
func (s *Scenario) ExpectMaxDuration(d time.Duration) *Scenario {
	return s.Expect(&maxDurationExpectation{max: d})
}

// Run executes the scenario.
func (s *Scenario) Run(t testing.TB) *ScenarioResult {
	t.Helper()

	p := s.pipeline
	if p == nil {
		var err error
		p, err = handoff.Builtin(string(s.request.Normalize().Domain))
		if err != nil {
			t.Fatalf("scenario %q: %v", s.name, err)
		}
	}
	reg := s.registry
	if reg == nil {
		var err error
		reg, err = agent.DefaultRegistry(session.Domain(p.Domain), s.provider.Client())
		if err != nil {
			t.Fatalf("scenario %q: %v", s.name, err)
		}
	}

	recorder := &present.Recorder{}
	audit := handoff.NewMemoryAuditStore()
	opts := append([]coordinator.Option{
		coordinator.WithRetry(resilience.DefaultRetryConfig().
			WithInitialDelay(time.Millisecond).
			WithMaxDelay(time.Millisecond)),
		coordinator.WithSink(recorder),
		coordinator.WithAuditStore(audit),
	}, s.options...)

	c, err := coordinator.New(p, reg, opts...)
	if err != nil {
		t.Fatalf("scenario %q: %v", s.name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	view, runErr := c.Start(ctx, s.request)
	result := &ScenarioResult{
		View:      view,
		Err:       runErr,
		Duration:  time.Since(start),
		Snapshots: recorder.Snapshots(),
		Calls:     s.provider.CallCount(),
	}
	if c.ID() != "" {
		result.Plan, result.PlanErr = c.Plan()
		result.Audit, _ = audit.List(ctx, handoff.AuditFilter{SessionID: c.ID()})
	}
	return result
}

// Assert checks all expectations and reports failures to the test.
func (r *ScenarioResult) Assert(t testing.TB, scenario *Scenario) {
	t.Helper()
	for _, exp := range scenario.expectations {
		if err := exp.Check(r); err != nil {
			t.Errorf("scenario %q: expectation %q failed: %v", scenario.name, exp.Description(), err)
		}
	}
}

// Result returns the stage result recorded in the final view.
func (r *ScenarioResult) Result(stage string) (session.AgentResult, bool) {
	for _, res := range r.View.Results {
		if res.Stage == stage {
			return res, true
		}
	}
	return session.AgentResult{}, false
}

// StringMatcher defines how to match strings in expectations.
type StringMatcher interface {
	Match(s string) bool
	Description() string
}

// Contains returns a matcher that checks if the string contains the substring.
func Contains(substr string) StringMatcher {
	return matcher{fmt.Sprintf("contains %q", substr), func(s string) bool { return strings.Contains(s, substr) }}
}

// Equals returns a matcher that checks exact string equality.
func Equals(expected string) StringMatcher {
	return matcher{fmt.Sprintf("equals %q", expected), func(s string) bool { return s == expected }}
}

// Regex returns a matcher that checks against a regular expression.
func Regex(pattern string) StringMatcher {
	re, err := regexp.Compile(pattern)
	return matcher{fmt.Sprintf("matches regex %q", pattern), func(s string) bool {
		return err == nil && re.MatchString(s)
	}}
}

// HasPrefix returns a matcher that checks if the string has the given prefix.
func HasPrefix(prefix string) StringMatcher {
	return matcher{fmt.Sprintf("has prefix %q", prefix), func(s string) bool { return strings.HasPrefix(s, prefix) }}
}

type matcher struct {
	desc  string
	match func(string) bool
}

func (m matcher) Match(s string) bool { return m.match(s) }
func (m matcher) Description() string { return m.desc }

type statusExpectation struct{ status session.Status }

func (e *statusExpectation) Check(r *ScenarioResult) error {
	if r.View.Status != e.status {
		return fmt.Errorf("status is %s (last error %q)", r.View.Status, r.View.LastError)
	}
	return nil
}

func (e *statusExpectation) Description() string { return "status " + string(e.status) }

type stagesExpectation struct{ stages []string }

func (e *stagesExpectation) Check(r *ScenarioResult) error {
	got := make([]string, 0, len(r.View.Results))
	for _, res := range r.View.Results {
		got = append(got, res.Stage)
	}
	if !slices.Equal(got, e.stages) {
		return fmt.Errorf("stages are %v", got)
	}
	return nil
}

func (e *stagesExpectation) Description() string {
	return "stages " + strings.Join(e.stages, ",")
}

type failedAtExpectation struct{ stage string }

func (e *failedAtExpectation) Check(r *ScenarioResult) error {
	if r.View.Status != session.StatusFailed {
		return fmt.Errorf("status is %s", r.View.Status)
	}
	if r.View.FailedStage != e.stage {
		return fmt.Errorf("failed at %q", r.View.FailedStage)
	}
	return nil
}

func (e *failedAtExpectation) Description() string { return "failed at " + e.stage }

type sourceExpectation struct {
	stage  string
	source session.Source
}

func (e *sourceExpectation) Check(r *ScenarioResult) error {
	res, ok := r.Result(e.stage)
	if !ok {
		return fmt.Errorf("stage %q has no result", e.stage)
	}
	if res.Source != e.source {
		return fmt.Errorf("source is %q", res.Source)
	}
	return nil
}

func (e *sourceExpectation) Description() string {
	return fmt.Sprintf("%s from %s", e.stage, e.source)
}

type attemptsExpectation struct {
	stage    string
	attempts int
}

func (e *attemptsExpectation) Check(r *ScenarioResult) error {
	res, ok := r.Result(e.stage)
	if !ok {
		return fmt.Errorf("stage %q has no result", e.stage)
	}
	if res.Attempts != e.attempts {
		return fmt.Errorf("%d attempts", res.Attempts)
	}
	return nil
}

func (e *attemptsExpectation) Description() string {
	return fmt.Sprintf("%s attempted %d times", e.stage, e.attempts)
}

type planExpectation struct{}

func (e *planExpectation) Check(r *ScenarioResult) error {
	if r.PlanErr != nil {
		return fmt.Errorf("plan unavailable: %v", r.PlanErr)
	}
	return nil
}

func (e *planExpectation) Description() string { return "plan available" }

type noPlanExpectation struct{ code errors.ErrorCode }

func (e *noPlanExpectation) Check(r *ScenarioResult) error {
	if r.PlanErr == nil {
		return fmt.Errorf("plan was built")
	}
	if !errors.IsCode(r.PlanErr, e.code) {
		return fmt.Errorf("plan error is %v", r.PlanErr)
	}
	return nil
}

func (e *noPlanExpectation) Description() string { return "no plan (" + string(e.code) + ")" }

type summaryExpectation struct{ matcher StringMatcher }

func (e *summaryExpectation) Check(r *ScenarioResult) error {
	if !e.matcher.Match(r.Plan.Summary) {
		return fmt.Errorf("summary %q does not match", r.Plan.Summary)
	}
	return nil
}

func (e *summaryExpectation) Description() string { return "summary " + e.matcher.Description() }

type errorExpectation struct{ code errors.ErrorCode }

func (e *errorExpectation) Check(r *ScenarioResult) error {
	if !errors.IsCode(r.Err, e.code) {
		return fmt.Errorf("error is %v", r.Err)
	}
	return nil
}

func (e *errorExpectation) Description() string { return "error " + string(e.code) }

type maxDurationExpectation struct{ max time.Duration }

func (e *maxDurationExpectation) Check(r *ScenarioResult) error {
	if r.Duration > e.max {
		return fmt.Errorf("duration %v exceeds maximum %v", r.Duration, e.max)
	}
	return nil
}

func (e *maxDurationExpectation) Description() string {
	return fmt.Sprintf("duration <= %v", e.max)
}
