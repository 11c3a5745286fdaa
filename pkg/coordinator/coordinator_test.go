// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jllopis/relay/pkg/agent"
	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/llm"
	"github.com/jllopis/relay/pkg/present"
	"github.com/jllopis/relay/pkg/resilience"
	"github.com/jllopis/relay/pkg/session"
)

type countingAgent struct {
	agent.Agent
	mu    sync.Mutex
	calls int
}

func (c *countingAgent) Handle(ctx context.Context, in handoff.StageInput) session.AgentResult {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.Agent.Handle(ctx, in)
}

func (c *countingAgent) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// counted wraps every agent of reg so invocations can be asserted.
func counted(reg *agent.Registry) (*agent.Registry, map[string]*countingAgent) {
	out := agent.NewRegistry()
	counters := make(map[string]*countingAgent)
	for _, stage := range reg.Stages() {
		a, _ := reg.Lookup(stage)
		ca := &countingAgent{Agent: a}
		counters[stage] = ca
		out.Register(stage, ca)
	}
	return out, counters
}

func fastRetry() Option {
	return WithRetry(resilience.DefaultRetryConfig().
		WithInitialDelay(time.Millisecond).
		WithMaxDelay(time.Millisecond))
}

func failingClient() llm.Client {
	return llm.NewClient(&llm.FailingMockProvider{})
}

func travelRequest() session.Request {
	return session.Request{
		Domain: session.DomainTravel,
		Seed:   42,
		Travel: &session.TravelRequest{
			UserName:  "Ada",
			Mood:      session.MoodCulture,
			Budget:    session.BudgetModerate,
			Travelers: 2,
		},
	}
}

func builtin(t *testing.T, domain string) *handoff.Pipeline {
	t.Helper()
	p, err := handoff.Builtin(domain)
	require.NoError(t, err)
	return p
}

func newCoordinator(t *testing.T, domain string, reg *agent.Registry, opts ...Option) *Coordinator {
	t.Helper()
	c, err := New(builtin(t, domain), reg, append([]Option{fastRetry()}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestTravelCultureModerateWithModel(t *testing.T) {
	client := llm.NewClient(llm.NewScriptedMockProvider(
		`{"destinations": [{"name": "Paris", "score": 0.9, "reasoning": "art"}, {"name": "Tokyo"}]}`,
		"```json\n{\"flight_index\": 1, \"hotel_index\": 2, \"notes\": \"good value\"}\n```",
		`{"attractions": [{"name": "Louvre", "category": "Museum"}], "restaurants": [], "tips": ["go early"]}`,
	))
	c := newCoordinator(t, "travel", agent.NewTravelRegistry(client))

	view, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)
	require.Equal(t, session.StatusComplete, view.Status, view.LastError)

	plan, err := c.Plan()
	require.NoError(t, err)
	assert.Equal(t, []string{"destination", "booking", "explore"}, plan.StageNames())
	assert.Equal(t, []session.Source{session.SourceModel, session.SourceModel, session.SourceModel}, plan.Sources)

	dest, _ := plan.Payload("destination")
	ranked, ok := dest["ranked"].([]any)
	require.True(t, ok)
	assert.NotEmpty(t, ranked)
	assert.Equal(t, "Paris", dest["top"])

	booking, _ := plan.Payload("booking")
	assert.Equal(t, "Paris", booking["destination"])
	explore, _ := plan.Payload("explore")
	assert.Equal(t, "Paris", explore["destination"])
	assert.Contains(t, plan.Summary, "Trip to Paris")
}

func TestClientAlwaysFailsFallsBackToMock(t *testing.T) {
	rec := &present.Recorder{}
	c := newCoordinator(t, "travel", agent.NewTravelRegistry(failingClient()), WithSink(rec))

	view, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)
	require.Equal(t, session.StatusComplete, view.Status)

	plan, err := c.Plan()
	require.NoError(t, err)
	require.Len(t, plan.Stages, 3)
	for _, sp := range plan.Stages {
		assert.Equal(t, session.SourceMock, sp.Source, sp.Stage)
	}
	assert.True(t, plan.MockSourced())

	require.Len(t, rec.Plans(), 1)
	assert.True(t, reflect.DeepEqual(plan, rec.Plans()[0]))
	snaps := rec.Snapshots()
	require.NotEmpty(t, snaps)
	assert.Equal(t, session.StatusComplete, snaps[len(snaps)-1].Status)
}

func TestDestinationFailureExhaustsRetries(t *testing.T) {
	reg := agent.NewTravelRegistry(failingClient()).
		Register(agent.StageDestination, agent.NewDestinationAgent(failingClient(), agent.WithoutFallback()))
	reg, calls := counted(reg)
	audit := handoff.NewMemoryAuditStore()
	c := newCoordinator(t, "travel", reg, WithAuditStore(audit))

	view, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, view.Status)
	assert.Equal(t, "destination", view.FailedStage)
	assert.Empty(t, view.LastStage)
	assert.Equal(t, 2, calls["destination"].Calls(), "one retry by default")
	assert.Zero(t, calls["booking"].Calls())

	_, err = c.Plan()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodePipeline))
	assert.Equal(t, "destination", errors.AsRelayError(err).Stage())

	events, err := audit.List(context.Background(), handoff.AuditFilter{SessionID: view.ID})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for i, e := range events {
		assert.Equal(t, handoff.AuditFailed, e.Status)
		assert.Equal(t, i+1, e.Attempt)
	}
}

func TestFailedSessionKeepsPartialResults(t *testing.T) {
	reg := agent.NewTravelRegistry(failingClient()).
		Register(agent.StageExplore, agent.NewExploreAgent(failingClient(), agent.WithoutFallback()))
	c := newCoordinator(t, "travel", reg)

	view, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, view.Status)
	assert.Equal(t, "explore", view.FailedStage)
	assert.Equal(t, "booking", view.LastStage)

	partial := view.Partial()
	require.Len(t, partial, 2)
	assert.Equal(t, "destination", partial[0].Stage)
	assert.Equal(t, "booking", partial[1].Stage)
}

func TestStartRejectsInvalidRequest(t *testing.T) {
	store := session.NewMemoryStore()
	c := newCoordinator(t, "travel", agent.NewTravelRegistry(failingClient()), WithStore(store))

	req := travelRequest()
	req.Travel.Mood = "sleepy"
	_, err := c.Start(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
	assert.Empty(t, c.ID())

	sessions, err := store.List(context.Background(), session.Filter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)

	game := session.Request{Domain: session.DomainGame, Game: &session.GameRequest{Action: "look"}}
	_, err = c.Start(context.Background(), game)
	assert.True(t, errors.IsCode(err, errors.CodeValidation), "travel pipeline refuses game requests")
}

func TestNoOpModifyReproducesPlan(t *testing.T) {
	reg, calls := counted(agent.NewTravelRegistry(failingClient()))
	c := newCoordinator(t, "travel", reg)

	_, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)
	before, err := c.Plan()
	require.NoError(t, err)

	view, err := c.Modify(context.Background(), travelRequest())
	require.NoError(t, err)
	assert.Equal(t, session.StatusComplete, view.Status)

	after, err := c.Plan()
	require.NoError(t, err)
	assert.True(t, reflect.DeepEqual(before, after))
	for stage, ca := range calls {
		assert.Equal(t, 1, ca.Calls(), stage)
	}
}

func TestModifyRerunsFromDivergence(t *testing.T) {
	reg, calls := counted(agent.NewGameRegistry(failingClient()))
	c := newCoordinator(t, "game", reg)

	req := session.Request{
		Domain: session.DomainGame,
		Seed:   3,
		Game:   &session.GameRequest{Action: "attack the goblin", Level: 2, WeaponPower: 3},
	}
	first, err := c.Start(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"narrator", "monster", "item"}, stageNames(first.Results))
	narratorBefore := first.Context["narrator"]

	req.Game.WeaponPower = 9
	view, err := c.Modify(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, session.StatusComplete, view.Status)

	assert.Equal(t, 1, calls["narrator"].Calls(), "upstream stage is not re-invoked")
	assert.Equal(t, 2, calls["monster"].Calls())
	assert.Equal(t, 2, calls["item"].Calls())
	assert.Equal(t, narratorBefore.ProducedAt, view.Context["narrator"].ProducedAt)
	assert.Equal(t, 1, view.Modifications)

	req.Game.Level = 4
	view, err = c.Modify(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, calls["narrator"].Calls(), "level feeds the first stage")
	assert.Equal(t, 2, view.Modifications)
}

// A modified session must end with the plan a fresh session would build
// from the same request.
func TestModifyMatchesFreshStart(t *testing.T) {
	travel := travelRequest
	game := func() session.Request {
		return session.Request{
			Domain: session.DomainGame,
			Seed:   3,
			Game:   &session.GameRequest{PlayerName: "Ada", Action: "attack the goblin", Level: 2, WeaponPower: 3},
		}
	}
	career := func() session.Request {
		return session.Request{
			Domain: session.DomainCareer,
			Seed:   5,
			Career: &session.CareerRequest{Interests: []string{"programming"}, Skills: []string{"Python"}, Experience: "beginner"},
		}
	}

	tests := []struct {
		name   string
		base   func() session.Request
		change func(*session.Request)
	}{
		{"travelers", travel, func(r *session.Request) { r.Travel.Travelers = 4 }},
		{"dates", travel, func(r *session.Request) { r.Travel.StartDate, r.Travel.EndDate = "2026-06-01", "2026-06-04" }},
		{"user name", travel, func(r *session.Request) { r.Travel.UserName = "Grace" }},
		{"budget", travel, func(r *session.Request) { r.Travel.Budget = session.BudgetLuxury }},
		{"weapon", game, func(r *session.Request) { r.Game.WeaponPower = 8 }},
		{"level", game, func(r *session.Request) { r.Game.Level = 6 }},
		{"rarity", game, func(r *session.Request) { r.Game.Rarity = session.RarityEpic }},
		{"skills", career, func(r *session.Request) {
			r.Career.Skills = []string{"Python", "JavaScript", "Git", "SQL", "HTML/CSS"}
		}},
		{"experience", career, func(r *session.Request) { r.Career.Experience = "advanced" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := tt.base()
			reg, err := agent.DefaultRegistry(base.Domain, failingClient())
			require.NoError(t, err)

			modified := newCoordinator(t, string(base.Domain), reg)
			_, err = modified.Start(context.Background(), base)
			require.NoError(t, err)
			changed := tt.base()
			tt.change(&changed)
			view, err := modified.Modify(context.Background(), changed)
			require.NoError(t, err)
			require.Equal(t, session.StatusComplete, view.Status, view.LastError)

			fresh := newCoordinator(t, string(base.Domain), reg)
			_, err = fresh.Start(context.Background(), changed)
			require.NoError(t, err)

			got, err := modified.Plan()
			require.NoError(t, err)
			want, err := fresh.Plan()
			require.NoError(t, err)
			assert.Equal(t, want.Stages, got.Stages)
			assert.Equal(t, want.Sources, got.Sources)
		})
	}
}

func TestModifyResumesFailedSession(t *testing.T) {
	flaky := &flakyClient{failures: 100}
	reg := agent.NewTravelRegistry(failingClient()).
		Register(agent.StageDestination, agent.NewDestinationAgent(flaky, agent.WithoutFallback()))
	c := newCoordinator(t, "travel", reg)

	view, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)
	require.Equal(t, session.StatusFailed, view.Status)

	flaky.setFailures(0)
	view, err = c.Modify(context.Background(), travelRequest())
	require.NoError(t, err)
	assert.Equal(t, session.StatusComplete, view.Status)
	assert.Equal(t, session.SourceModel, view.Context["destination"].Source)
}

func TestHandoffRerunsStage(t *testing.T) {
	reg, calls := counted(agent.NewTravelRegistry(failingClient()))
	c := newCoordinator(t, "travel", reg)
	_, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)

	view, err := c.Handoff(context.Background(), "booking")
	require.NoError(t, err)
	assert.Equal(t, session.StatusComplete, view.Status)
	assert.Equal(t, 1, calls["destination"].Calls())
	assert.Equal(t, 2, calls["booking"].Calls())
	assert.Equal(t, 2, calls["explore"].Calls())

	_, err = c.Handoff(context.Background(), "teleport")
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestGameCombatBranch(t *testing.T) {
	tests := []struct {
		action string
		stages []string
	}{
		{"attack the goblin", []string{"narrator", "monster", "item"}},
		{"talk to the merchant", []string{"narrator", "item"}},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			c := newCoordinator(t, "game", agent.NewGameRegistry(failingClient()))
			view, err := c.Start(context.Background(), session.Request{
				Domain: session.DomainGame,
				Seed:   3,
				Game:   &session.GameRequest{Action: tt.action, Level: 2, WeaponPower: 3},
			})
			require.NoError(t, err)
			require.Equal(t, session.StatusComplete, view.Status, view.LastError)

			plan, err := c.Plan()
			require.NoError(t, err)
			assert.Equal(t, tt.stages, plan.StageNames())
		})
	}
}

func TestCareerPipeline(t *testing.T) {
	c := newCoordinator(t, "career", agent.NewCareerRegistry(failingClient()))
	view, err := c.Start(context.Background(), session.Request{
		Domain: session.DomainCareer,
		Career: &session.CareerRequest{Interests: []string{"programming", "data"}, Experience: "intermediate"},
	})
	require.NoError(t, err)
	require.Equal(t, session.StatusComplete, view.Status)

	plan, err := c.Plan()
	require.NoError(t, err)
	skill, _ := plan.Payload("skill")
	job, _ := plan.Payload("job")
	assert.Equal(t, "Data Science", skill["career"])
	assert.Equal(t, "Data Science", job["career"])
	assert.Contains(t, plan.Summary, "Recommended path: Data Science")
}

func TestAgentPanicFailsSession(t *testing.T) {
	reg := agent.NewTravelRegistry(failingClient()).Register(agent.StageBooking, agent.Func{
		AgentName: "BookingAgent",
		Fn: func(context.Context, handoff.StageInput) session.AgentResult {
			panic("booking exploded")
		},
	})
	reg, calls := counted(reg)
	c := newCoordinator(t, "travel", reg)

	view, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)
	assert.Equal(t, session.StatusFailed, view.Status)
	assert.Equal(t, "booking", view.FailedStage)
	assert.Contains(t, view.LastError, "booking exploded")
	assert.Equal(t, 1, calls["booking"].Calls(), "internal errors are not retried")
}

func TestCancelledSessionResumes(t *testing.T) {
	store := session.NewMemoryStore()
	c := newCoordinator(t, "travel", agent.NewTravelRegistry(failingClient()), WithStore(store))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	view, err := c.Start(ctx, travelRequest())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeContextLost))
	assert.Equal(t, session.StatusActive, view.Status)

	resumed, err := Resume(context.Background(), store, view.ID, builtin(t, "travel"), agent.NewTravelRegistry(failingClient()))
	require.NoError(t, err)
	view, err = resumed.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.StatusComplete, view.Status)

	stored, err := store.Load(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusComplete, stored.Status)
	require.NotNil(t, stored.Plan)
}

func TestResumeFromFileStore(t *testing.T) {
	store := session.NewFileStore(t.TempDir())
	c := newCoordinator(t, "travel", agent.NewTravelRegistry(failingClient()), WithStore(store))
	view, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)
	plan, err := c.Plan()
	require.NoError(t, err)

	resumed, err := Resume(context.Background(), store, view.ID, builtin(t, "travel"), agent.NewTravelRegistry(failingClient()))
	require.NoError(t, err)
	again, err := resumed.Plan()
	require.NoError(t, err)
	assert.Equal(t, plan.StageNames(), again.StageNames())
	assert.Equal(t, plan.Summary, again.Summary)

	_, err = Resume(context.Background(), store, view.ID, builtin(t, "game"), agent.NewGameRegistry(failingClient()))
	assert.True(t, errors.IsCode(err, errors.CodePipeline))
}

func TestViewIsDeepCopy(t *testing.T) {
	c := newCoordinator(t, "travel", agent.NewTravelRegistry(failingClient()))
	_, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)

	v, err := c.View()
	require.NoError(t, err)
	v.Results[0].Payload["top"] = "Atlantis"
	v.Request.Travel.Mood = session.MoodBeach

	again, err := c.View()
	require.NoError(t, err)
	assert.NotEqual(t, "Atlantis", again.Results[0].Payload["top"])
	assert.Equal(t, session.MoodCulture, again.Request.Travel.Mood)
}

func TestModelSummarizerFallsBack(t *testing.T) {
	c := newCoordinator(t, "travel", agent.NewTravelRegistry(failingClient()),
		WithSummarizer(ModelSummarizer(failingClient(), llm.Options{})))
	view, err := c.Start(context.Background(), travelRequest())
	require.NoError(t, err)
	require.Equal(t, session.StatusComplete, view.Status)
	assert.Contains(t, view.Plan.Summary, "Trip to")

	ok := ModelSummarizer(llm.ClientFunc(func(context.Context, string, llm.Options) (string, error) {
		return "  A lovely trip.  ", nil
	}), llm.Options{})
	assert.Equal(t, "A lovely trip.", ok(context.Background(), view))
}

func stageNames(results []session.AgentResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Stage
	}
	return out
}

// flakyClient fails with a network error while failures > 0 and then
// answers the destination prompt.
type flakyClient struct {
	mu       sync.Mutex
	failures int
}

func (f *flakyClient) setFailures(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *flakyClient) Complete(context.Context, string, llm.Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return "", errors.New(errors.CodeNetwork, "connection reset", nil)
	}
	return `{"destinations": [{"name": "Tokyo", "score": 0.8}]}`, nil
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	catalog, err := handoff.NewCatalog("")
	require.NoError(t, err)
	m := NewManager(catalog, func(d session.Domain) (*agent.Registry, error) {
		return agent.DefaultRegistry(d, failingClient())
	}, session.NewMemoryStore(), fastRetry())

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := travelRequest()
			req.Seed = int64(i + 1)
			req.Travel.UserName = fmt.Sprintf("traveler-%d", i)
			view, err := m.Start(context.Background(), req)
			if err == nil {
				ids[i] = view.ID
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		require.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
	stats := m.Stats()
	assert.Equal(t, 8, stats.Total)
	assert.Equal(t, 8, stats.Completed)
	assert.Equal(t, 1.0, stats.SuccessRate)
}
