// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package relaytest

import (
	"context"
	"testing"
	"time"

	"github.com/jllopis/relay/pkg/agent"
	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/llm"
	"github.com/jllopis/relay/pkg/session"
)

func cultureTrip() session.Request {
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

func TestScenarioOfflineTrip(t *testing.T) {
	scenario := NewScenario("offline trip").
		WithRequest(cultureTrip()).
		ExpectStatus(session.StatusComplete).
		ExpectStages("destination", "booking", "explore").
		ExpectSource("booking", session.SourceMock).
		ExpectAttempts("booking", 1).
		ExpectPlan().
		ExpectSummary(HasPrefix("Trip to ")).
		ExpectMaxDuration(5 * time.Second)

	result := scenario.Run(t)
	result.Assert(t, scenario)

	if len(result.Snapshots) == 0 {
		t.Error("expected snapshots to be published")
	}
	if len(result.Audit) != 3 {
		t.Errorf("expected one audit event per stage, got %d", len(result.Audit))
	}
}

func TestScenarioScriptedDestination(t *testing.T) {
	provider := NewScenarioProvider().
		AddResponseWhen("Rank travel destinations", `{"destinations": [{"name": "Paris", "score": 0.95, "reasoning": "museums"}]}`)

	scenario := NewScenario("model ranks destinations").
		WithRequest(cultureTrip()).
		WithProvider(provider).
		ExpectStatus(session.StatusComplete).
		ExpectSource("destination", session.SourceModel).
		ExpectSource("explore", session.SourceMock).
		ExpectSummary(Contains("Paris"))

	result := scenario.Run(t)
	result.Assert(t, scenario)

	if provider.Remaining() != 0 {
		t.Errorf("expected the scripted reply to be consumed")
	}
}

func TestScenarioFailedStage(t *testing.T) {
	client := FailingProvider(errors.CodeQuota).Client()
	reg := agent.NewTravelRegistry(client).
		Register(agent.StageBooking, agent.NewBookingAgent(client, agent.WithoutFallback()))

	scenario := NewScenario("booking cannot recover").
		WithRequest(cultureTrip()).
		WithRegistry(reg).
		ExpectFailedAt("booking").
		ExpectStages("destination").
		ExpectNoPlan(errors.CodePipeline)

	result := scenario.Run(t)
	result.Assert(t, scenario)
}

func TestScenarioInvalidRequest(t *testing.T) {
	req := cultureTrip()
	req.Travel.Budget = "unlimited"

	scenario := NewScenario("bad budget").
		WithRequest(req).
		ExpectError(errors.CodeValidation)

	result := scenario.Run(t)
	result.Assert(t, scenario)
}

func TestScenarioProviderConditions(t *testing.T) {
	p := NewScenarioProvider().
		AddResponseWhen("second", "two").
		AddResponse("any")

	ask := func(prompt string) (string, error) {
		resp, err := p.Chat(context.Background(), llm.ChatRequest{
			Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}

	if got, _ := ask("first"); got != "any" {
		t.Errorf("expected unconditional reply, got %q", got)
	}
	if got, _ := ask("the second one"); got != "two" {
		t.Errorf("expected conditional reply, got %q", got)
	}
	if _, err := ask("third"); !errors.IsCode(err, errors.CodeQuota) {
		t.Errorf("expected quota error once exhausted, got %v", err)
	}
	if p.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", p.CallCount())
	}
}

func TestMatchers(t *testing.T) {
	tests := []struct {
		m    StringMatcher
		in   string
		want bool
	}{
		{Contains("lo W"), "Hello World", true},
		{Equals("x"), "y", false},
		{Regex(`^\d+ nights$`), "7 nights", true},
		{Regex(`(`), "anything", false},
		{HasPrefix("Trip"), "Trip to Rome", true},
	}
	for _, tt := range tests {
		if got := tt.m.Match(tt.in); got != tt.want {
			t.Errorf("%s on %q: got %v", tt.m.Description(), tt.in, got)
		}
	}
}
