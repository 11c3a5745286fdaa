package agent

import (
	"fmt"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/llm"
	"github.com/jllopis/relay/pkg/session"
)

// NewTravelRegistry binds the travel stages.
func NewTravelRegistry(client llm.Client, opts ...Option) *Registry {
	return NewRegistry().
		Register(StageDestination, NewDestinationAgent(client, opts...)).
		Register(StageBooking, NewBookingAgent(client, opts...)).
		Register(StageExplore, NewExploreAgent(client, opts...))
}

// NewGameRegistry binds the game stages.
func NewGameRegistry(client llm.Client, opts ...Option) *Registry {
	return NewRegistry().
		Register(StageNarrator, NewNarratorAgent(client, opts...)).
		Register(StageMonster, NewMonsterAgent(client, opts...)).
		Register(StageItem, NewItemAgent(client, opts...))
}

// NewCareerRegistry binds the career stages.
func NewCareerRegistry(client llm.Client, opts ...Option) *Registry {
	return NewRegistry().
		Register(StageCareer, NewCareerAgent(client, opts...)).
		Register(StageSkill, NewSkillAgent(client, opts...)).
		Register(StageJob, NewJobAgent(client, opts...))
}

// DefaultRegistry returns the built-in agents for domain.
func DefaultRegistry(domain session.Domain, client llm.Client, opts ...Option) (*Registry, error) {
	switch domain {
	case session.DomainTravel:
		return NewTravelRegistry(client, opts...), nil
	case session.DomainGame:
		return NewGameRegistry(client, opts...), nil
	case session.DomainCareer:
		return NewCareerRegistry(client, opts...), nil
	default:
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("no agents for domain %q", domain), nil)
	}
}
