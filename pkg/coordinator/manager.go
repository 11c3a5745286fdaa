package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jllopis/relay/pkg/agent"
	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/session"
)

// RegistryFactory returns the agents serving a domain.
type RegistryFactory func(domain session.Domain) (*agent.Registry, error)

// Stats summarizes the sessions a Manager knows about.
type Stats struct {
	Total       int     `json:"total_sessions"`
	Active      int     `json:"active_sessions"`
	Completed   int     `json:"completed_sessions"`
	Failed      int     `json:"failed_sessions"`
	SuccessRate float64 `json:"success_rate"`
}

// Manager runs many independent sessions. Each session has its own
// Coordinator; the Manager only owns the index.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Coordinator

	catalog    *handoff.Catalog
	registries RegistryFactory
	store      session.Store
	opts       []Option
}

// NewManager creates a manager. opts are applied to every coordinator it
// creates; store, when set, is used for persistence and to resume
// sessions the manager has not seen yet.
func NewManager(catalog *handoff.Catalog, registries RegistryFactory, store session.Store, opts ...Option) *Manager {
	if store != nil {
		opts = append([]Option{WithStore(store)}, opts...)
	}
	return &Manager{
		sessions:   make(map[string]*Coordinator),
		catalog:    catalog,
		registries: registries,
		store:      store,
		opts:       opts,
	}
}

func (m *Manager) coordinatorFor(domain session.Domain) (*Coordinator, error) {
	p, err := m.catalog.Get(string(domain))
	if err != nil {
		return nil, err
	}
	reg, err := m.registries(domain)
	if err != nil {
		return nil, err
	}
	return New(p, reg, m.opts...)
}

// Start runs a new session. The coordinator is kept even when the session
// fails so it can be inspected and modified later.
func (m *Manager) Start(ctx context.Context, req session.Request) (session.View, error) {
	if err := req.Normalize().Validate(); err != nil {
		return session.View{}, err
	}
	c, err := m.coordinatorFor(req.Normalize().Domain)
	if err != nil {
		return session.View{}, err
	}
	// Register the session before its first stage runs so it can be
	// looked up while the pipeline is in flight.
	c.mu.Lock()
	view, err := c.begin(ctx, req)
	c.mu.Unlock()
	if id := c.ID(); id != "" {
		m.mu.Lock()
		m.sessions[id] = c
		m.mu.Unlock()
	}
	if err != nil {
		return view, err
	}
	return c.Run(ctx)
}

// Get returns the coordinator of a session, resuming it from the store
// when it is not in memory.
func (m *Manager) Get(ctx context.Context, id string) (*Coordinator, error) {
	m.mu.RLock()
	c, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}
	if m.store == nil {
		return nil, errors.New(errors.CodeNotFound, fmt.Sprintf("session %q not found", id), nil)
	}
	st, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := m.catalog.Get(string(st.Domain))
	if err != nil {
		return nil, err
	}
	reg, err := m.registries(st.Domain)
	if err != nil {
		return nil, err
	}
	c, err = Resume(ctx, m.store, id, p, reg, m.opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = c
	return c, nil
}

// View returns a snapshot of a session.
func (m *Manager) View(ctx context.Context, id string) (session.View, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return session.View{}, err
	}
	return c.View()
}

// Plan returns the composite plan of a session.
func (m *Manager) Plan(ctx context.Context, id string) (session.CompositePlan, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return session.CompositePlan{}, err
	}
	return c.Plan()
}

// Modify applies a request change to a session.
func (m *Manager) Modify(ctx context.Context, id string, req session.Request) (session.View, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return session.View{}, err
	}
	return c.Modify(ctx, req)
}

// Handoff reruns a session from stage.
func (m *Manager) Handoff(ctx context.Context, id, stage string) (session.View, error) {
	c, err := m.Get(ctx, id)
	if err != nil {
		return session.View{}, err
	}
	return c.Handoff(ctx, stage)
}

// Sessions returns snapshots of the sessions in memory, newest first.
func (m *Manager) Sessions() []session.View {
	m.mu.RLock()
	coords := make([]*Coordinator, 0, len(m.sessions))
	for _, c := range m.sessions {
		coords = append(coords, c)
	}
	m.mu.RUnlock()

	out := make([]session.View, 0, len(coords))
	for _, c := range coords {
		if v, err := c.View(); err == nil {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Stats counts sessions by status.
func (m *Manager) Stats() Stats {
	var s Stats
	for _, v := range m.Sessions() {
		s.Total++
		switch v.Status {
		case session.StatusActive:
			s.Active++
		case session.StatusComplete:
			s.Completed++
		case session.StatusFailed:
			s.Failed++
		}
	}
	if finished := s.Completed + s.Failed; finished > 0 {
		s.SuccessRate = float64(s.Completed) / float64(finished)
	}
	return s
}

// Consult answers a single career question with the one agent its
// keywords route to. No session is created.
func (m *Manager) Consult(ctx context.Context, query string) (session.AgentResult, error) {
	c, err := m.coordinatorFor(session.DomainCareer)
	if err != nil {
		return session.AgentResult{}, err
	}
	req, err := c.accept(ctx, session.Request{
		Domain: session.DomainCareer,
		Career: &session.CareerRequest{Query: query},
	})
	if err != nil {
		return session.AgentResult{}, err
	}
	stage := handoff.RouteQuery(query)
	if _, ok := c.registry.Lookup(stage); !ok {
		return session.AgentResult{}, errors.New(errors.CodeNotFound, fmt.Sprintf("no agent registered for stage %q", stage), nil)
	}
	res := c.invoke(ctx, "", handoff.StageInput{
		Stage:   stage,
		Index:   c.pipeline.Index(stage),
		Request: req,
	})
	return res, nil
}
