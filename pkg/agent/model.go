package agent

import (
	"bytes"
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"text/template"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/llm"
	"github.com/jllopis/relay/pkg/resilience"
	"github.com/jllopis/relay/pkg/session"
	"github.com/jllopis/relay/pkg/tools"
)

// Spec describes one specialized agent: its role, the prompt it sends and
// how it turns stage input into a payload.
type Spec struct {
	Stage  string
	Role   string
	System string
	// Prompt is rendered with Draft.PromptData. A nil prompt makes the
	// stage a pure tool stage that never calls the model.
	Prompt  *template.Template
	Prepare func(rng *rand.Rand, in handoff.StageInput) (*Draft, error)
}

// Draft is the deterministic part of a stage payload plus the two ways of
// completing it.
type Draft struct {
	Payload    session.Payload
	PromptData any
	// Apply merges a parsed model reply into p. An error marks the reply
	// unusable.
	Apply func(p session.Payload, reply map[string]any) error
	// Mock completes p from static data when the model is unavailable.
	Mock func(p session.Payload) error
}

// ModelAgent runs a Spec against a language model client.
type ModelAgent struct {
	spec     Spec
	client   llm.Client
	opts     llm.Options
	fallback bool
	logger   *slog.Logger
}

// Option configures a ModelAgent.
type Option func(*ModelAgent)

// WithLogger sets the agent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *ModelAgent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithModelOptions sets the completion options. System is overridden by
// the agent's own system prompt when that is set.
func WithModelOptions(opts llm.Options) Option {
	return func(a *ModelAgent) {
		a.opts = opts
	}
}

// WithoutFallback disables mock data: client failures become failed results.
func WithoutFallback() Option {
	return func(a *ModelAgent) {
		a.fallback = false
	}
}

// New builds an agent from a spec.
func New(spec Spec, client llm.Client, opts ...Option) *ModelAgent {
	a := &ModelAgent{
		spec:     spec,
		client:   client,
		fallback: true,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Agent.
func (a *ModelAgent) Name() string { return a.spec.Role }

// Stage returns the stage the agent serves.
func (a *ModelAgent) Stage() string { return a.spec.Stage }

// Handle implements Agent.
func (a *ModelAgent) Handle(ctx context.Context, in handoff.StageInput) (res session.AgentResult) {
	defer recoverInto(&res, a.spec.Stage, a.spec.Role)
	res = a.handle(ctx, in)
	res.Agent = a.spec.Role
	return res
}

func (a *ModelAgent) handle(ctx context.Context, in handoff.StageInput) session.AgentResult {
	stage := a.spec.Stage
	rng := tools.NewRand(in.Seed())

	draft, err := a.spec.Prepare(rng, in)
	if err != nil {
		return failure(stage, err)
	}
	if a.spec.Prompt == nil {
		return session.Succeeded(stage, session.SourceTool, draft.Payload)
	}

	primary := func(ctx context.Context) (session.Payload, error) {
		return a.ask(ctx, draft)
	}
	var fallback resilience.FallbackStrategy[session.Payload]
	if a.fallback && draft.Mock != nil {
		fallback = resilience.FallbackFunc[session.Payload](func(ctx context.Context, cause error) (session.Payload, error) {
			if !errors.IsClientFailure(cause) {
				return nil, cause
			}
			p := session.ClonePayload(draft.Payload)
			if err := draft.Mock(p); err != nil {
				return nil, err
			}
			a.logger.InfoContext(ctx, "stage served from mock data",
				"stage", stage,
				"agent", a.spec.Role,
				"cause", cause.Error(),
			)
			return p, nil
		})
	}

	payload, usedFallback, err := resilience.WithFallback(ctx, primary, fallback)
	if err != nil {
		return failure(stage, err)
	}
	source := session.SourceModel
	if usedFallback {
		source = session.SourceMock
	}
	return session.Succeeded(stage, source, payload)
}

func (a *ModelAgent) ask(ctx context.Context, draft *Draft) (session.Payload, error) {
	if a.client == nil {
		return nil, errors.New(errors.CodeNetwork, "no model client configured", nil)
	}
	var buf bytes.Buffer
	if err := a.spec.Prompt.Execute(&buf, draft.PromptData); err != nil {
		return nil, errors.New(errors.CodeInternal, "render prompt", err).WithContext("stage", a.spec.Stage)
	}
	opts := a.opts
	if a.spec.System != "" {
		opts.System = a.spec.System
	}
	opts.JSON = true

	text, err := a.client.Complete(ctx, buf.String(), opts)
	if err != nil {
		return nil, err
	}
	reply, err := ParseReply(text)
	if err != nil {
		return nil, err
	}
	p := session.ClonePayload(draft.Payload)
	if err := draft.Apply(p, reply); err != nil {
		return nil, errors.New(errors.CodeInvalidResponse, "model reply does not fit stage "+a.spec.Stage, err).
			WithContext("stage", a.spec.Stage)
	}
	return p, nil
}

var _ Agent = (*ModelAgent)(nil)

var promptFuncs = template.FuncMap{
	"join": strings.Join,
}

// prompt parses a stage prompt template. It panics on a malformed template,
// which only happens for the built-in stages at init time.
func prompt(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(promptFuncs).Parse(text))
}
