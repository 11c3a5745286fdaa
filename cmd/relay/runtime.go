package main

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jllopis/relay/pkg/agent"
	"github.com/jllopis/relay/pkg/config"
	"github.com/jllopis/relay/pkg/coordinator"
	"github.com/jllopis/relay/pkg/guardrails"
	"github.com/jllopis/relay/pkg/handoff"
	"github.com/jllopis/relay/pkg/llm"
	"github.com/jllopis/relay/pkg/present"
	"github.com/jllopis/relay/pkg/resilience"
	"github.com/jllopis/relay/pkg/session"
	"github.com/jllopis/relay/providers/anthropic"
	"github.com/jllopis/relay/providers/gemini"
	"github.com/jllopis/relay/providers/openai"
)

// runtime is everything a command needs to run sessions.
type runtime struct {
	manager *coordinator.Manager
	catalog *handoff.Catalog
	client  llm.Client
	audit   handoff.AuditStore
	closers []func() error
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return stderrors.Join(errs...)
}

// newProvider builds the model backend named in the configuration.
func newProvider(ctx context.Context, cfg config.LLMConfig) (llm.Provider, error) {
	key := cfg.ResolveAPIKey()
	switch cfg.Provider {
	case "", "mock":
		// Every model call fails, so agents answer with their
		// deterministic fallback data.
		return &llm.FailingMockProvider{}, nil
	case "ollama":
		return llm.NewOllama(cfg.BaseURL), nil
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		if key != "" {
			opts = append(opts, openai.WithAPIKey(key))
		}
		return openai.New(opts...), nil
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
		if cfg.MaxTokens > 0 {
			opts = append(opts, anthropic.WithMaxTokens(int64(cfg.MaxTokens)))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		if key != "" {
			opts = append(opts, anthropic.WithAPIKey(key))
		}
		return anthropic.New(opts...), nil
	case "gemini":
		opts := []gemini.Option{gemini.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		if key != "" {
			return gemini.NewWithAPIKey(ctx, key, opts...)
		}
		return gemini.New(ctx, opts...)
	default:
		return nil, NewInvalidArgumentError("llm.provider", fmt.Sprintf("unknown provider %q", cfg.Provider))
	}
}

func (a *app) newClient(ctx context.Context) (llm.Client, error) {
	p, err := newProvider(ctx, a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	opts := []llm.ClientOption{
		llm.WithProviderName(a.cfg.LLM.Provider),
		llm.WithDefaultModel(a.cfg.LLM.Model),
		llm.WithCallTimeout(a.cfg.LLM.Timeout),
		llm.WithClientLogger(a.logger),
	}
	if a.modelBacked() {
		opts = append(opts, llm.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})))
	}
	return llm.NewClient(p, opts...), nil
}

func (a *app) modelBacked() bool {
	return a.cfg.LLM.Provider != "" && a.cfg.LLM.Provider != "mock"
}

func openStore(cfg config.SessionConfig) (session.Store, func() error, error) {
	switch cfg.Store {
	case "memory":
		return session.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := session.OpenSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return session.NewFileStore(cfg.Dir), func() error { return nil }, nil
	}
}

func openAudit(cfg config.AuditConfig) (handoff.AuditStore, func() error, error) {
	if !cfg.Enabled {
		return handoff.NewMemoryAuditStore(), func() error { return nil }, nil
	}
	s, err := handoff.OpenSQLiteAuditStore(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// newRuntime wires the configured provider, stores and pipelines into a
// session manager. extra options are applied after the defaults.
func (a *app) newRuntime(ctx context.Context, sink present.Sink, extra ...coordinator.Option) (*runtime, error) {
	rt := &runtime{}

	client, err := a.newClient(ctx)
	if err != nil {
		return nil, err
	}
	rt.client = client

	catalog, err := handoff.NewCatalog(a.cfg.Pipeline.DefinitionsDir)
	if err != nil {
		return nil, err
	}
	rt.catalog = catalog

	store, closeStore, err := openStore(a.cfg.Session)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closeStore)

	audit, closeAudit, err := openAudit(a.cfg.Audit)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.audit = audit
	rt.closers = append(rt.closers, closeAudit)

	modelOpts := llm.Options{Temperature: a.cfg.LLM.Temperature, MaxTokens: a.cfg.LLM.MaxTokens}
	agentOpts := []agent.Option{agent.WithLogger(a.logger), agent.WithModelOptions(modelOpts)}

	opts := []coordinator.Option{
		coordinator.WithLogger(a.logger),
		coordinator.WithSink(sink),
		coordinator.WithAuditStore(audit),
		coordinator.WithRetry(resilience.DefaultRetryConfig().
			WithMaxAttempts(a.cfg.Pipeline.MaxAttempts).
			WithInitialDelay(a.cfg.Pipeline.InitialDelay)),
	}
	if a.cfg.Pipeline.Seed != 0 {
		opts = append(opts, coordinator.WithDefaultSeed(a.cfg.Pipeline.Seed))
	}
	if a.cfg.Guard.Enabled {
		gopts := []guardrails.Option{guardrails.WithPromptInjectionDetector()}
		if a.cfg.Guard.FailOpen {
			gopts = append(gopts, guardrails.WithFailOpen(true))
		}
		opts = append(opts, coordinator.WithGuardrails(guardrails.New(gopts...)))
	}
	if a.modelBacked() {
		opts = append(opts, coordinator.WithSummarizer(coordinator.ModelSummarizer(client, modelOpts)))
	}
	opts = append(opts, extra...)

	rt.manager = coordinator.NewManager(catalog, func(d session.Domain) (*agent.Registry, error) {
		return agent.DefaultRegistry(d, client, agentOpts...)
	}, store, opts...)
	return rt, nil
}
