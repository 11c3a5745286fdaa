package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/resilience"
	"github.com/jllopis/relay/pkg/telemetry"
)

// Options tune a single completion.
type Options struct {
	System      string
	Model       string
	Temperature float64
	MaxTokens   int
	// JSON hints that the caller will parse the reply as a JSON object.
	JSON bool
	// Timeout overrides the client default for this call.
	Timeout time.Duration
}

// Client is the prompt-in, text-out boundary agents depend on. Complete fails
// with a RelayError coded NETWORK_ERROR, QUOTA_EXCEEDED, INVALID_RESPONSE or
// TIMEOUT; callers are expected to fall back to deterministic data.
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, prompt string, opts Options) (string, error)

// Complete implements Client.
func (f ClientFunc) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}

// ProviderClient adapts a chat Provider to Client, adding a call timeout,
// an optional circuit breaker and error classification.
type ProviderClient struct {
	provider Provider
	name     string
	model    string
	timeout  time.Duration
	breaker  *resilience.CircuitBreaker
	logger   *slog.Logger
	tracer   trace.Tracer
}

// ClientOption configures a ProviderClient.
type ClientOption func(*ProviderClient)

// WithProviderName sets the name used in errors, logs and spans.
func WithProviderName(name string) ClientOption {
	return func(c *ProviderClient) {
		c.name = name
	}
}

// WithDefaultModel sets the model used when Options.Model is empty.
func WithDefaultModel(model string) ClientOption {
	return func(c *ProviderClient) {
		c.model = model
	}
}

// WithCallTimeout sets the default per-call timeout.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *ProviderClient) {
		c.timeout = d
	}
}

// WithCircuitBreaker guards the provider with a circuit breaker.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) ClientOption {
	return func(c *ProviderClient) {
		c.breaker = cb
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *ProviderClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient wraps a provider. The default timeout is resilience.DefaultCallTimeout.
func NewClient(p Provider, opts ...ClientOption) *ProviderClient {
	c := &ProviderClient{
		provider: p,
		name:     "llm",
		timeout:  resilience.DefaultCallTimeout,
		logger:   slog.Default(),
		tracer:   otel.Tracer("relay/llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name.
func (c *ProviderClient) Name() string {
	return c.name
}

// Complete implements Client.
func (c *ProviderClient) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if c.provider == nil {
		return "", errors.New(errors.CodeNetwork, "no model provider configured", nil)
	}
	req := ChatRequest{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		JSON:        opts.JSON,
	}
	if req.Model == "" {
		req.Model = c.model
	}
	if opts.System != "" {
		req.Messages = append(req.Messages, Message{Role: RoleSystem, Content: opts.System})
	}
	req.Messages = append(req.Messages, Message{Role: RoleUser, Content: prompt})

	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	ctx, span := c.tracer.Start(ctx, "LLM.Complete", trace.WithAttributes(
		attribute.String(telemetry.AttrLLMProvider, c.name),
		attribute.String(telemetry.AttrLLMModel, req.Model),
	))
	defer span.End()

	start := time.Now()
	var resp *ChatResponse
	call := func(ctx context.Context) error {
		r, err := resilience.WithTimeoutValue(ctx, resilience.TimeoutConfig{Duration: timeout},
			func(ctx context.Context) (*ChatResponse, error) {
				return c.provider.Chat(ctx, req)
			})
		if err != nil {
			return Classify(c.name, err)
		}
		if r == nil || strings.TrimSpace(r.Content) == "" {
			return errors.New(errors.CodeInvalidResponse, c.name+" returned an empty completion", nil).
				WithContext("provider", c.name)
		}
		resp = r
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	span.SetAttributes(attribute.Int64(telemetry.AttrLLMDurationMs, time.Since(start).Milliseconds()))
	if err != nil {
		re := Classify(c.name, err)
		span.RecordError(re)
		span.SetStatus(codes.Error, string(re.Code))
		c.logger.WarnContext(ctx, "model call failed",
			"provider", c.name,
			"code", string(re.Code),
			"error", re.Error(),
		)
		return "", re
	}

	span.SetAttributes(
		attribute.Int(telemetry.AttrLLMTokensInput, resp.Usage.PromptTokens),
		attribute.Int(telemetry.AttrLLMTokensOutput, resp.Usage.CompletionTokens),
	)
	return resp.Content, nil
}

var _ Client = (*ProviderClient)(nil)
