package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	rerrors "github.com/jllopis/relay/pkg/errors"
	"github.com/jllopis/relay/pkg/resilience"
)

func TestMockProvider(t *testing.T) {
	mock := &MockProvider{Response: "Hello world"}
	resp, err := mock.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "Hello world" {
		t.Errorf("Expected 'Hello world', got '%s'", resp.Content)
	}
}

func TestClientBuildsMessages(t *testing.T) {
	var got ChatRequest
	client := NewClient(&MockProvider{ChatFunc: func(_ context.Context, req ChatRequest) (*ChatResponse, error) {
		got = req
		return &ChatResponse{Content: "ok"}, nil
	}}, WithDefaultModel("gemini-1.5-flash"))

	out, err := client.Complete(context.Background(), "plan a trip", Options{System: "you are a travel agent", JSON: true})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "ok" {
		t.Fatalf("unexpected output %q", out)
	}
	if got.Model != "gemini-1.5-flash" || !got.JSON {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != RoleSystem || got.Messages[1].Content != "plan a trip" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestClientEmptyCompletionIsInvalidResponse(t *testing.T) {
	client := NewClient(&MockProvider{Response: "   "})
	_, err := client.Complete(context.Background(), "x", Options{})
	if !rerrors.IsCode(err, rerrors.CodeInvalidResponse) {
		t.Fatalf("expected invalid response, got %v", err)
	}
}

func TestClientTimeout(t *testing.T) {
	client := NewClient(&MockProvider{ChatFunc: func(ctx context.Context, _ ChatRequest) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, WithCallTimeout(20*time.Millisecond))

	_, err := client.Complete(context.Background(), "x", Options{})
	if !rerrors.IsCode(err, rerrors.CodeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !rerrors.IsClientFailure(err) {
		t.Fatalf("timeout should count as a client failure")
	}
}

func TestClientClassifiesUnknownErrors(t *testing.T) {
	client := NewClient(&FailingMockProvider{Err: errors.New("connection reset")}, WithProviderName("openai"))
	_, err := client.Complete(context.Background(), "x", Options{})
	re := rerrors.AsRelayError(err)
	if re.Code != rerrors.CodeNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if re.Context["provider"] != "openai" {
		t.Fatalf("expected provider in context, got %v", re.Context)
	}
}

func TestClientCircuitBreaker(t *testing.T) {
	provider := NewScriptedMockProvider()
	provider.Err = errors.New("down")
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour})
	client := NewClient(provider, WithCircuitBreaker(cb))

	_, _ = client.Complete(context.Background(), "x", Options{})
	_, err := client.Complete(context.Background(), "x", Options{})
	if !rerrors.IsCode(err, rerrors.CodeNetwork) {
		t.Fatalf("expected network error from open breaker, got %v", err)
	}
	if provider.CallCount() != 1 {
		t.Fatalf("expected breaker to stop the second call, got %d calls", provider.CallCount())
	}
}

func TestErrorFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   rerrors.ErrorCode
	}{
		{0, rerrors.CodeNetwork},
		{429, rerrors.CodeQuota},
		{402, rerrors.CodeQuota},
		{503, rerrors.CodeNetwork},
		{400, rerrors.CodeInvalidResponse},
	}
	for _, tt := range tests {
		if got := ErrorFromStatus("gemini", tt.status, nil).Code; got != tt.want {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.want, got)
		}
	}
}

func TestScriptedMockProvider(t *testing.T) {
	p := NewScriptedMockProvider("one", "two")
	for _, want := range []string{"one", "two"} {
		resp, err := p.Chat(context.Background(), ChatRequest{})
		if err != nil || resp.Content != want {
			t.Fatalf("expected %q, got %v (%v)", want, resp, err)
		}
	}
	if _, err := p.Chat(context.Background(), ChatRequest{}); !rerrors.IsCode(err, rerrors.CodeQuota) {
		t.Fatalf("expected exhausted script to report quota, got %v", err)
	}
}

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Format != "json" {
			t.Errorf("expected json format, got %q", req.Format)
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{
			Message:         Message{Role: RoleAssistant, Content: `{"ok":true}`},
			Done:            true,
			PromptEvalCount: 3,
			EvalCount:       4,
		})
	}))
	defer srv.Close()

	resp, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "llama3", JSON: true})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != `{"ok":true}` || resp.Usage.TotalTokens != 7 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOllamaProviderQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewOllama(srv.URL).Chat(context.Background(), ChatRequest{Model: "llama3"})
	if !rerrors.IsCode(err, rerrors.CodeQuota) {
		t.Fatalf("expected quota error, got %v", err)
	}
}
