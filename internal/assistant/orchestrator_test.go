package assistant

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"aria/backend/internal/gemini"
	"aria/backend/internal/openrouter"
)

type stubPrimary struct {
	content  string
	err      error
	calls    int
	received openrouter.Request
}

func (s *stubPrimary) ChatCompletion(_ context.Context, req openrouter.Request) (string, error) {
	s.calls++
	s.received = req
	return s.content, s.err
}

type stubSecondary struct {
	content  string
	err      error
	calls    int
	received string
}

func (s *stubSecondary) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.received = prompt
	return s.content, s.err
}

func testRequest() CompletionRequest {
	return CompletionRequest{
		Messages:    []openrouter.Message{{Role: "user", Content: "hello"}},
		Temperature: 0.7,
		MaxTokens:   2000,
		TopP:        1,
	}
}

func TestCompleteUsesPrimaryOnSuccess(t *testing.T) {
	primary := &stubPrimary{content: "from primary"}
	secondary := &stubSecondary{content: "from secondary"}

	orchestrator := NewOrchestrator(ProviderConfig{PrimaryKey: "or-key", PrimaryModel: "vendor/model"}, primary, secondary)

	result, err := orchestrator.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if result.Content != "from primary" || result.Provider != "openrouter" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary should not be called, got %d calls", secondary.calls)
	}
	if primary.received.Model != "vendor/model" {
		t.Fatalf("expected configured model, got %q", primary.received.Model)
	}
}

func TestCompleteFallsBackOnServerError(t *testing.T) {
	primary := &stubPrimary{err: openrouter.APIError{StatusCode: http.StatusServiceUnavailable, Body: "overloaded"}}
	secondary := &stubSecondary{content: "from secondary"}

	orchestrator := NewOrchestrator(ProviderConfig{PrimaryKey: "or-key"}, primary, secondary)

	result, err := orchestrator.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if result.Provider != "gemini" || result.Content != "from secondary" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if secondary.received != "user: hello" {
		t.Fatalf("unexpected flattened prompt: %q", secondary.received)
	}
}

func TestCompleteFallsBackOnRateLimit(t *testing.T) {
	primary := &stubPrimary{err: openrouter.APIError{StatusCode: http.StatusTooManyRequests, Body: "slow down"}}
	secondary := &stubSecondary{content: "from secondary"}

	orchestrator := NewOrchestrator(ProviderConfig{PrimaryKey: "or-key"}, primary, secondary)

	if _, err := orchestrator.Complete(context.Background(), testRequest()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if secondary.calls != 1 {
		t.Fatalf("expected fallback on 429, secondary calls = %d", secondary.calls)
	}
}

func TestCompleteFallsBackOnNetworkError(t *testing.T) {
	primary := &stubPrimary{err: errors.New("dial tcp: connection refused")}
	secondary := &stubSecondary{content: "from secondary"}

	orchestrator := NewOrchestrator(ProviderConfig{PrimaryKey: "or-key"}, primary, secondary)

	if _, err := orchestrator.Complete(context.Background(), testRequest()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if secondary.calls != 1 {
		t.Fatalf("expected fallback on network error, secondary calls = %d", secondary.calls)
	}
}

func TestCompleteDoesNotFallBackOnClientError(t *testing.T) {
	primary := &stubPrimary{err: openrouter.APIError{StatusCode: http.StatusBadRequest, Body: "bad request"}}
	secondary := &stubSecondary{content: "from secondary"}

	orchestrator := NewOrchestrator(ProviderConfig{PrimaryKey: "or-key"}, primary, secondary)

	_, err := orchestrator.Complete(context.Background(), testRequest())

	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		t.Fatalf("expected TurnError, got %v", err)
	}
	if !strings.Contains(turnErr.Message, "Failed to get AI response: bad request") {
		t.Fatalf("unexpected error message: %q", turnErr.Message)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary must not run on 4xx, got %d calls", secondary.calls)
	}
}

func TestCompleteSkipsPrimaryWithoutCredential(t *testing.T) {
	primary := &stubPrimary{content: "from primary"}
	secondary := &stubSecondary{content: "from secondary"}

	orchestrator := NewOrchestrator(ProviderConfig{PrimaryKey: ""}, primary, secondary)

	result, err := orchestrator.Complete(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if primary.calls != 0 {
		t.Fatalf("primary must be skipped without a key, got %d calls", primary.calls)
	}
	if result.Provider != "gemini" {
		t.Fatalf("unexpected provider: %q", result.Provider)
	}
}

func TestCompleteSkipsPrimaryWithPlaceholderCredential(t *testing.T) {
	primary := &stubPrimary{content: "from primary"}
	secondary := &stubSecondary{content: "from secondary"}

	orchestrator := NewOrchestrator(ProviderConfig{PrimaryKey: "YOUR_API_KEY_HERE"}, primary, secondary)

	if _, err := orchestrator.Complete(context.Background(), testRequest()); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("primary must be skipped with a placeholder key, got %d calls", primary.calls)
	}
}

func TestCompleteReturnsAdminMessageWhenBothFail(t *testing.T) {
	primary := &stubPrimary{err: openrouter.APIError{StatusCode: http.StatusInternalServerError, Body: "boom"}}
	secondary := &stubSecondary{err: gemini.ErrMissingAPIKey}

	orchestrator := NewOrchestrator(ProviderConfig{PrimaryKey: "or-key"}, primary, secondary)

	_, err := orchestrator.Complete(context.Background(), testRequest())

	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		t.Fatalf("expected TurnError, got %v", err)
	}
	if turnErr.Message != AdminContactMessage {
		t.Fatalf("unexpected message: %q", turnErr.Message)
	}
}

func TestCompleteFallsBackModelSelection(t *testing.T) {
	primary := &stubPrimary{content: "ok"}

	orchestrator := NewOrchestrator(ProviderConfig{PrimaryKey: "or-key", DefaultModel: "vendor/default"}, primary, &stubSecondary{})

	req := testRequest()
	req.Model = ""
	if _, err := orchestrator.Complete(context.Background(), req); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if primary.received.Model != "vendor/default" {
		t.Fatalf("expected default model, got %q", primary.received.Model)
	}

	req.Model = "vendor/override"
	if _, err := orchestrator.Complete(context.Background(), req); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if primary.received.Model != "vendor/override" {
		t.Fatalf("expected request model to win, got %q", primary.received.Model)
	}
}
