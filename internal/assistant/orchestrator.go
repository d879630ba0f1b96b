package assistant

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"aria/backend/internal/openrouter"
)

// AdminContactMessage is the fixed error text persisted when every provider
// has failed or been skipped.
const AdminContactMessage = "The AI service is currently unavailable. Please contact your administrator."

// PrimaryClient is the preferred completion provider (role-tagged messages).
type PrimaryClient interface {
	ChatCompletion(ctx context.Context, req openrouter.Request) (string, error)
}

// SecondaryClient is the fallback provider (single prompt string).
type SecondaryClient interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// ProviderConfig is the explicit credential/model wiring for the
// orchestrator; nothing here reads the process environment at call time.
type ProviderConfig struct {
	PrimaryKey   string
	SecondaryKey string
	PrimaryModel string
	DefaultModel string
}

type CompletionRequest struct {
	Model            string
	Messages         []openrouter.Message
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

type Result struct {
	Content  string
	Provider string
}

// TurnError is a terminal orchestration failure. Its message is what gets
// persisted as the error-role turn and surfaced to the client.
type TurnError struct {
	Message string
}

func (e *TurnError) Error() string {
	return e.Message
}

// Orchestrator runs the two-state provider machine: try the primary when its
// credential is usable, fall back to the secondary on retryable failures,
// and end the turn in an error state when both are exhausted.
type Orchestrator struct {
	cfg       ProviderConfig
	primary   PrimaryClient
	secondary SecondaryClient
}

func NewOrchestrator(cfg ProviderConfig, primary PrimaryClient, secondary SecondaryClient) Orchestrator {
	return Orchestrator{cfg: cfg, primary: primary, secondary: secondary}
}

func (o Orchestrator) Complete(ctx context.Context, req CompletionRequest) (Result, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = o.cfg.PrimaryModel
	}
	if model == "" {
		model = o.cfg.DefaultModel
	}

	if credentialUsable(o.cfg.PrimaryKey) && o.primary != nil {
		content, err := o.primary.ChatCompletion(ctx, openrouter.Request{
			Model:            model,
			Messages:         req.Messages,
			Temperature:      req.Temperature,
			MaxTokens:        req.MaxTokens,
			TopP:             req.TopP,
			FrequencyPenalty: req.FrequencyPenalty,
			PresencePenalty:  req.PresencePenalty,
		})
		if err == nil {
			return Result{Content: content, Provider: "openrouter"}, nil
		}

		var apiErr openrouter.APIError
		if errors.As(err, &apiErr) && !isRetryableStatus(apiErr.StatusCode) {
			log.Printf("primary provider rejected request: status=%d", apiErr.StatusCode)
			return Result{}, &TurnError{Message: fmt.Sprintf("Failed to get AI response: %s", apiErr.Body)}
		}

		log.Printf("primary provider failed, falling back: err=%v", err)
	} else {
		log.Printf("primary provider skipped: credential not configured")
	}

	if o.secondary == nil {
		return Result{}, &TurnError{Message: AdminContactMessage}
	}

	content, err := o.secondary.GenerateContent(ctx, FlattenMessages(req.Messages))
	if err != nil {
		log.Printf("secondary provider failed: err=%v", err)
		return Result{}, &TurnError{Message: AdminContactMessage}
	}

	return Result{Content: content, Provider: "gemini"}, nil
}

// isRetryableStatus: server errors and rate limits are worth retrying on the
// other provider; remaining 4xx statuses mean the request itself is bad.
func isRetryableStatus(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

// credentialUsable rejects empty keys and template text left in config.
func credentialUsable(key string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(key))
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "your") || strings.Contains(trimmed, "placeholder") || trimmed == "changeme" {
		return false
	}
	return true
}
