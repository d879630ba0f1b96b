package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"aria/backend/internal/assistant"
	"aria/backend/internal/serpapi"
)

type chatMessageRequest struct {
	ChatID           string                  `json:"chatId"`
	Message          string                  `json:"message"`
	Mode             string                  `json:"mode"`
	Model            string                  `json:"model"`
	SystemPrompt     string                  `json:"systemPrompt"`
	ContextLength    int                     `json:"contextLength"`
	Temperature      *float64                `json:"temperature"`
	MaxTokens        *int                    `json:"maxTokens"`
	TopP             *float64                `json:"topP"`
	FrequencyPenalty *float64                `json:"frequencyPenalty"`
	PresencePenalty  *float64                `json:"presencePenalty"`
	UploadedFile     *assistant.UploadedFile `json:"uploadedFile"`
}

// SendMessage runs one full turn: persist the user message, assemble context,
// optionally augment with live search, call the model, persist the outcome.
func (h Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}

	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ChatID) == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Chat ID and message are required")
		return
	}

	owned, err := h.chatOwnedBy(r.Context(), req.ChatID, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to check chat ownership")
		return
	}
	if !owned {
		writeError(w, http.StatusNotFound, "not_found", "chat not found or access denied")
		return
	}

	userMsg, err := h.insertMessage(r.Context(), req.ChatID, user.ID, "user", req.Message, nil)
	if err != nil {
		log.Printf("persist user message failed: chat_id=%s err=%v", req.ChatID, err)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to save message")
		return
	}

	contextLength := req.ContextLength
	if contextLength <= 0 {
		contextLength = h.cfg.DefaultContextLength
	}
	history, err := h.loadHistory(r.Context(), req.ChatID, userMsg.ID, contextLength)
	if err != nil {
		log.Printf("load chat history failed: chat_id=%s err=%v", req.ChatID, err)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to load chat history")
		return
	}

	var searchContext string
	var results []serpapi.SearchResult
	if assistant.NeedsRealTimeInfo(req.Message) {
		results, searchContext = h.augmenter.Augment(r.Context(), req.Message)
	}

	mode := h.cfg.ModeFor(req.Mode)
	systemPrompt := mode.SystemPrompt
	if strings.TrimSpace(req.SystemPrompt) != "" {
		systemPrompt = req.SystemPrompt
	}

	messages := assistant.BuildMessages(systemPrompt, history, req.Message, searchContext, req.UploadedFile)

	completion := assistant.CompletionRequest{
		Model:            firstNonEmpty(req.Model, mode.Model),
		Messages:         messages,
		Temperature:      valueOr(req.Temperature, mode.Temperature),
		MaxTokens:        intOr(req.MaxTokens, h.cfg.DefaultMaxTokens),
		TopP:             valueOr(req.TopP, 1),
		FrequencyPenalty: valueOr(req.FrequencyPenalty, 0),
		PresencePenalty:  valueOr(req.PresencePenalty, 0),
	}

	result, err := h.orchestrator.Complete(r.Context(), completion)
	if err != nil {
		var turnErr *assistant.TurnError
		if !errors.As(err, &turnErr) {
			turnErr = &assistant.TurnError{Message: assistant.AdminContactMessage}
		}
		if _, persistErr := h.insertMessage(r.Context(), req.ChatID, user.ID, "error", turnErr.Message, nil); persistErr != nil {
			log.Printf("persist error message failed: chat_id=%s err=%v", req.ChatID, persistErr)
		} else {
			h.maybeRewriteTitle(r.Context(), req.ChatID, req.Message)
		}
		writeError(w, http.StatusInternalServerError, "upstream_error", turnErr.Message)
		return
	}

	assistantMsg, err := h.insertMessage(r.Context(), req.ChatID, user.ID, "assistant", result.Content, results)
	if err != nil {
		log.Printf("persist assistant message failed: chat_id=%s err=%v", req.ChatID, err)
		writeError(w, http.StatusInternalServerError, "db_error", "failed to save response")
		return
	}

	h.maybeRewriteTitle(r.Context(), req.ChatID, req.Message)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"provider":         result.Provider,
		"userMessage":      userMsg,
		"assistantMessage": assistantMsg,
	})
}

// loadHistory returns the chat's most recent turns in chronological order,
// excluding the message just written for this turn so it is not doubled in
// the model context.
func (h Handler) loadHistory(ctx context.Context, chatID, excludeID string, limit int) ([]assistant.HistoryMessage, error) {
	rows, err := h.db.QueryContext(ctx, `
SELECT role, content FROM messages
WHERE chat_id = ? AND id != ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, chatID, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	recent := make([]assistant.HistoryMessage, 0, limit)
	for rows.Next() {
		var msg assistant.HistoryMessage
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		recent = append(recent, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	// Newest-first from the query, oldest-first for the model.
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}
	return recent, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func valueOr(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}

func intOr(v *int, fallback int) int {
	if v != nil {
		return *v
	}
	return fallback
}
