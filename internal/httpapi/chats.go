package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"aria/backend/internal/serpapi"

	"github.com/google/uuid"
)

const titleMaxRunes = 50

type chatResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	LastMessageAt   string `json:"last_message_at"`
	MessageCount    int    `json:"message_count"`
	LastMessageTime string `json:"last_message_time,omitempty"`
}

type messageResponse struct {
	ID               string                 `json:"id"`
	Role             string                 `json:"role"`
	Content          string                 `json:"content"`
	Timestamp        string                 `json:"timestamp"`
	WebSearchResults []serpapi.SearchResult `json:"webSearchResults,omitempty"`
	DownloadURL      string                 `json:"downloadUrl,omitempty"`
	DownloadFilename string                 `json:"downloadFilename,omitempty"`
}

type createChatRequest struct {
	Title string `json:"title"`
}

func (h Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}

	var req createChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
		return
	}

	chatID, err := h.nextChatID(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to allocate chat id")
		return
	}

	var chat chatResponse
	err = h.db.QueryRowContext(r.Context(), `
INSERT INTO chats (id, user_id, title)
VALUES (?, ?, ?)
RETURNING id, title, created_at, updated_at, last_message_at;
`, chatID, user.ID, title).Scan(&chat.ID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt, &chat.LastMessageAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to create chat")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "chat": chat})
}

func (h Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
SELECT
  c.id,
  c.title,
  c.created_at,
  c.updated_at,
  c.last_message_at,
  COUNT(m.id),
  COALESCE(MAX(m.created_at), '')
FROM chats c
LEFT JOIN messages m ON m.chat_id = c.id
WHERE c.user_id = ?
GROUP BY c.id, c.title, c.created_at, c.updated_at, c.last_message_at
ORDER BY c.last_message_at DESC, c.created_at DESC;
`, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read chats")
		return
	}
	defer rows.Close()

	chats := make([]chatResponse, 0, 16)
	for rows.Next() {
		var chat chatResponse
		if err := rows.Scan(&chat.ID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt, &chat.LastMessageAt, &chat.MessageCount, &chat.LastMessageTime); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error", "failed to parse chats")
			return
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read chats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (h Handler) ListChatMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}

	chatID := strings.TrimSpace(r.URL.Query().Get("chatId"))
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "chatId is required")
		return
	}

	owned, err := h.chatOwnedBy(r.Context(), chatID, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to check chat ownership")
		return
	}
	if !owned {
		writeError(w, http.StatusNotFound, "not_found", "chat not found or access denied")
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
SELECT id, role, content, COALESCE(web_search_results, ''), COALESCE(download_url, ''), COALESCE(download_filename, ''), created_at
FROM messages
WHERE chat_id = ? AND user_id = ?
ORDER BY created_at ASC, rowid ASC;
`, chatID, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read messages")
		return
	}
	defer rows.Close()

	messages := make([]messageResponse, 0, 32)
	for rows.Next() {
		var msg messageResponse
		var rawResults string
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &rawResults, &msg.DownloadURL, &msg.DownloadFilename, &msg.Timestamp); err != nil {
			writeError(w, http.StatusInternalServerError, "db_error", "failed to parse messages")
			return
		}
		if rawResults != "" {
			if err := json.Unmarshal([]byte(rawResults), &msg.WebSearchResults); err != nil {
				log.Printf("decode stored search results failed: message_id=%s err=%v", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to read messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type deleteChatRequest struct {
	ChatID string `json:"chatId"`
}

func (h Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}

	var req deleteChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ChatID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "chatId is required")
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

	// Explicit message delete; the cascade only fires when the connection
	// has the foreign-key pragma set.
	if _, err := h.db.ExecContext(r.Context(), `DELETE FROM messages WHERE chat_id = ?;`, req.ChatID); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to delete chat")
		return
	}
	if _, err := h.db.ExecContext(r.Context(), `DELETE FROM chats WHERE id = ? AND user_id = ?;`, req.ChatID, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to delete chat")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h Handler) ClearChats(w http.ResponseWriter, r *http.Request) {
	user, ok := sessionUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
		return
	}

	if _, err := h.db.ExecContext(r.Context(), `DELETE FROM messages WHERE chat_id IN (SELECT id FROM chats WHERE user_id = ?);`, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to clear chat history")
		return
	}
	if _, err := h.db.ExecContext(r.Context(), `DELETE FROM chats WHERE user_id = ?;`, user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "failed to clear chat history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "All chat history cleared successfully"})
}

// nextChatID allocates from the per-user sequence, so ids are per-user
// rather than globally ordered.
func (h Handler) nextChatID(ctx context.Context, userID string) (string, error) {
	var seq int64
	err := h.db.QueryRowContext(ctx, `
UPDATE users SET next_chat_seq = next_chat_seq + 1 WHERE id = ?
RETURNING next_chat_seq;
`, userID).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("allocate chat sequence: %w", err)
	}
	return fmt.Sprintf("%s-%d", userID, seq), nil
}

func (h Handler) chatOwnedBy(ctx context.Context, chatID, userID string) (bool, error) {
	var id string
	err := h.db.QueryRowContext(ctx, `SELECT id FROM chats WHERE id = ? AND user_id = ?;`, chatID, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check chat ownership: %w", err)
	}
	return true, nil
}

// insertMessage persists one turn and touches the chat's recency columns.
// Assistant and error turns keep the session user's id, not the provider's.
func (h Handler) insertMessage(ctx context.Context, chatID, userID, role, content string, results []serpapi.SearchResult) (messageResponse, error) {
	var resultsJSON sql.NullString
	if len(results) > 0 {
		encoded, err := json.Marshal(results)
		if err != nil {
			return messageResponse{}, fmt.Errorf("encode search results: %w", err)
		}
		resultsJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	msg := messageResponse{Role: role, Content: content, WebSearchResults: results}
	err := h.db.QueryRowContext(ctx, `
INSERT INTO messages (id, chat_id, user_id, role, content, web_search_results)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, created_at;
`, uuid.NewString(), chatID, userID, role, content, resultsJSON).Scan(&msg.ID, &msg.Timestamp)
	if err != nil {
		return messageResponse{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := h.db.ExecContext(ctx, `
UPDATE chats SET last_message_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?;
`, chatID); err != nil {
		return messageResponse{}, fmt.Errorf("touch chat recency: %w", err)
	}

	return msg, nil
}

// maybeRewriteTitle replaces the placeholder title after the first full
// exchange. The count check is not guarded by a transaction; concurrent first
// exchanges on one chat can double-fire or skip it, matching the source
// system.
func (h Handler) maybeRewriteTitle(ctx context.Context, chatID, firstMessage string) {
	var count int
	if err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = ?;`, chatID).Scan(&count); err != nil {
		log.Printf("count messages for title rewrite failed: chat_id=%s err=%v", chatID, err)
		return
	}
	if count != 2 {
		return
	}

	title := firstMessage
	if len([]rune(title)) > titleMaxRunes {
		title = string([]rune(title)[:titleMaxRunes]) + "..."
	}

	if _, err := h.db.ExecContext(ctx, `UPDATE chats SET title = ? WHERE id = ?;`, title, chatID); err != nil {
		log.Printf("rewrite chat title failed: chat_id=%s err=%v", chatID, err)
	}
}
