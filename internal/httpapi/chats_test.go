package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aria/backend/internal/session"
)

func TestCreateChatAllocatesPerUserIDs(t *testing.T) {
	handler, database := newTestHandler(t, testCollaborators{})

	user := session.User{ID: "user-1"}
	seedUser(t, database, user.ID, "user1@example.com")

	var ids []string
	for i := 0; i < 2; i++ {
		req := requestWithSessionUser(httptest.NewRequest(http.MethodPost, "/v1/chat/create", strings.NewReader(`{"title":"Project notes"}`)), user)
		resp := httptest.NewRecorder()
		handler.CreateChat(resp, req)

		if resp.Code != http.StatusCreated {
			t.Fatalf("expected status %d, got %d (%s)", http.StatusCreated, resp.Code, resp.Body.String())
		}
		var created struct {
			Chat chatResponse `json:"chat"`
		}
		decodeJSONBody(t, resp, &created)
		ids = append(ids, created.Chat.ID)
	}

	if ids[0] != "user-1-1" || ids[1] != "user-1-2" {
		t.Fatalf("unexpected chat ids: %v", ids)
	}
}

func TestListChatsIncludesMessageCounts(t *testing.T) {
	handler, database := newTestHandler(t, testCollaborators{})

	user := session.User{ID: "user-1"}
	seedUser(t, database, user.ID, "user1@example.com")
	seedChat(t, database, "user-1-1", user.ID, "First")
	seedChat(t, database, "user-1-2", user.ID, "Second")

	for _, content := range []string{"hello", "hi there"} {
		if _, err := handler.insertMessage(context.Background(), "user-1-1", user.ID, "user", content, nil); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	req := requestWithSessionUser(httptest.NewRequest(http.MethodGet, "/v1/chat/list", nil), user)
	resp := httptest.NewRecorder()
	handler.ListChats(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusOK, resp.Code, resp.Body.String())
	}

	var listed struct {
		Chats []chatResponse `json:"chats"`
	}
	decodeJSONBody(t, resp, &listed)
	if len(listed.Chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(listed.Chats))
	}

	counts := map[string]int{}
	for _, chat := range listed.Chats {
		counts[chat.ID] = chat.MessageCount
	}
	if counts["user-1-1"] != 2 || counts["user-1-2"] != 0 {
		t.Fatalf("unexpected message counts: %v", counts)
	}
}

func TestListChatMessagesRejectsForeignChat(t *testing.T) {
	handler, database := newTestHandler(t, testCollaborators{})

	owner := session.User{ID: "user-1"}
	intruder := session.User{ID: "user-2"}
	seedUser(t, database, owner.ID, "user1@example.com")
	seedUser(t, database, intruder.ID, "user2@example.com")
	seedChat(t, database, "user-1-1", owner.ID, "Private")

	req := requestWithSessionUser(httptest.NewRequest(http.MethodGet, "/v1/chat/messages?chatId=user-1-1", nil), intruder)
	resp := httptest.NewRecorder()
	handler.ListChatMessages(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusNotFound, resp.Code, resp.Body.String())
	}
}

func TestListChatMessagesReturnsChronologicalOrder(t *testing.T) {
	handler, database := newTestHandler(t, testCollaborators{})

	user := session.User{ID: "user-1"}
	seedUser(t, database, user.ID, "user1@example.com")
	seedChat(t, database, "user-1-1", user.ID, "Ordered")

	contents := []string{"first", "second", "third"}
	for _, content := range contents {
		if _, err := handler.insertMessage(context.Background(), "user-1-1", user.ID, "user", content, nil); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	req := requestWithSessionUser(httptest.NewRequest(http.MethodGet, "/v1/chat/messages?chatId=user-1-1", nil), user)
	resp := httptest.NewRecorder()
	handler.ListChatMessages(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusOK, resp.Code, resp.Body.String())
	}

	var listed struct {
		Messages []messageResponse `json:"messages"`
	}
	decodeJSONBody(t, resp, &listed)
	if len(listed.Messages) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(listed.Messages))
	}
	for i, content := range contents {
		if listed.Messages[i].Content != content {
			t.Fatalf("message %d out of order: got %q want %q", i, listed.Messages[i].Content, content)
		}
	}
}

func TestDeleteChatRemovesMessages(t *testing.T) {
	handler, database := newTestHandler(t, testCollaborators{})

	user := session.User{ID: "user-1"}
	seedUser(t, database, user.ID, "user1@example.com")
	seedChat(t, database, "user-1-1", user.ID, "Doomed")
	if _, err := handler.insertMessage(context.Background(), "user-1-1", user.ID, "user", "hello", nil); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	req := requestWithSessionUser(httptest.NewRequest(http.MethodDelete, "/v1/chat/delete", strings.NewReader(`{"chatId":"user-1-1"}`)), user)
	resp := httptest.NewRecorder()
	handler.DeleteChat(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusOK, resp.Code, resp.Body.String())
	}

	var chats, messages int
	if err := database.QueryRow(`SELECT COUNT(*) FROM chats;`).Scan(&chats); err != nil {
		t.Fatalf("count chats: %v", err)
	}
	if err := database.QueryRow(`SELECT COUNT(*) FROM messages;`).Scan(&messages); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if chats != 0 || messages != 0 {
		t.Fatalf("expected empty tables, got chats=%d messages=%d", chats, messages)
	}
}

func TestDeleteChatForeignOwnerLeavesRows(t *testing.T) {
	handler, database := newTestHandler(t, testCollaborators{})

	owner := session.User{ID: "user-1"}
	intruder := session.User{ID: "user-2"}
	seedUser(t, database, owner.ID, "user1@example.com")
	seedUser(t, database, intruder.ID, "user2@example.com")
	seedChat(t, database, "user-1-1", owner.ID, "Keep")

	req := requestWithSessionUser(httptest.NewRequest(http.MethodDelete, "/v1/chat/delete", strings.NewReader(`{"chatId":"user-1-1"}`)), intruder)
	resp := httptest.NewRecorder()
	handler.DeleteChat(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusNotFound, resp.Code, resp.Body.String())
	}

	var chats int
	if err := database.QueryRow(`SELECT COUNT(*) FROM chats;`).Scan(&chats); err != nil {
		t.Fatalf("count chats: %v", err)
	}
	if chats != 1 {
		t.Fatalf("expected chat to survive, got %d rows", chats)
	}
}

func TestClearChatsOnlyTouchesCaller(t *testing.T) {
	handler, database := newTestHandler(t, testCollaborators{})

	first := session.User{ID: "user-1"}
	second := session.User{ID: "user-2"}
	seedUser(t, database, first.ID, "user1@example.com")
	seedUser(t, database, second.ID, "user2@example.com")
	seedChat(t, database, "user-1-1", first.ID, "Mine")
	seedChat(t, database, "user-2-1", second.ID, "Theirs")
	if _, err := handler.insertMessage(context.Background(), "user-2-1", second.ID, "user", "keep me", nil); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	req := requestWithSessionUser(httptest.NewRequest(http.MethodDelete, "/v1/chat/clear", nil), first)
	resp := httptest.NewRecorder()
	handler.ClearChats(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d (%s)", http.StatusOK, resp.Code, resp.Body.String())
	}

	var remainingChat string
	if err := database.QueryRow(`SELECT id FROM chats;`).Scan(&remainingChat); err != nil {
		t.Fatalf("read remaining chat: %v", err)
	}
	if remainingChat != "user-2-1" {
		t.Fatalf("wrong chat survived: %q", remainingChat)
	}

	var messages int
	if err := database.QueryRow(`SELECT COUNT(*) FROM messages;`).Scan(&messages); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if messages != 1 {
		t.Fatalf("expected other user's message to survive, got %d", messages)
	}
}
