package assistant

import (
	"strings"
	"testing"
)

func TestBuildMessagesOrdersPreambleHistoryAndUserTurn(t *testing.T) {
	history := []HistoryMessage{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
	}

	messages := BuildMessages("You are terse.", history, "second question", "", nil)

	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	if messages[0].Role != "system" || messages[0].Content != "You are terse." {
		t.Fatalf("unexpected preamble: %+v", messages[0])
	}
	if messages[1].Content != "first question" || messages[2].Content != "first answer" {
		t.Fatalf("history out of order: %+v", messages[1:3])
	}
	if messages[3].Role != "user" || messages[3].Content != "second question" {
		t.Fatalf("unexpected user turn: %+v", messages[3])
	}
}

func TestBuildMessagesRemapsErrorRoleToAssistant(t *testing.T) {
	history := []HistoryMessage{
		{Role: "user", Content: "hello"},
		{Role: "error", Content: "Failed to get AI response: boom"},
	}

	messages := BuildMessages("", history, "try again", "", nil)

	if messages[1].Role != "assistant" {
		t.Fatalf("expected error turn remapped to assistant, got %q", messages[1].Role)
	}
}

func TestBuildMessagesAppendsSearchContextAndFile(t *testing.T) {
	file := &UploadedFile{Name: "notes.txt", Content: "remember the milk"}

	messages := BuildMessages("", nil, "what now", "\n\n[Web Search Results for: \"what now\"]...", file)

	content := messages[len(messages)-1].Content
	if !strings.HasPrefix(content, "what now") {
		t.Fatalf("expected message first, got %q", content)
	}
	if !strings.Contains(content, "[Web Search Results for:") {
		t.Fatalf("expected search context appended, got %q", content)
	}
	if !strings.Contains(content, "[Uploaded file: notes.txt]:\nremember the milk") {
		t.Fatalf("expected file content appended, got %q", content)
	}
}

func TestBuildMessagesOmitsEmptyPreamble(t *testing.T) {
	messages := BuildMessages("   ", nil, "hi", "", nil)

	if len(messages) != 1 {
		t.Fatalf("expected only the user turn, got %d messages", len(messages))
	}
}

func TestFlattenMessagesRendersRoles(t *testing.T) {
	flat := FlattenMessages(BuildMessages("Be helpful.", []HistoryMessage{{Role: "user", Content: "hi"}}, "bye", "", nil))

	want := "system: Be helpful.\n\nuser: hi\n\nuser: bye"
	if flat != want {
		t.Fatalf("unexpected flattened prompt:\n got: %q\nwant: %q", flat, want)
	}
}
