package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"aria/backend/internal/db"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return NewStore(database)
}

func TestSignUpAndAuthenticate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.SignUp(ctx, "  Alice@Example.com ", "correct-horse", "Alice")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.LastLogin != "" {
		t.Fatalf("expected empty last login at signup, got %q", user.LastLogin)
	}

	authed, err := store.Authenticate(ctx, "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, authed.ID)
	}
	if authed.LastLogin == "" {
		t.Fatal("expected last login to be set after authentication")
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.SignUp(ctx, "bob@example.com", "first-password", ""); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	_, err := store.SignUp(ctx, "bob@example.com", "second-password", "")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.SignUp(context.Background(), "short@example.com", "tiny", ""); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.SignUp(ctx, "carol@example.com", "real-password", ""); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	_, err := store.Authenticate(ctx, "carol@example.com", "wrong-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, err = store.Authenticate(ctx, "unknown@example.com", "whatever-password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.SignUp(ctx, "dave@example.com", "dave-password", "Dave")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	token, expiresAt, err := store.CreateSession(ctx, user.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}

	resolved, err := store.ResolveSession(ctx, token)
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, resolved.ID)
	}

	if err := store.DeleteSession(ctx, token); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	_, err = store.ResolveSession(ctx, token)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestResolveSessionRejectsExpiredToken(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.SignUp(ctx, "erin@example.com", "erin-password", "")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	token, _, err := store.CreateSession(ctx, user.ID, -time.Minute)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, err = store.ResolveSession(ctx, token)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired session, got %v", err)
	}
}
