package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()

	repo, err := NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSaveMessageReadBackOrder(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	turns := []struct {
		content string
		isUser  bool
	}{
		{"I have a headache", true},
		{"How long have you had it?", false},
		{"Since yesterday", true},
		{"Any other symptoms?", false},
	}
	for _, turn := range turns {
		if err := repo.SaveMessage(ctx, "s1", turn.content, turn.isUser); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	msgs, err := repo.MessagesBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("MessagesBySession failed: %v", err)
	}
	if len(msgs) != len(turns) {
		t.Fatalf("expected %d messages, got %d", len(turns), len(msgs))
	}
	for i, msg := range msgs {
		if msg.Content != turns[i].content {
			t.Errorf("message %d: expected %q, got %q", i, turns[i].content, msg.Content)
		}
		if msg.IsUser != turns[i].isUser {
			t.Errorf("message %d: expected is_user=%v, got %v", i, turns[i].isUser, msg.IsUser)
		}
	}
}

func TestSessionExists(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	exists, err := repo.SessionExists(ctx, "unknown")
	if err != nil {
		t.Fatalf("SessionExists failed: %v", err)
	}
	if exists {
		t.Error("expected unknown session to not exist")
	}

	if err := repo.SaveMessage(ctx, "s1", "hello", true); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	exists, err = repo.SessionExists(ctx, "s1")
	if err != nil {
		t.Fatalf("SessionExists failed: %v", err)
	}
	if !exists {
		t.Error("expected session with messages to exist")
	}
}

func TestMessagesIsolatedPerSession(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.SaveMessage(ctx, "a", "from a", true); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	if err := repo.SaveMessage(ctx, "b", "from b", true); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	msgs, err := repo.MessagesBySession(ctx, "a")
	if err != nil {
		t.Fatalf("MessagesBySession failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "from a" {
		t.Fatalf("unexpected messages for session a: %+v", msgs)
	}
}

func TestSessionAdminOperations(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.CreateSession(ctx, "s1", "First visit"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.SaveMessage(ctx, "s1", "hello", true); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	sessions, err := repo.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Title != "First visit" {
		t.Errorf("expected title %q, got %q", "First visit", sessions[0].Title)
	}

	if err := repo.RenameSession(ctx, "s1", "Headache follow-up"); err != nil {
		t.Fatalf("RenameSession failed: %v", err)
	}
	if err := repo.RenameSession(ctx, "missing", "nope"); err == nil {
		t.Error("expected renaming a missing session to fail")
	}

	if err := repo.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	exists, err := repo.SessionExists(ctx, "s1")
	if err != nil {
		t.Fatalf("SessionExists failed: %v", err)
	}
	if exists {
		t.Error("expected deleted session to have no messages")
	}
}

func TestClearAll(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := repo.SaveMessage(ctx, id, "hi", true); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	if err := repo.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}

	sessions, err := repo.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected no sessions after ClearAll, got %d", len(sessions))
	}
}
