package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avdeyev/mediq/internal/domain"
	"github.com/avdeyev/mediq/internal/store"
)

func TestAcquireFreshSessionStartsEmpty(t *testing.T) {
	t.Parallel()

	m := NewManager(store.NewMemoryStore(), 16)
	ctx := context.Background()

	c, err := m.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer m.Release(c)

	if len(c.Transcript) != 0 {
		t.Errorf("expected empty transcript, got %d turns", len(c.Transcript))
	}
	if !c.LastSavedAt.IsZero() {
		t.Error("expected LastSavedAt to be zero for a fresh session")
	}
	if c.LastActiveAt.IsZero() {
		t.Error("expected LastActiveAt to be set")
	}
}

func TestAcquireRehydratesFromStore(t *testing.T) {
	t.Parallel()

	repo := store.NewMemoryStore()
	ctx := context.Background()
	if err := repo.SaveMessage(ctx, "s1", "I have a headache", true); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	if err := repo.SaveMessage(ctx, "s1", "How long have you had it?", false); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	m := NewManager(repo, 16)
	c, err := m.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer m.Release(c)

	want := []domain.Turn{
		{Role: domain.RoleUser, Text: "I have a headache"},
		{Role: domain.RoleAssistant, Text: "How long have you had it?"},
	}
	if len(c.Transcript) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(c.Transcript))
	}
	for i, turn := range want {
		if c.Transcript[i] != turn {
			t.Errorf("turn %d: expected %+v, got %+v", i, turn, c.Transcript[i])
		}
	}
	if c.SavedLen != 2 {
		t.Errorf("expected rehydrated prefix to count as saved, SavedLen=%d", c.SavedLen)
	}
	if !c.LastSavedAt.IsZero() {
		t.Error("expected LastSavedAt to stay zero after rehydration")
	}
}

func TestAcquireIsIdempotentForUnknownSession(t *testing.T) {
	t.Parallel()

	m := NewManager(store.NewMemoryStore(), 16)
	ctx := context.Background()

	c1, err := m.Acquire(ctx, "never-seen")
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	m.Release(c1)

	c2, err := m.Acquire(ctx, "never-seen")
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	m.Release(c2)

	if c1 != c2 {
		t.Error("expected the same cached context on the second acquire")
	}
	if len(c2.Transcript) != 0 {
		t.Errorf("expected transcript to stay empty, got %d turns", len(c2.Transcript))
	}
	if m.Len() != 1 {
		t.Errorf("expected exactly one cached session, got %d", m.Len())
	}
}

func TestFlushWritesPendingSuffixOnly(t *testing.T) {
	t.Parallel()

	repo := store.NewMemoryStore()
	m := NewManager(repo, 16)
	ctx := context.Background()

	c, err := m.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	c.Transcript = append(c.Transcript,
		domain.Turn{Role: domain.RoleUser, Text: "q1"},
		domain.Turn{Role: domain.RoleAssistant, Text: "a1"},
	)
	if err := m.Flush(ctx, c); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	c.Transcript = append(c.Transcript,
		domain.Turn{Role: domain.RoleUser, Text: "q2"},
		domain.Turn{Role: domain.RoleAssistant, Text: "a2"},
	)
	if err := m.Flush(ctx, c); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	m.Release(c)

	msgs, err := repo.MessagesBySession(ctx, "s1")
	if err != nil {
		t.Fatalf("MessagesBySession failed: %v", err)
	}
	wantContents := []string{"q1", "a1", "q2", "a2"}
	if len(msgs) != len(wantContents) {
		t.Fatalf("expected %d persisted messages, got %d", len(wantContents), len(msgs))
	}
	for i, want := range wantContents {
		if msgs[i].Content != want {
			t.Errorf("message %d: expected %q, got %q", i, want, msgs[i].Content)
		}
	}
	if c.LastSavedAt.IsZero() {
		t.Error("expected LastSavedAt to advance after Flush")
	}
}

func TestEnforceLimitEvictsOldestAndFlushes(t *testing.T) {
	t.Parallel()

	repo := store.NewMemoryStore()
	m := NewManager(repo, 2)
	ctx := context.Background()

	base := time.Now()
	clock := base
	m.SetClock(func() time.Time { return clock })

	for i, id := range []string{"old", "mid", "new"} {
		clock = base.Add(time.Duration(i) * time.Minute)
		c, err := m.Acquire(ctx, id)
		if err != nil {
			t.Fatalf("Acquire(%s) failed: %v", id, err)
		}
		c.Transcript = append(c.Transcript,
			domain.Turn{Role: domain.RoleUser, Text: "hello from " + id},
			domain.Turn{Role: domain.RoleAssistant, Text: "hi"},
		)
		m.Release(c)
	}

	if m.Len() != 2 {
		t.Fatalf("expected cache trimmed to 2 sessions, got %d", m.Len())
	}

	// The evicted session's unsaved turns must have been flushed first.
	msgs, err := repo.MessagesBySession(ctx, "old")
	if err != nil {
		t.Fatalf("MessagesBySession failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 flushed messages for evicted session, got %d", len(msgs))
	}
	if msgs[0].Content != "hello from old" || !msgs[0].IsUser {
		t.Errorf("unexpected first flushed message: %+v", msgs[0])
	}
}

func TestCleanupExpiredEvictsIdleSessions(t *testing.T) {
	t.Parallel()

	repo := store.NewMemoryStore()
	m := NewManager(repo, 16)
	ctx := context.Background()

	base := time.Now()
	clock := base
	m.SetClock(func() time.Time { return clock })

	c, err := m.Acquire(ctx, "idle")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	c.Transcript = append(c.Transcript,
		domain.Turn{Role: domain.RoleUser, Text: "still here?"},
		domain.Turn{Role: domain.RoleAssistant, Text: "yes"},
	)
	m.Release(c)

	clock = base.Add(30 * time.Minute)
	if removed := m.CleanupExpired(ctx, time.Hour); removed != 0 {
		t.Fatalf("expected no eviction before TTL, removed %d", removed)
	}

	clock = base.Add(2 * time.Hour)
	if removed := m.CleanupExpired(ctx, time.Hour); removed != 1 {
		t.Fatalf("expected 1 eviction after TTL, removed %d", removed)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty cache, got %d", m.Len())
	}

	msgs, err := repo.MessagesBySession(ctx, "idle")
	if err != nil {
		t.Fatalf("MessagesBySession failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected pending turns flushed before eviction, got %d messages", len(msgs))
	}
}

func TestConcurrentTurnsAndCleanup(t *testing.T) {
	t.Parallel()

	repo := store.NewMemoryStore()
	m := NewManager(repo, 4)
	ctx := context.Background()

	done := make(chan struct{})
	var wg sync.WaitGroup

	// Turn holders touching LastActiveAt under the session lock.
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				c, err := m.Acquire(ctx, id)
				if err != nil {
					t.Errorf("Acquire(%s) failed: %v", id, err)
					return
				}
				c.Transcript = append(c.Transcript,
					domain.Turn{Role: domain.RoleUser, Text: "q"},
					domain.Turn{Role: domain.RoleAssistant, Text: "a"},
				)
				c.LastActiveAt = time.Now()
				m.Release(c)
			}
		}(string(rune('a' + i)))
	}

	// Sweeper reading activity timestamps concurrently.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				m.CleanupExpired(ctx, time.Millisecond)
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}

func TestFlushAllDrainsEverySession(t *testing.T) {
	t.Parallel()

	repo := store.NewMemoryStore()
	m := NewManager(repo, 16)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		c, err := m.Acquire(ctx, id)
		if err != nil {
			t.Fatalf("Acquire(%s) failed: %v", id, err)
		}
		c.Transcript = append(c.Transcript,
			domain.Turn{Role: domain.RoleUser, Text: "q from " + id},
			domain.Turn{Role: domain.RoleAssistant, Text: "a"},
		)
		m.Release(c)
	}

	if err := m.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll failed: %v", err)
	}

	for _, id := range []string{"a", "b"} {
		msgs, err := repo.MessagesBySession(ctx, id)
		if err != nil {
			t.Fatalf("MessagesBySession(%s) failed: %v", id, err)
		}
		if len(msgs) != 2 {
			t.Errorf("session %s: expected 2 persisted messages, got %d", id, len(msgs))
		}
	}
}

func TestEvictedSessionRehydratesOnNextAcquire(t *testing.T) {
	t.Parallel()

	repo := store.NewMemoryStore()
	m := NewManager(repo, 16)
	ctx := context.Background()

	c, err := m.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	c.Transcript = append(c.Transcript,
		domain.Turn{Role: domain.RoleUser, Text: "q1"},
		domain.Turn{Role: domain.RoleAssistant, Text: "a1"},
	)
	m.Release(c)

	if removed := m.CleanupExpired(ctx, 0); removed != 1 {
		t.Fatalf("expected eviction, removed %d", removed)
	}

	c2, err := m.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	defer m.Release(c2)

	if c2 == c {
		t.Error("expected a fresh context after eviction")
	}
	if len(c2.Transcript) != 2 {
		t.Fatalf("expected rehydrated transcript of 2 turns, got %d", len(c2.Transcript))
	}
	if c2.Transcript[0].Text != "q1" {
		t.Errorf("unexpected rehydrated first turn: %+v", c2.Transcript[0])
	}
}
