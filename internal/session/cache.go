// Package session holds the in-process cache of conversation contexts.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/avdeyev/mediq/internal/domain"
	"github.com/avdeyev/mediq/internal/store"
)

// Context is the cached running state of one conversation. The transcript is
// append-only; SavedLen marks how much of it has reached the durable store, so
// the store always holds exactly Transcript[:SavedLen].
type Context struct {
	ID           string
	Transcript   []domain.Turn
	LastActiveAt time.Time
	LastSavedAt  time.Time // zero = never flushed
	SavedLen     int

	mu       sync.Mutex
	hydrated bool
	evicted  bool
}

// Pending returns the transcript suffix not yet persisted.
func (c *Context) Pending() []domain.Turn {
	return c.Transcript[c.SavedLen:]
}

// Manager owns the session cache. Each context carries its own mutex so turns
// for the same session are serialized while turns for different sessions
// proceed independently.
type Manager struct {
	repo  store.Repository
	limit int
	now   func() time.Time

	mu       sync.Mutex
	contexts map[string]*Context
}

// NewManager creates a session cache bounded to limit entries.
func NewManager(repo store.Repository, limit int) *Manager {
	return &Manager{
		repo:     repo,
		limit:    limit,
		now:      time.Now,
		contexts: make(map[string]*Context),
	}
}

// SetClock replaces the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Acquire returns the context for a session with its lock held; the caller
// must Release it when the turn is done. A cache miss rehydrates the
// transcript from the durable store before returning.
func (m *Manager) Acquire(ctx context.Context, sessionID string) (*Context, error) {
	for {
		m.mu.Lock()
		c, ok := m.contexts[sessionID]
		if !ok {
			c = &Context{ID: sessionID}
			m.contexts[sessionID] = c
		}
		over := len(m.contexts) > m.limit
		m.mu.Unlock()

		if over {
			m.enforceLimit(ctx)
		}

		c.mu.Lock()
		if c.evicted {
			// Lost a race with eviction; the map entry is gone, start over.
			c.mu.Unlock()
			continue
		}

		if !c.hydrated {
			if err := m.rehydrate(ctx, c); err != nil {
				c.mu.Unlock()
				m.mu.Lock()
				if m.contexts[sessionID] == c {
					delete(m.contexts, sessionID)
				}
				m.mu.Unlock()
				return nil, err
			}
			c.hydrated = true
		}

		c.LastActiveAt = m.now()
		return c, nil
	}
}

// Release unlocks a context acquired with Acquire.
func (m *Manager) Release(c *Context) {
	c.mu.Unlock()
}

// rehydrate folds the persisted message records into the transcript. The
// rehydrated prefix counts as saved; LastSavedAt stays zero so the first-turn
// save policy applies to the next unsaved turn.
func (m *Manager) rehydrate(ctx context.Context, c *Context) error {
	exists, err := m.repo.SessionExists(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("check session existence: %w", err)
	}
	if !exists {
		return nil
	}

	msgs, err := m.repo.MessagesBySession(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("load session messages: %w", err)
	}

	turns := make([]domain.Turn, 0, len(msgs))
	for _, msg := range msgs {
		role := domain.RoleAssistant
		if msg.IsUser {
			role = domain.RoleUser
		}
		turns = append(turns, domain.Turn{Role: role, Text: msg.Content})
	}

	c.Transcript = turns
	c.SavedLen = len(turns)
	slog.Info("rehydrated session from store", "session_id", c.ID, "messages", len(turns))
	return nil
}

// Flush writes the unsaved transcript suffix to the durable store in order.
// The caller must hold the context lock. SavedLen advances per record written,
// so a partial failure never re-writes what already landed.
func (m *Manager) Flush(ctx context.Context, c *Context) error {
	for c.SavedLen < len(c.Transcript) {
		turn := c.Transcript[c.SavedLen]
		if err := m.repo.SaveMessage(ctx, c.ID, turn.Text, turn.Role == domain.RoleUser); err != nil {
			return fmt.Errorf("save message %d: %w", c.SavedLen, err)
		}
		c.SavedLen++
	}
	c.LastSavedAt = m.now()
	return nil
}

// Len reports the number of cached sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

// CleanupExpired evicts sessions idle longer than ttl, flushing unsaved turns
// first. Returns the number of sessions removed. LastActiveAt is only read
// under the context lock; a session whose turn is in flight cannot be locked
// and is by definition active, so it is skipped.
func (m *Manager) CleanupExpired(ctx context.Context, ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)

	removed := 0
	for _, c := range m.snapshot() {
		if !c.mu.TryLock() {
			continue
		}
		if !c.evicted && c.LastActiveAt.Before(cutoff) && m.evictLocked(ctx, c) {
			removed++
		}
		c.mu.Unlock()
	}
	return removed
}

// snapshot copies the current context set out from under the map lock.
func (m *Manager) snapshot() []*Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Context, 0, len(m.contexts))
	for _, c := range m.contexts {
		all = append(all, c)
	}
	return all
}

// FlushAll writes every cached session's unsaved turns to the store. Meant for
// shutdown, after the server has stopped accepting turns; it waits for any
// in-flight turn to release its session.
func (m *Manager) FlushAll(ctx context.Context) error {
	var firstErr error
	for _, c := range m.snapshot() {
		c.mu.Lock()
		if err := m.Flush(ctx, c); err != nil && firstErr == nil {
			firstErr = err
		}
		c.mu.Unlock()
	}
	return firstErr
}

// enforceLimit trims the cache down to the configured limit, oldest activity
// first. A session whose turn is in flight is skipped. LastActiveAt and the
// hydration flag are written under the context lock, so the candidate pass
// reads them the same way.
func (m *Manager) enforceLimit(ctx context.Context) {
	type candidate struct {
		c          *Context
		lastActive time.Time
	}

	var candidates []candidate
	for _, c := range m.snapshot() {
		if !c.mu.TryLock() {
			continue
		}
		if c.hydrated && !c.evicted {
			candidates = append(candidates, candidate{c: c, lastActive: c.LastActiveAt})
		}
		c.mu.Unlock()
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastActive.Before(candidates[j].lastActive)
	})

	for _, cand := range candidates {
		if m.Len() <= m.limit {
			return
		}
		if m.evict(ctx, cand.c) {
			slog.Info("evicted session from cache", "session_id", cand.c.ID)
		}
	}
}

// evict removes a single context if it can be locked and flushed.
func (m *Manager) evict(ctx context.Context, c *Context) bool {
	if !c.mu.TryLock() {
		return false
	}
	defer c.mu.Unlock()

	if c.evicted {
		return false
	}
	return m.evictLocked(ctx, c)
}

// evictLocked flushes and removes a context. The caller holds the context lock
// and has checked the evicted flag.
func (m *Manager) evictLocked(ctx context.Context, c *Context) bool {
	if err := m.Flush(ctx, c); err != nil {
		slog.Error("flush before eviction failed, keeping session cached",
			"session_id", c.ID, "error", err)
		return false
	}

	m.mu.Lock()
	c.evicted = true
	delete(m.contexts, c.ID)
	m.mu.Unlock()
	return true
}
