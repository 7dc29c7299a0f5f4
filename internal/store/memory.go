package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avdeyev/mediq/internal/domain"
)

// MemoryStore is an in-memory Repository used by tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	seq      int
	messages map[string][]domain.Message
	sessions map[string]domain.Session
}

// NewMemoryStore creates an empty in-memory repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]domain.Message),
		sessions: make(map[string]domain.Session),
	}
}

// SessionExists reports whether the session has any messages.
func (s *MemoryStore) SessionExists(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[sessionID]) > 0, nil
}

// MessagesBySession returns the session messages in insertion order.
func (s *MemoryStore) MessagesBySession(_ context.Context, sessionID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.messages[sessionID]...), nil
}

// SaveMessage appends one message record.
func (s *MemoryStore) SaveMessage(_ context.Context, sessionID, content string, isUser bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.messages[sessionID] = append(s.messages[sessionID], domain.Message{
		ID:        fmt.Sprintf("msg-%d", s.seq),
		SessionID: sessionID,
		Content:   content,
		IsUser:    isUser,
		CreatedAt: time.Now(),
	})
	if _, ok := s.sessions[sessionID]; !ok {
		s.sessions[sessionID] = domain.Session{ID: sessionID, Title: sessionID, CreatedAt: time.Now()}
	}
	return nil
}

// CreateSession creates an explicit session row.
func (s *MemoryStore) CreateSession(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		return fmt.Errorf("session %q already exists", id)
	}
	s.sessions[id] = domain.Session{ID: id, Title: title, CreatedAt: time.Now()}
	return nil
}

// ListSessions returns all sessions.
func (s *MemoryStore) ListSessions(_ context.Context) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

// RenameSession updates a session title.
func (s *MemoryStore) RenameSession(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %q not found", id)
	}
	sess.Title = title
	s.sessions[id] = sess
	return nil
}

// DeleteSession removes a session and its messages.
func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

// ClearAll removes everything.
func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make(map[string][]domain.Message)
	s.sessions = make(map[string]domain.Session)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
