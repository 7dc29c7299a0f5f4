// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/avdeyev/mediq/internal/domain"
)

// Repository defines the interface for persisting conversation history.
type Repository interface {
	// SessionExists reports whether the session has any persisted messages.
	SessionExists(ctx context.Context, sessionID string) (bool, error)

	// MessagesBySession retrieves all messages for a session in chronological order.
	MessagesBySession(ctx context.Context, sessionID string) ([]domain.Message, error)

	// SaveMessage appends one message record for a session.
	SaveMessage(ctx context.Context, sessionID, content string, isUser bool) error

	// CreateSession creates an explicit session row with the given id and title.
	CreateSession(ctx context.Context, id, title string) error

	// ListSessions returns all known sessions, most recent first.
	ListSessions(ctx context.Context) ([]domain.Session, error)

	// RenameSession updates a session title. Returns an error if the session
	// does not exist.
	RenameSession(ctx context.Context, id, title string) error

	// DeleteSession removes a session and all of its messages.
	DeleteSession(ctx context.Context, id string) error

	// ClearAll removes every session and message.
	ClearAll(ctx context.Context) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
