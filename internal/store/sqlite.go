package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avdeyev/mediq/internal/domain"
	"github.com/avdeyev/mediq/internal/shared"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writes to prevent SQLITE_BUSY
	entropy *rand.Rand
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT,
		timestamp INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		is_user INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// newID returns a lexicographically time-ordered message id. Ordering by
// (timestamp, id) therefore matches insertion order even within the same
// millisecond.
func (s *SQLiteStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SessionExists reports whether the session has any persisted messages.
func (s *SQLiteStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE session_id = ? LIMIT 1`, sessionID)

	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query session existence: %w", err)
	}
	return true, nil
}

// MessagesBySession retrieves all messages for a session in chronological order.
func (s *SQLiteStore) MessagesBySession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, content, timestamp, is_user FROM messages
		WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var ts int64
		var isUser int
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Content, &ts, &isUser); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.CreatedAt = time.UnixMilli(ts)
		msg.IsUser = isUser != 0
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session messages: %w", err)
	}

	return msgs, nil
}

// SaveMessage appends one message record, creating the session row if absent.
// Retries once on SQLite concurrency conflicts.
func (s *SQLiteStore) SaveMessage(ctx context.Context, sessionID, content string, isUser bool) error {
	err := s.saveMessageOnce(ctx, sessionID, content, isUser)
	if shared.IsSQLiteConflictError(err) {
		time.Sleep(100 * time.Millisecond)
		err = s.saveMessageOnce(ctx, sessionID, content, isUser)
	}
	return err
}

func (s *SQLiteStore) saveMessageOnce(ctx context.Context, sessionID, content string, isUser bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save message: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, title, timestamp) VALUES (?, ?, ?)`,
		sessionID, sessionID, now); err != nil {
		return fmt.Errorf("ensure session row: %w", err)
	}

	userFlag := 0
	if isUser {
		userFlag = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, content, timestamp, is_user) VALUES (?, ?, ?, ?, ?)`,
		s.newID(), sessionID, content, now, userFlag); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save message: %w", err)
	}
	return nil
}

// CreateSession creates an explicit session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, id, title string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, timestamp) VALUES (?, ?, ?)`,
		id, title, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// ListSessions returns all known sessions, most recent first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, timestamp FROM sessions ORDER BY timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		var title sql.NullString
		var ts int64
		if err := rows.Scan(&sess.ID, &title, &ts); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.Title = title.String
		sess.CreatedAt = time.UnixMilli(ts)
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// RenameSession updates a session title.
func (s *SQLiteStore) RenameSession(ctx context.Context, id, title string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ? WHERE id = ?`, title, id)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %q not found", id)
	}
	return nil
}

// DeleteSession removes a session and all of its messages.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete session: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete session: %w", err)
	}
	return nil
}

// ClearAll removes every session and message.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear all: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear all: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
