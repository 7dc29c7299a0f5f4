// Package chat orchestrates a conversation turn: context rehydration, prompt
// assembly, completion streaming, and the debounced persistence decision.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avdeyev/mediq/internal/domain"
	"github.com/avdeyev/mediq/internal/llm"
	"github.com/avdeyev/mediq/internal/session"
	"github.com/avdeyev/mediq/internal/textenc"
)

// ErrEmptyMessage is returned when the inbound user message is empty.
var ErrEmptyMessage = errors.New("missing user message")

// Options configures a turn controller.
type Options struct {
	// SaveInterval is the minimum time between durable-store flushes of a
	// session's pending turns.
	SaveInterval time.Duration
	// SaveFirstTurn flushes immediately on a session's first unsaved turn.
	SaveFirstTurn bool
	// CompletionTimeout bounds each provider call.
	CompletionTimeout time.Duration
}

// Service drives one conversation turn at a time per session.
type Service struct {
	sessions *session.Manager
	provider llm.Provider
	opts     Options
	now      func() time.Time
}

// New creates a turn controller.
func New(sessions *session.Manager, provider llm.Provider, opts Options) *Service {
	return &Service{
		sessions: sessions,
		provider: provider,
		opts:     opts,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Turn processes one inbound user message for a session and returns the full
// assistant reply. When emit is non-nil every generated fragment is forwarded
// through it before being accumulated; a nil emit buffers the whole reply.
//
// The session lock is held for the entire turn, so turns on the same session
// are processed strictly one after another while different sessions proceed
// concurrently. If the caller disconnects mid-stream, forwarding stops but
// accumulation and the persistence decision still complete.
func (s *Service) Turn(ctx context.Context, sessionID, rawMsg string, emit func(fragment string) error) (string, error) {
	if strings.TrimSpace(rawMsg) == "" {
		return "", ErrEmptyMessage
	}
	msg := textenc.Decode(rawMsg)
	if strings.TrimSpace(msg) == "" {
		return "", ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = domain.DefaultSessionID
	}

	// Detached from the request context: the model call is already paid for
	// once started, so client disconnection must not abort accumulation or
	// persistence. The completion itself is still deadline-bounded.
	turnCtx := context.WithoutCancel(ctx)

	sess, err := s.sessions.Acquire(turnCtx, sessionID)
	if err != nil {
		return "", fmt.Errorf("acquire session context: %w", err)
	}
	defer s.sessions.Release(sess)

	req := llm.Request{
		SystemPrompt: llm.BuildSystemPrompt(sess.Transcript, msg),
		History:      sess.Transcript,
		UserMessage:  msg,
	}

	reply, err := s.stream(turnCtx, req, emit)
	if err != nil {
		// The cache is left untouched and nothing is saved on a provider
		// failure.
		slog.Error("completion failed", "session_id", sessionID, "error", err)
		return "", err
	}

	now := s.now()
	sess.Transcript = append(sess.Transcript,
		domain.Turn{Role: domain.RoleUser, Text: msg},
		domain.Turn{Role: domain.RoleAssistant, Text: reply},
	)
	sess.LastActiveAt = now

	if s.shouldSave(sess, now) {
		if err := s.sessions.Flush(turnCtx, sess); err != nil {
			// The user already has their answer; unsaved turns stay cached
			// and are retried on the next qualifying turn.
			slog.Error("failed to persist session turns", "session_id", sessionID, "error", err)
		} else {
			slog.Info("auto-saved session to store", "session_id", sessionID)
		}
	}

	return reply, nil
}

// stream drains the provider fragment sequence, forwarding each fragment
// before appending it to the accumulator. Fragments carry the provider's raw
// text; any wire framing is the caller's concern.
func (s *Service) stream(ctx context.Context, req llm.Request, emit func(string) error) (string, error) {
	cctx := ctx
	if s.opts.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.opts.CompletionTimeout)
		defer cancel()
	}

	var reply strings.Builder
	forwarding := emit != nil
	for fragment, err := range s.provider.Complete(cctx, req) {
		if err != nil {
			return "", err
		}
		if forwarding {
			if emitErr := emit(fragment); emitErr != nil {
				slog.Warn("client gone mid-stream, finishing accumulation", "error", emitErr)
				forwarding = false
			}
		}
		reply.WriteString(fragment)
	}
	return reply.String(), nil
}

// shouldSave is the debounce predicate: flush when the session was never
// saved and first-turn saving is on, or when the save interval has elapsed.
func (s *Service) shouldSave(sess *session.Context, now time.Time) bool {
	if sess.LastSavedAt.IsZero() {
		return s.opts.SaveFirstTurn
	}
	return now.Sub(sess.LastSavedAt) >= s.opts.SaveInterval
}
