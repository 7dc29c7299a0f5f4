// Package llm wraps the hosted completion providers behind a streaming
// iterator interface.
package llm

import (
	"context"
	"errors"
	"iter"

	"github.com/avdeyev/mediq/internal/domain"
)

// ErrProvider wraps any transport or provider failure so callers can
// distinguish completion failures from their own.
var ErrProvider = errors.New("completion provider failed")

// Sampling parameters fixed for every completion call.
const (
	Temperature      = 1.0
	PresencePenalty  = 0.0
	FrequencyPenalty = 0.0
	MaxTokens        = 2000
)

// Request carries everything a provider needs for one completion.
type Request struct {
	SystemPrompt string
	History      []domain.Turn
	UserMessage  string
}

// Provider generates completion text as a lazy, finite, non-restartable
// sequence of fragments. Buffered callers simply drain the whole sequence.
// A provider failure is yielded as a non-nil error wrapping ErrProvider and
// terminates the sequence.
type Provider interface {
	Complete(ctx context.Context, req Request) iter.Seq2[string, error]
}
