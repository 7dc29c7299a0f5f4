package llm

import (
	"context"
	"iter"
	"sync"
)

// ScriptedProvider is a deterministic Provider for tests. Each call yields
// the next scripted reply split into Chunks-sized fragments, or Err when set.
type ScriptedProvider struct {
	Replies []string
	Err     error
	Chunks  int // fragments per reply; <= 1 means a single fragment

	mu    sync.Mutex
	calls []Request
	next  int
}

// Complete yields the next scripted reply as a fragment sequence.
func (p *ScriptedProvider) Complete(_ context.Context, req Request) iter.Seq2[string, error] {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	reply := ""
	if p.next < len(p.Replies) {
		reply = p.Replies[p.next]
		p.next++
	}
	err := p.Err
	chunks := p.Chunks
	p.mu.Unlock()

	return func(yield func(string, error) bool) {
		if err != nil {
			yield("", err)
			return
		}
		if chunks <= 1 {
			yield(reply, nil)
			return
		}
		size := (len(reply) + chunks - 1) / chunks
		for start := 0; start < len(reply); start += size {
			end := min(start+size, len(reply))
			if !yield(reply[start:end], nil) {
				return
			}
		}
	}
}

// Calls returns every request seen so far.
func (p *ScriptedProvider) Calls() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.calls...)
}
