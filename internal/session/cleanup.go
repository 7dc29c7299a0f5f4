package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCleanupInterval is the default interval between eviction sweeps.
const DefaultCleanupInterval = time.Minute

// CleanupService periodically evicts idle sessions from the cache.
type CleanupService struct {
	manager  *Manager
	ttl      time.Duration
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewCleanupService creates a cleanup service that evicts sessions idle for
// longer than ttl, sweeping at the given interval.
func NewCleanupService(manager *Manager, ttl, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupService{
		manager:  manager,
		ttl:      ttl,
		interval: interval,
	}
}

// Start begins the periodic cleanup process.
func (c *CleanupService) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.run(cleanupCtx)
}

// Stop gracefully stops the cleanup service.
func (c *CleanupService) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
}

func (c *CleanupService) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		close(c.done)
		c.mu.Unlock()
	}()

	logger := slog.Default().With(slog.String("component", "session.cleanup"))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup service stopping")
			return
		case <-ticker.C:
			// An eviction flush already in progress must complete even if
			// Stop races with the sweep.
			removed := c.manager.CleanupExpired(context.WithoutCancel(ctx), c.ttl)
			if removed > 0 {
				logger.Info("evicted idle sessions",
					slog.Int("removed", removed),
					slog.Int("remaining", c.manager.Len()),
				)
			}
		}
	}
}
