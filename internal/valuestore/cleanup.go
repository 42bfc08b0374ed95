package valuestore

import (
	"context"
	"time"
)

// DefaultCleanupInterval is the periodic expiry sweep cadence (spec.md
// §4.5 "Periodic cleanup").
const DefaultCleanupInterval = 10 * time.Minute

// RunCleanupLoop blocks, running DeleteExpired every interval until ctx is
// cancelled. Callers run it in its own goroutine.
func (s *Store) RunCleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.DeleteExpired(ctx); err != nil {
				s.logger.Warn("valuestore: cleanup sweep failed", "err", err)
			} else if n > 0 {
				s.logger.Info("valuestore: cleanup swept expired rows", "count", n)
			}
		}
	}
}
