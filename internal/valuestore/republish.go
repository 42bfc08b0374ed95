package valuestore

import (
	"context"
	"time"

	"dnamessenger.dev/core/internal/dht"
)

// republish tuning constants (spec.md §4.5 "Restart republish").
const (
	peerWaitTimeout   = 60 * time.Second
	peerPollInterval  = 1 * time.Second
	reconnectWait     = 30 * time.Second
	interValueSpacing = 100 * time.Millisecond
)

var republishBackoffs = []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}

// RepublishAll runs the restart republish pass: wait for connectivity,
// select the latest version of every key, skip anything already expired,
// and republish the rest through transport with bounded retry (spec.md
// §4.5). It returns the number of keys successfully republished.
func (s *Store) RepublishAll(ctx context.Context, transport dht.Transport) (int, error) {
	if !s.waitForReady(ctx, transport) {
		s.logger.Warn("valuestore: transport never became ready, proceeding regardless")
	}

	rows, err := s.latestRows(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now().Unix()
	succeeded := 0
	for _, r := range rows {
		if r.expiresAt.Valid && r.expiresAt.Int64 <= now {
			continue
		}
		s.republishAttempted.Add(1)
		if s.republishOne(ctx, transport, r) {
			succeeded++
			s.republishSucceeded.Add(1)
		} else {
			s.republishFailed.Add(1)
		}

		select {
		case <-ctx.Done():
			return succeeded, ctx.Err()
		case <-time.After(interValueSpacing):
		}
	}
	return succeeded, nil
}

func (s *Store) republishOne(ctx context.Context, transport dht.Transport, r latestRow) bool {
	for attempt := 0; ; attempt++ {
		if !transport.IsReady(ctx) {
			s.waitForReadyWithin(ctx, transport, reconnectWait)
		}
		err := transport.RepublishPacked(ctx, r.keyHash, r.valueData)
		if err == nil {
			return true
		}
		s.logger.Warn("valuestore: republish attempt failed", "key_hash", r.keyHash, "attempt", attempt, "err", err)
		if attempt >= len(republishBackoffs) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(republishBackoffs[attempt]):
		}
	}
}

// waitForReady polls IsReady every peerPollInterval up to peerWaitTimeout
// (or reconnectWait, when called mid-retry). It returns false if the
// context was cancelled or neither deadline was ever satisfied.
func (s *Store) waitForReady(ctx context.Context, transport dht.Transport) bool {
	return s.waitForReadyWithin(ctx, transport, peerWaitTimeout)
}

func (s *Store) waitForReadyWithin(ctx context.Context, transport dht.Transport, timeout time.Duration) bool {
	deadline := s.now().Add(timeout)
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	if transport.IsReady(ctx) {
		return true
	}
	for s.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if transport.IsReady(ctx) {
				return true
			}
		}
	}
	return false
}
