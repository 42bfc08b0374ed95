package group

import (
	"context"
	"encoding/binary"
	"time"

	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/keyderive"
)

const heartbeatTTLSeconds = 14 * 24 * 60 * 60 // outlives the 7-day staleness window comfortably
const heartbeatStaleAfter = 7 * 24 * time.Hour

// PublishHeartbeat writes the current time as memberFP's liveness marker
// for groupUUID (spec.md §4.9 "Each member periodically publishes a
// heartbeat timestamp").
func PublishHeartbeat(ctx context.Context, transport dht.Transport, groupUUID, memberFP string, now time.Time) error {
	key := keyderive.DeriveKey(keyderive.GroupHeartbeat(groupUUID, memberFP))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(now.Unix()))
	return transport.PutSigned(ctx, key, buf[:], 1, heartbeatTTLSeconds)
}

// heartbeatAt fetches a member's latest heartbeat, or (0, false) if none
// is present.
func heartbeatAt(ctx context.Context, transport dht.Transport, groupUUID, memberFP string) (int64, bool, error) {
	key := keyderive.DeriveKey(keyderive.GroupHeartbeat(groupUUID, memberFP))
	vals, err := transport.GetAll(ctx, key)
	if err != nil {
		return 0, false, err
	}
	if len(vals) == 0 || len(vals[0]) != 8 {
		return 0, false, nil
	}
	return int64(binary.BigEndian.Uint64(vals[0])), true, nil
}

// EffectiveOwner determines the deterministic owner role among meta's
// current members: the member with the maximum SHA3-512(fingerprint)
// whose latest heartbeat is within heartbeatStaleAfter of now (spec.md
// §4.9 "Ownership role"). Members with no heartbeat, or a stale one, are
// excluded from the election. Returns "" if no member is live.
func EffectiveOwner(ctx context.Context, transport dht.Transport, suite cryptosuite.Suite, meta Metadata, now time.Time) (string, error) {
	var winner string
	var winnerHash [64]byte
	haveWinner := false

	for _, fp := range meta.Members {
		ts, ok, err := heartbeatAt(ctx, transport, meta.UUID, fp)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if now.Sub(time.Unix(ts, 0)) > heartbeatStaleAfter {
			continue
		}
		h := suite.SHA3_512([]byte(fp))
		if !haveWinner || greaterHash(h, winnerHash) {
			winner = fp
			winnerHash = h
			haveWinner = true
		}
	}
	if !haveWinner {
		return "", nil
	}
	return winner, nil
}

func greaterHash(a, b [64]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}
