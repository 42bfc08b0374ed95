// Package ack implements C7: the delivery-acknowledgment channel. A
// recipient publishes an 8-byte timestamp after draining a sender's
// outbox; the sender listens on the same key and learns how far the
// recipient has caught up (spec.md §4.7).
package ack

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/keyderive"
)

const ackTTLSeconds = 30 * 24 * 60 * 60 // 30 days

var ackBackoffs = []time.Duration{500 * time.Millisecond, 1 * time.Second, 2 * time.Second}

// ErrInvalidAckValue is returned when a listened-to value is not exactly
// 8 bytes.
var ErrInvalidAckValue = errors.New("ack: value is not an 8-byte timestamp")

// Callback is invoked on every ACK update (spec.md §4.7): (senderFP,
// recipientFP, ackTimestamp, userData). Expiration events are ignored by
// the caller registering this via Listen.
type Callback func(senderFP, recipientFP string, ackTimestamp uint64, userData any)

// Publish writes the recipient's drain-point timestamp at
// derive("{recipient}:ack:{sender}"), value_id=1, with up to 3 retries
// at exponential backoff (spec.md §4.7).
func Publish(ctx context.Context, transport dht.Transport, recipientFP, senderFP string, ackTimestamp uint64) error {
	key := keyderive.DeriveKey(keyderive.Ack(recipientFP, senderFP))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], ackTimestamp)

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = transport.PutSigned(ctx, key, buf[:], 1, ackTTLSeconds)
		if lastErr == nil {
			return nil
		}
		if attempt >= len(ackBackoffs) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ackBackoffs[attempt]):
		}
	}
}

// Listen registers cb on the ACK key a sender watches for a given
// recipient, decoding the 8-byte timestamp on every non-expiry update
// (spec.md §4.7 "Expiration events are ignored").
func Listen(ctx context.Context, transport dht.Transport, senderFP, recipientFP string, cb Callback, userData any) (dht.ListenCancelFunc, error) {
	key := keyderive.DeriveKey(keyderive.Ack(recipientFP, senderFP))
	return transport.Listen(ctx, key, func(value []byte, expired bool) {
		if expired || cb == nil {
			return
		}
		if len(value) != 8 {
			return
		}
		ts := binary.BigEndian.Uint64(value)
		cb(senderFP, recipientFP, ts, userData)
	})
}

// Decode parses a raw ACK value into its timestamp.
func Decode(value []byte) (uint64, error) {
	if len(value) != 8 {
		return 0, ErrInvalidAckValue
	}
	return binary.BigEndian.Uint64(value), nil
}
