package ack

import (
	"context"
	"sync"
	"testing"
	"time"

	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/keyderive"
)

func keyForTest(recipientFP, senderFP string) [32]byte {
	return keyderive.DeriveKey(keyderive.Ack(recipientFP, senderFP))
}

// TestAckDeliveryConfirmation is scenario S4 from spec.md §8.
func TestAckDeliveryConfirmation(t *testing.T) {
	transport := dht.NewInMemory()
	ctx := context.Background()

	var mu sync.Mutex
	var gotSender, gotRecipient string
	var gotTS uint64
	fired := make(chan struct{}, 1)

	cancel, err := Listen(ctx, transport, "alice", "bob", func(senderFP, recipientFP string, ackTS uint64, userData any) {
		mu.Lock()
		gotSender, gotRecipient, gotTS = senderFP, recipientFP, ackTS
		mu.Unlock()
		fired <- struct{}{}
	}, nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer cancel()

	const ts = uint64(1_700_000_000)
	if err := Publish(ctx, transport, "bob", "alice", ts); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ack callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotSender != "alice" || gotRecipient != "bob" || gotTS != ts {
		t.Fatalf("unexpected ack: sender=%s recipient=%s ts=%d", gotSender, gotRecipient, gotTS)
	}
}

func TestAckValueIDReplacesPrior(t *testing.T) {
	transport := dht.NewInMemory()
	ctx := context.Background()

	if err := Publish(ctx, transport, "bob", "alice", 100); err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	if err := Publish(ctx, transport, "bob", "alice", 200); err != nil {
		t.Fatalf("publish 2: %v", err)
	}

	key := keyForTest("bob", "alice")
	vals, err := transport.GetAll(ctx, key)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(vals) != 1 {
		t.Fatalf("expected value_id=1 to replace, got %d slots", len(vals))
	}
	ts, err := Decode(vals[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ts != 200 {
		t.Fatalf("expected latest ack 200, got %d", ts)
	}
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err != ErrInvalidAckValue {
		t.Fatalf("expected ErrInvalidAckValue, got %v", err)
	}
}
