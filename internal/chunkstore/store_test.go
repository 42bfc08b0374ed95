package chunkstore

import (
	"bytes"
	"context"
	mathrand "math/rand"
	"testing"

	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/keyderive"
)

func newTestStore() *Store {
	return NewStore(dht.NewInMemory(), cryptosuite.SoftwareSuite{})
}

func chunk0KeyFor(baseKey string) [32]byte {
	return keyderive.DeriveKey(keyderive.ChunkSlot(baseKey, 0))
}

// TestChunkedRoundTrip is scenario S1 from spec.md §8.
func TestChunkedRoundTrip(t *testing.T) {
	s := newTestStore()
	data := bytes.Repeat([]byte{0xAA}, 200_000)
	if err := s.Publish(context.Background(), "t:1", data, dht.MaxTTL); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := s.Fetch(context.Background(), "t:1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round-trip mismatch, len got=%d want=%d", len(got), len(data))
	}
	meta, err := s.FetchMetadata(context.Background(), "t:1")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.OriginalSize != uint32(len(data)) {
		t.Fatalf("original_size = %d want %d", meta.OriginalSize, len(data))
	}
}

func TestSingleChunkRoundTrip(t *testing.T) {
	s := newTestStore()
	data := []byte("small message")
	if err := s.Publish(context.Background(), "small", data, dht.MaxTTL); err != nil {
		t.Fatalf("publish: %v", err)
	}
	meta, err := s.FetchMetadata(context.Background(), "small")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.TotalChunks != 1 {
		t.Fatalf("expected 1 chunk, got %d", meta.TotalChunks)
	}
	got, err := s.Fetch(context.Background(), "small")
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestEmptyDataRejected(t *testing.T) {
	s := newTestStore()
	err := s.Publish(context.Background(), "empty", nil, dht.MaxTTL)
	if err == nil {
		t.Fatalf("expected error for empty data")
	}
	pe, ok := err.(*PublishError)
	if !ok || pe.Kind != PublishErrNullParam {
		t.Fatalf("expected NullParam, got %v", err)
	}
}

func TestTooManyChunksRejected(t *testing.T) {
	s := newTestStore()
	// High-entropy data is incompressible, so it forces ~1 chunk per
	// MaxChunkPayload bytes of compressed output; exceed the 10000-chunk cap.
	data := make([]byte, (MaxChunks+1)*MaxChunkPayload)
	rng := mathrand.New(mathrand.NewSource(1))
	rng.Read(data)
	err := s.Publish(context.Background(), "huge", data, dht.MaxTTL)
	if err == nil {
		t.Fatalf("expected too-many-chunks error")
	}
	pe, ok := err.(*PublishError)
	if !ok || pe.Kind != PublishErrTooManyChunks {
		t.Fatalf("expected TooManyChunks, got %v", err)
	}
}

func TestChecksumRejection(t *testing.T) {
	s := newTestStore()
	data := []byte("checksum test payload")
	if err := s.Publish(context.Background(), "cksum", data, dht.MaxTTL); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// Corrupt chunk 0 directly through the transport.
	tr := s.transport.(*dht.InMemory)
	key := chunk0KeyFor("cksum")
	raw, err := tr.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	corrupted := append([]byte(nil), raw...)
	corrupted[len(corrupted)-1] ^= 0xFF
	if err := tr.PutSigned(context.Background(), key, corrupted, tr.OwnerValueID(), dht.MaxTTL); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Fetch(context.Background(), "cksum"); err == nil {
		t.Fatalf("expected checksum error")
	}
}

func TestBadMagicRejected(t *testing.T) {
	s := newTestStore()
	tr := s.transport.(*dht.InMemory)
	key := chunk0KeyFor("badmagic")
	if err := tr.PutSigned(context.Background(), key, []byte("not a chunk record"), tr.OwnerValueID(), dht.MaxTTL); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.Fetch(context.Background(), "badmagic"); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestFetchBatch(t *testing.T) {
	s := newTestStore()
	s.Publish(context.Background(), "b1", []byte("one"), dht.MaxTTL)
	s.Publish(context.Background(), "b2", []byte("two"), dht.MaxTTL)
	out, errs := s.FetchBatch(context.Background(), []string{"b1", "b2", "missing"})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
	if string(out["b1"]) != "one" || string(out["b2"]) != "two" {
		t.Fatalf("unexpected batch results: %v", out)
	}
}

func TestDeleteTombstones(t *testing.T) {
	s := newTestStore()
	s.Publish(context.Background(), "del", []byte("to be deleted"), dht.MaxTTL)
	if err := s.Delete(context.Background(), "del", 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Fetch(context.Background(), "del"); err == nil {
		t.Fatalf("expected tombstone to break round-trip")
	}
}
