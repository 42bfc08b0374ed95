package contactreq

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/dht"
)

func mustKeypair(t *testing.T) (sk, pk []byte) {
	t.Helper()
	pk, sk, err := cryptosuite.GenerateSigKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return sk, pk
}

func fingerprintOf(suite cryptosuite.Suite, pk []byte) string {
	sum := suite.SHA3_512(pk)
	return hex.EncodeToString(sum[:])
}

func TestBuildDecodeRoundTrip(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	sk, pk := mustKeypair(t)
	fp := fingerprintOf(suite, pk)
	now := time.Now()

	raw, err := Build(suite, sk, fp, "Alice", pk, "hi, let's connect", now, 7*24*60*60)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	req, err := Decode(suite, raw, now)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if req.SenderFP != fp || req.SenderName != "Alice" || req.Message != "hi, let's connect" {
		t.Fatalf("unexpected decoded request: %+v", req)
	}
}

// TestFPBindingRejected is invariant 7 from spec.md §8.
func TestFPBindingRejected(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	sk, pk := mustKeypair(t)
	now := time.Now()

	raw, err := Build(suite, sk, "not-the-real-fingerprint-0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000", "Alice", pk, "hi", now, 3600)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := Decode(suite, raw, now); err != ErrFingerprintMismatch {
		t.Fatalf("expected ErrFingerprintMismatch, got %v", err)
	}
}

// TestBadSignatureRejected is invariant 8 from spec.md §8.
func TestBadSignatureRejected(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	sk, pk := mustKeypair(t)
	fp := fingerprintOf(suite, pk)
	now := time.Now()

	raw, err := Build(suite, sk, fp, "Alice", pk, "hi", now, 3600)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	corrupted := append([]byte(nil), raw...)
	corrupted[len(corrupted)-1] ^= 0xFF
	if _, err := Decode(suite, corrupted, now); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestExpiredRejected(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	sk, pk := mustKeypair(t)
	fp := fingerprintOf(suite, pk)
	now := time.Now()

	raw, err := Build(suite, sk, fp, "Alice", pk, "hi", now.Add(-2*time.Hour), 3600)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := Decode(suite, raw, now); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

// TestMultiWriterAccumulation is the "Multi-writer accumulation" boundary
// case from spec.md §8.
func TestMultiWriterAccumulation(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	transport := dht.NewInMemory()
	ctx := context.Background()
	now := time.Now()

	sk1, pk1 := mustKeypair(t)
	fp1 := fingerprintOf(suite, pk1)
	raw1, err := Build(suite, sk1, fp1, "Alice", pk1, "hi from alice", now, 3600)
	if err != nil {
		t.Fatalf("build 1: %v", err)
	}
	if err := Publish(ctx, transport, "bob", fp1, raw1, 3600); err != nil {
		t.Fatalf("publish 1: %v", err)
	}

	sk2, pk2 := mustKeypair(t)
	fp2 := fingerprintOf(suite, pk2)
	raw2, err := Build(suite, sk2, fp2, "Carol", pk2, "hi from carol", now, 3600)
	if err != nil {
		t.Fatalf("build 2: %v", err)
	}
	if err := Publish(ctx, transport, "bob", fp2, raw2, 3600); err != nil {
		t.Fatalf("publish 2: %v", err)
	}

	reqs, err := FetchAll(ctx, transport, suite, "bob", now)
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 accumulated requests, got %d", len(reqs))
	}
}

func TestFetchAllSkipsMalformedRecords(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	transport := dht.NewInMemory()
	ctx := context.Background()
	now := time.Now()

	sk, pk := mustKeypair(t)
	fp := fingerprintOf(suite, pk)
	raw, err := Build(suite, sk, fp, "Alice", pk, "hi", now, 3600)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := Publish(ctx, transport, "bob", fp, raw, 3600); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := Publish(ctx, transport, "bob", "deadbeefdeadbeef", []byte("garbage"), 3600); err != nil {
		t.Fatalf("publish garbage: %v", err)
	}

	reqs, err := FetchAll(ctx, transport, suite, "bob", now)
	if err != nil {
		t.Fatalf("fetch all: %v", err)
	}
	if len(reqs) != 1 {
		t.Fatalf("expected 1 valid request after skipping garbage, got %d", len(reqs))
	}
}
