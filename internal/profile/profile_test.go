package profile

import (
	"context"
	"testing"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/dht"
)

func newTestChunks() (*chunkstore.Store, dht.Transport) {
	transport := dht.NewInMemory()
	return chunkstore.NewStore(transport, cryptosuite.SoftwareSuite{}), transport
}

func mustSigKeypair(t *testing.T) (pk, sk []byte) {
	t.Helper()
	pk, sk, err := cryptosuite.GenerateSigKeypair()
	if err != nil {
		t.Fatalf("generate sig keypair: %v", err)
	}
	return pk, sk
}

func TestProfilePublishFetchRoundTrip(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	chunks, _ := newTestChunks()
	ctx := context.Background()
	pk, sk := mustSigKeypair(t)

	p := Profile{DisplayName: "Alice", StatusText: "hi there", UpdatedAt: 1700000000}
	if err := PublishProfile(ctx, chunks, suite, sk, "alice-fp", p); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got, err := FetchProfile(ctx, chunks, suite, "alice-fp", pk)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != p {
		t.Fatalf("expected %+v, got %+v", p, got)
	}
}

func TestProfileWrongKeyRejected(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	chunks, _ := newTestChunks()
	ctx := context.Background()
	_, sk := mustSigKeypair(t)
	otherPK, _ := mustSigKeypair(t)

	if err := PublishProfile(ctx, chunks, suite, sk, "alice-fp", Profile{DisplayName: "Alice"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := FetchProfile(ctx, chunks, suite, "alice-fp", otherPK); err != ErrBadSignature {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestPublicKeyRecordRoundTrip(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	chunks, _ := newTestChunks()
	ctx := context.Background()
	pk, sk := mustSigKeypair(t)
	kemPub, _, err := cryptosuite.GenerateKEMKeypair()
	if err != nil {
		t.Fatalf("kem keypair: %v", err)
	}

	rec := PublicKeyRecord{FP: "alice-fp", SigPublicKey: pk, KEMPublicKey: kemPub, DisplayName: "Alice", CreatedAt: 42}
	if err := PublishPublicKeyRecord(ctx, chunks, suite, sk, rec); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := FetchPublicKeyRecord(ctx, chunks, suite, "alice-fp", pk)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.FP != rec.FP || got.DisplayName != rec.DisplayName {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestAliasPublishResolve(t *testing.T) {
	_, transport := newTestChunks()
	ctx := context.Background()

	if err := PublishAlias(ctx, transport, "alice", "alice-fp-0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"); err != nil {
		t.Fatalf("publish alias: %v", err)
	}
	got, err := ResolveAlias(ctx, transport, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "alice-fp-0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000" {
		t.Fatalf("unexpected resolved fp: %q", got)
	}
}

func TestAliasMissingReturnsNotFound(t *testing.T) {
	_, transport := newTestChunks()
	ctx := context.Background()

	if _, err := ResolveAlias(ctx, transport, "nobody"); err != dht.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReverseRecordRoundTrip(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	chunks, _ := newTestChunks()
	ctx := context.Background()
	pk, sk := mustSigKeypair(t)

	rec := ReverseRecord{SigPublicKey: pk, DisplayName: "Alice"}
	if err := PublishReverseRecord(ctx, chunks, suite, sk, "alice-fp", rec); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := FetchReverseRecord(ctx, chunks, suite, "alice-fp", pk)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.DisplayName != "Alice" {
		t.Fatalf("unexpected reverse record: %+v", got)
	}
}

func TestFeedSubscriptionsRoundTrip(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	chunks, _ := newTestChunks()
	ctx := context.Background()
	pk, sk := mustSigKeypair(t)

	subs := []FeedSubscription{
		{TopicUUID: "topic-uuid-1", SubscribedAt: 100, LastSynced: 200},
		{TopicUUID: "topic-uuid-2", SubscribedAt: 150, LastSynced: 0},
	}
	if err := PublishFeedSubscriptions(ctx, chunks, suite, sk, "alice-fp", subs); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := FetchFeedSubscriptions(ctx, chunks, suite, "alice-fp", pk)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 || got[0].TopicUUID != "topic-uuid-1" || got[1].SubscribedAt != 150 {
		t.Fatalf("unexpected subs: %+v", got)
	}
}

func TestFeedSubscriptionsEmptyList(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	chunks, _ := newTestChunks()
	ctx := context.Background()
	pk, sk := mustSigKeypair(t)

	if err := PublishFeedSubscriptions(ctx, chunks, suite, sk, "bob-fp", nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := FetchFeedSubscriptions(ctx, chunks, suite, "bob-fp", pk)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty subs, got %+v", got)
	}
}
