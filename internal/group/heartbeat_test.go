package group

import (
	"context"
	"testing"
	"time"

	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/dht"
)

func TestEffectiveOwnerPicksHashMaximalLiveMember(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	transport := dht.NewInMemory()
	ctx := context.Background()
	now := time.Now()

	meta := Metadata{UUID: "uuid-owner", Members: []string{"alice-fp", "bob-fp", "carol-fp"}}
	for _, fp := range meta.Members {
		if err := PublishHeartbeat(ctx, transport, meta.UUID, fp, now); err != nil {
			t.Fatalf("publish heartbeat %s: %v", fp, err)
		}
	}

	owner, err := EffectiveOwner(ctx, transport, suite, meta, now)
	if err != nil {
		t.Fatalf("effective owner: %v", err)
	}

	var want string
	var wantHash [64]byte
	have := false
	for _, fp := range meta.Members {
		h := suite.SHA3_512([]byte(fp))
		if !have || greaterHash(h, wantHash) {
			want, wantHash, have = fp, h, true
		}
	}
	if owner != want {
		t.Fatalf("expected hash-maximal owner %s, got %s", want, owner)
	}
}

func TestEffectiveOwnerExcludesStaleHeartbeats(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	transport := dht.NewInMemory()
	ctx := context.Background()
	now := time.Now()

	meta := Metadata{UUID: "uuid-stale", Members: []string{"alice-fp", "bob-fp"}}
	if err := PublishHeartbeat(ctx, transport, meta.UUID, "alice-fp", now.Add(-8*24*time.Hour)); err != nil {
		t.Fatalf("publish stale heartbeat: %v", err)
	}
	if err := PublishHeartbeat(ctx, transport, meta.UUID, "bob-fp", now); err != nil {
		t.Fatalf("publish live heartbeat: %v", err)
	}

	owner, err := EffectiveOwner(ctx, transport, suite, meta, now)
	if err != nil {
		t.Fatalf("effective owner: %v", err)
	}
	if owner != "bob-fp" {
		t.Fatalf("expected bob-fp (only live member), got %s", owner)
	}
}

func TestEffectiveOwnerNoLiveMembersReturnsEmpty(t *testing.T) {
	suite := cryptosuite.SoftwareSuite{}
	transport := dht.NewInMemory()
	ctx := context.Background()

	meta := Metadata{UUID: "uuid-none", Members: []string{"alice-fp"}}
	owner, err := EffectiveOwner(ctx, transport, suite, meta, time.Now())
	if err != nil {
		t.Fatalf("effective owner: %v", err)
	}
	if owner != "" {
		t.Fatalf("expected no owner with no heartbeats, got %s", owner)
	}
}
