package group

import (
	"context"
	"testing"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/dht"
)

func newTestStore() *Store {
	transport := dht.NewInMemory()
	chunks := chunkstore.NewStore(transport, cryptosuite.SoftwareSuite{})
	return NewStore(chunks)
}

func TestCreateCreatorIsMember(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	meta, err := Create(ctx, s, "Friends", "a chat", "creator-fp", []string{"m1-fp"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if meta.CreatorFP != "creator-fp" || !isMember(meta, "creator-fp") {
		t.Fatalf("creator must be a member: %+v", meta)
	}
	if meta.Version != 1 || meta.GSKVersion != 1 {
		t.Fatalf("expected version=1 gsk_version=1, got %+v", meta)
	}

	fetched, err := s.Get(ctx, meta.UUID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetched.UUID != meta.UUID || len(fetched.Members) != 2 {
		t.Fatalf("unexpected fetched metadata: %+v", fetched)
	}
}

// TestAuthorizationRejectsOutsider is invariant 6 from spec.md §8.
func TestAuthorizationRejectsOutsider(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	meta, err := Create(ctx, s, "Team", "", "creator-fp", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := Update(ctx, s, meta.UUID, "outsider-fp", "Team2", "desc"); err != ErrNotAuthorized {
		t.Fatalf("expected ErrNotAuthorized from Update, got %v", err)
	}
	if err := Delete(ctx, s, meta.UUID, "outsider-fp"); err != ErrNotAuthorized {
		t.Fatalf("expected ErrNotAuthorized from Delete, got %v", err)
	}
}

func TestUpdateByMemberSucceeds(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	meta, err := Create(ctx, s, "Team", "", "creator-fp", []string{"m1-fp"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := Update(ctx, s, meta.UUID, "m1-fp", "Team Renamed", "new desc")
	if err != nil {
		t.Fatalf("update by member: %v", err)
	}
	if updated.Name != "Team Renamed" || updated.Version != 2 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
}

// TestAddMemberBumpsBothVersions is scenario S5 from spec.md §8.
func TestAddMemberBumpsBothVersions(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	meta, err := Create(ctx, s, "Team", "", "c-fp", []string{"m1-fp"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := AddMember(ctx, s, meta.UUID, "c-fp", "m2-fp")
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if updated.Version != 2 || updated.GSKVersion != 2 {
		t.Fatalf("expected version=2 gsk_version=2, got %+v", updated)
	}
	if !isMember(updated, "m2-fp") {
		t.Fatalf("new member missing: %+v", updated)
	}
}

func TestRemoveMemberSelfAllowed(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	meta, err := Create(ctx, s, "Team", "", "c-fp", []string{"m1-fp", "m2-fp"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := RemoveMember(ctx, s, meta.UUID, "m1-fp", "m1-fp")
	if err != nil {
		t.Fatalf("self-remove: %v", err)
	}
	if isMember(updated, "m1-fp") {
		t.Fatalf("m1-fp should have been removed: %+v", updated)
	}
	if updated.Version != 2 || updated.GSKVersion != 2 {
		t.Fatalf("expected version bump on removal: %+v", updated)
	}
}

func TestRemoveMemberByNonCreatorOtherRejected(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	meta, err := Create(ctx, s, "Team", "", "c-fp", []string{"m1-fp", "m2-fp"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := RemoveMember(ctx, s, meta.UUID, "m1-fp", "m2-fp"); err != ErrNotAuthorized {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
}

func TestDeleteByCreatorSucceeds(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	meta, err := Create(ctx, s, "Team", "", "c-fp", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := Delete(ctx, s, meta.UUID, "c-fp"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
