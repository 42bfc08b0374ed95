// Package group implements C9: group metadata records, the
// authorization rules that guard their mutation, and Initial Key Packet
// distribution for the group symmetric key (spec.md §4.9).
package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/keyderive"

	"github.com/google/uuid"
)

const metaTTLSeconds = 30 * 24 * 60 * 60

var (
	// ErrNotAuthorized is returned by authorize when the actor lacks the
	// role required for the attempted operation (spec.md §8 invariant 6).
	ErrNotAuthorized = errors.New("group: actor not authorized for operation")
	// ErrCreatorNotMember is returned when a Metadata value fails the
	// "creator is always a member" invariant (spec.md §4.9).
	ErrCreatorNotMember = errors.New("group: creator is not a member")
	// ErrDuplicateMember is returned when the member list contains a
	// repeated fingerprint.
	ErrDuplicateMember = errors.New("group: duplicate member fingerprint")
	// ErrMemberNotFound is returned by RemoveMember when the target
	// fingerprint is not a current member.
	ErrMemberNotFound = errors.New("group: member not found")
)

// Metadata is the JSON record published at "dht:group:{uuid}" (spec.md
// §4.9, §6.4).
type Metadata struct {
	UUID        string    `json:"uuid"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatorFP   string    `json:"creator_fp"`
	CreatedAt   int64     `json:"created_at"`
	Version     uint64    `json:"version"`
	GSKVersion  uint32    `json:"gsk_version"`
	Members     []string  `json:"members"`
}

// op identifies the mutation an authorize call is guarding.
type op string

const (
	opCreate       op = "create"
	opUpdate       op = "update"
	opAddMember    op = "add_member"
	opRemoveMember op = "remove_member"
	opDelete       op = "delete"
)

func isMember(meta Metadata, fp string) bool {
	for _, m := range meta.Members {
		if m == fp {
			return true
		}
	}
	return false
}

// authorize is the pure read-modify-write guard spec.md §4.9 describes:
// create is open to anyone; update/add_member require creator-or-member;
// remove_member is open to the creator and to a member removing
// themselves; delete is creator-only.
// It is factored out of the write path so it is independently testable
// against invariant 6 in spec.md §8.
func authorize(operation op, actorFP string, meta Metadata, targetFP string) error {
	switch operation {
	case opCreate:
		return nil
	case opUpdate, opAddMember:
		if actorFP == meta.CreatorFP || isMember(meta, actorFP) {
			return nil
		}
		return ErrNotAuthorized
	case opRemoveMember:
		if actorFP == meta.CreatorFP || actorFP == targetFP {
			return nil
		}
		return ErrNotAuthorized
	case opDelete:
		if actorFP == meta.CreatorFP {
			return nil
		}
		return ErrNotAuthorized
	default:
		return fmt.Errorf("group: unknown operation %q", operation)
	}
}

func validate(meta Metadata) error {
	if !isMember(meta, meta.CreatorFP) {
		return ErrCreatorNotMember
	}
	seen := make(map[string]struct{}, len(meta.Members))
	for _, m := range meta.Members {
		if _, dup := seen[m]; dup {
			return ErrDuplicateMember
		}
		seen[m] = struct{}{}
	}
	if meta.GSKVersion < 1 {
		return errors.New("group: gsk_version must be >= 1")
	}
	return nil
}

// Store wraps a chunked-storage handle with group-aware read-modify-write
// operations.
type Store struct {
	chunks *chunkstore.Store
	now    func() time.Time
}

// NewStore returns a Store backed by chunks.
func NewStore(chunks *chunkstore.Store) *Store {
	return &Store{chunks: chunks, now: time.Now}
}

func metaKey(groupUUID string) string {
	return keyderive.GroupMeta(groupUUID)
}

func (s *Store) fetch(ctx context.Context, groupUUID string) (Metadata, error) {
	raw, err := s.chunks.Fetch(ctx, metaKey(groupUUID))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("group: decode metadata: %w", err)
	}
	return meta, nil
}

func (s *Store) publish(ctx context.Context, meta Metadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("group: encode metadata: %w", err)
	}
	return s.chunks.Publish(ctx, metaKey(meta.UUID), raw, metaTTLSeconds)
}

// Get fetches and decodes a group's current metadata.
func (s *Store) Get(ctx context.Context, groupUUID string) (Metadata, error) {
	return s.fetch(ctx, groupUUID)
}

// Create publishes a brand-new group with creatorFP as both creator and
// sole initial member plus any additional initialMembers. gsk_version
// starts at 1; the caller is responsible for building and publishing the
// matching Initial Key Packet (see BuildPacket).
func Create(ctx context.Context, s *Store, name, description, creatorFP string, initialMembers []string) (Metadata, error) {
	members := append([]string{creatorFP}, initialMembers...)
	meta := Metadata{
		UUID:        uuid.NewString(),
		Name:        name,
		Description: description,
		CreatorFP:   creatorFP,
		CreatedAt:   s.now().Unix(),
		Version:     1,
		GSKVersion:  1,
		Members:     members,
	}
	if err := authorize(opCreate, creatorFP, meta, ""); err != nil {
		return Metadata{}, err
	}
	if err := validate(meta); err != nil {
		return Metadata{}, err
	}
	if err := s.publish(ctx, meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Update rewrites name/description under read-modify-write semantics,
// rejecting actors who are not the creator or an existing member
// (spec.md §4.9, §8 invariant 6). It does not bump gsk_version.
func Update(ctx context.Context, s *Store, groupUUID, actorFP, name, description string) (Metadata, error) {
	meta, err := s.fetch(ctx, groupUUID)
	if err != nil {
		return Metadata{}, err
	}
	if err := authorize(opUpdate, actorFP, meta, ""); err != nil {
		return Metadata{}, err
	}
	meta.Name = name
	meta.Description = description
	meta.Version++
	if err := s.publish(ctx, meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// AddMember appends newMemberFP to the group and bumps both version and
// gsk_version; the caller must rotate and republish the Initial Key
// Packet to match the returned GSKVersion (spec.md §8 scenario S5).
func AddMember(ctx context.Context, s *Store, groupUUID, actorFP, newMemberFP string) (Metadata, error) {
	meta, err := s.fetch(ctx, groupUUID)
	if err != nil {
		return Metadata{}, err
	}
	if err := authorize(opAddMember, actorFP, meta, ""); err != nil {
		return Metadata{}, err
	}
	if isMember(meta, newMemberFP) {
		return Metadata{}, ErrDuplicateMember
	}
	meta.Members = append(append([]string(nil), meta.Members...), newMemberFP)
	meta.Version++
	meta.GSKVersion++
	if err := validate(meta); err != nil {
		return Metadata{}, err
	}
	if err := s.publish(ctx, meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// RemoveMember removes targetFP from the group and bumps both version
// and gsk_version (membership change forces rotation regardless of
// direction, per spec.md §4.9's "owner rotates on membership changes").
// The creator may remove any member; any other member may only remove
// themselves.
func RemoveMember(ctx context.Context, s *Store, groupUUID, actorFP, targetFP string) (Metadata, error) {
	meta, err := s.fetch(ctx, groupUUID)
	if err != nil {
		return Metadata{}, err
	}
	if err := authorize(opRemoveMember, actorFP, meta, targetFP); err != nil {
		return Metadata{}, err
	}
	if targetFP == meta.CreatorFP {
		return Metadata{}, errors.New("group: creator cannot be removed")
	}
	idx := -1
	for i, m := range meta.Members {
		if m == targetFP {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Metadata{}, ErrMemberNotFound
	}
	meta.Members = append(append([]string(nil), meta.Members[:idx]...), meta.Members[idx+1:]...)
	meta.Version++
	meta.GSKVersion++
	if err := s.publish(ctx, meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

// Delete overwrites the metadata record with a short-TTL sentinel,
// matching the best-effort-overwrite deletion lifecycle spec.md §3
// describes. Only the creator may delete a group.
func Delete(ctx context.Context, s *Store, groupUUID, actorFP string) error {
	meta, err := s.fetch(ctx, groupUUID)
	if err != nil {
		return err
	}
	if err := authorize(opDelete, actorFP, meta, ""); err != nil {
		return err
	}
	const deletionSentinelTTL = 60
	raw, err := json.Marshal(struct {
		UUID    string `json:"uuid"`
		Deleted bool   `json:"deleted"`
	}{UUID: meta.UUID, Deleted: true})
	if err != nil {
		return fmt.Errorf("group: encode tombstone: %w", err)
	}
	return s.chunks.Publish(ctx, metaKey(groupUUID), raw, deletionSentinelTTL)
}
