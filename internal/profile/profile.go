package profile

import (
	"context"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/keyderive"
)

const profileTTLSeconds = 365 * 24 * 60 * 60

// Profile is the user-editable display record published at "{fp}:profile"
// (spec.md §4.10).
type Profile struct {
	DisplayName string `json:"display_name"`
	StatusText  string `json:"status_text"`
	AvatarURI   string `json:"avatar_uri,omitempty"`
	UpdatedAt   int64  `json:"updated_at"`
}

// PublishProfile signs and publishes p at the owner's profile key.
func PublishProfile(ctx context.Context, chunks *chunkstore.Store, suite cryptosuite.Suite, sk []byte, ownerFP string, p Profile) error {
	return publish(ctx, chunks, suite, sk, keyderive.Profile(ownerFP), profileTTLSeconds, p)
}

// FetchProfile retrieves and verifies ownerFP's profile under pk.
func FetchProfile(ctx context.Context, chunks *chunkstore.Store, suite cryptosuite.Suite, ownerFP string, pk []byte) (Profile, error) {
	raw, err := chunks.Fetch(ctx, keyderive.Profile(ownerFP))
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := openJSONBlob(suite, raw, pk, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}
