package profile

import (
	"context"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/keyderive"
)

const reverseTTLSeconds = 365 * 24 * 60 * 60

// ReverseRecord maps a fingerprint back to its signature public key and
// a human display name, published at "{fp}:reverse" (spec.md §4.10).
type ReverseRecord struct {
	SigPublicKey []byte `json:"sig_public_key"`
	DisplayName  string `json:"display_name"`
}

// PublishReverseRecord signs and publishes rec at fp's reverse-map key.
func PublishReverseRecord(ctx context.Context, chunks *chunkstore.Store, suite cryptosuite.Suite, sk []byte, fp string, rec ReverseRecord) error {
	return publish(ctx, chunks, suite, sk, keyderive.ReverseMap(fp), reverseTTLSeconds, rec)
}

// FetchReverseRecord retrieves and verifies fp's reverse-map record under pk.
func FetchReverseRecord(ctx context.Context, chunks *chunkstore.Store, suite cryptosuite.Suite, fp string, pk []byte) (ReverseRecord, error) {
	raw, err := chunks.Fetch(ctx, keyderive.ReverseMap(fp))
	if err != nil {
		return ReverseRecord{}, err
	}
	var rec ReverseRecord
	if err := openJSONBlob(suite, raw, pk, &rec); err != nil {
		return ReverseRecord{}, err
	}
	return rec, nil
}
