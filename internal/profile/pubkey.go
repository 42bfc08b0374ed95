package profile

import (
	"context"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/keyderive"
)

const pubkeyTTLSeconds = 365 * 24 * 60 * 60

// PublicKeyRecord carries a fingerprint's two cryptographic public keys
// plus identity metadata, published at "{fp}:pubkey" (spec.md §4.10).
type PublicKeyRecord struct {
	FP           string `json:"fp"`
	SigPublicKey []byte `json:"sig_public_key"`
	KEMPublicKey []byte `json:"kem_public_key"`
	DisplayName  string `json:"display_name"`
	CreatedAt    int64  `json:"created_at"`
}

// PublishPublicKeyRecord signs and publishes rec at its owner's
// public-key key. The record is self-signed: sk must be the private key
// matching rec.SigPublicKey.
func PublishPublicKeyRecord(ctx context.Context, chunks *chunkstore.Store, suite cryptosuite.Suite, sk []byte, rec PublicKeyRecord) error {
	return publish(ctx, chunks, suite, sk, keyderive.PublicKeyRecord(rec.FP), pubkeyTTLSeconds, rec)
}

// FetchPublicKeyRecord retrieves fp's public-key record. Since the record
// is self-describing, the caller supplies the expected signature public
// key out-of-band (e.g. from a previously trusted fetch or a contact
// request) to verify against, rather than trusting the embedded key
// blindly.
func FetchPublicKeyRecord(ctx context.Context, chunks *chunkstore.Store, suite cryptosuite.Suite, fp string, trustedSigPubKey []byte) (PublicKeyRecord, error) {
	raw, err := chunks.Fetch(ctx, keyderive.PublicKeyRecord(fp))
	if err != nil {
		return PublicKeyRecord{}, err
	}
	var rec PublicKeyRecord
	if err := openJSONBlob(suite, raw, trustedSigPubKey, &rec); err != nil {
		return PublicKeyRecord{}, err
	}
	return rec, nil
}
