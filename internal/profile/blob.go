// Package profile implements C10: signed profile records, public-key
// records, name aliases, reverse-fingerprint maps, and feed subscription
// lists (spec.md §4.10).
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/codec"
	"dnamessenger.dev/core/internal/cryptosuite"
)

// ErrBadSignature is returned when a signed blob's embedded signature
// fails to verify against the supplied public key.
var ErrBadSignature = errors.New("profile: signature verification failed")

// signJSONBlob serializes v to JSON, then wraps it as
// json_len(u64) | json | sig_len(u64) | sig, signing the json_len||json
// prefix with sk (spec.md §4.10/§6.4 "Profile blob").
func signJSONBlob(suite cryptosuite.Suite, sk []byte, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("profile: encode json: %w", err)
	}
	w := codec.NewWriter(8 + len(body) + 8 + cryptosuite.MaxSignatureBytes)
	w.PutU64(uint64(len(body)))
	w.PutBytes(body)

	signed := append([]byte(nil), w.Bytes()...)
	sig, err := suite.Sign(sk, signed)
	if err != nil {
		return nil, err
	}
	w.PutU64(uint64(len(sig)))
	w.PutBytes(sig)
	return w.Bytes(), nil
}

// openJSONBlob reverses signJSONBlob, verifying the signature under pk
// and unmarshaling the JSON payload into v.
func openJSONBlob(suite cryptosuite.Suite, raw []byte, pk []byte, v any) error {
	r := codec.NewReader(raw)
	jsonLen, err := r.U64()
	if err != nil {
		return err
	}
	body, err := r.Bytes(int(jsonLen))
	if err != nil {
		return err
	}
	signedEnd := r.Offset()
	sigLen, err := r.U64()
	if err != nil {
		return err
	}
	sig, err := r.Bytes(int(sigLen))
	if err != nil {
		return err
	}

	signedBytes := raw[:signedEnd]
	if !suite.Verify(pk, signedBytes, sig) {
		return ErrBadSignature
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("profile: decode json: %w", err)
	}
	return nil
}

// publish signs a JSON payload and publishes it at key via the chunked
// storage plane, a small helper shared by the record constructors below.
func publish(ctx context.Context, chunks *chunkstore.Store, suite cryptosuite.Suite, sk []byte, key string, ttlSeconds uint32, v any) error {
	raw, err := signJSONBlob(suite, sk, v)
	if err != nil {
		return err
	}
	return chunks.Publish(ctx, key, raw, ttlSeconds)
}
