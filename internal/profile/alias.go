package profile

import (
	"context"

	"dnamessenger.dev/core/internal/codec"
	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/keyderive"
)

const (
	aliasFPFieldLen = 128
	aliasTTLSeconds = 365 * 24 * 60 * 60
	aliasValueID    = 1
)

// PublishAlias writes a plain, unsigned 128-byte fingerprint value at
// "{name}:lookup" (spec.md §4.10 "Human name -> fingerprint aliases are
// plain 128-byte values"). Unlike the JSON records above, this is a bare
// value with no signature: every writer uses the same value_id, and the
// DHT replaces in place at (key, value_id), so a later PublishAlias for
// the same name overwrites the earlier one.
func PublishAlias(ctx context.Context, transport dht.Transport, name, fp string) error {
	w := codec.NewWriter(aliasFPFieldLen)
	if err := w.PutFixedString(fp, aliasFPFieldLen); err != nil {
		return err
	}
	key := keyderive.DeriveKey(keyderive.NameAlias(name))
	return transport.PutSigned(ctx, key, w.Bytes(), aliasValueID, aliasTTLSeconds)
}

// ResolveAlias looks up the fingerprint currently registered for name, or
// dht.ErrNotFound if none exists.
func ResolveAlias(ctx context.Context, transport dht.Transport, name string) (string, error) {
	key := keyderive.DeriveKey(keyderive.NameAlias(name))
	raw, err := transport.Get(ctx, key)
	if err != nil {
		return "", err
	}
	r := codec.NewReader(raw)
	return r.FixedString(aliasFPFieldLen)
}
