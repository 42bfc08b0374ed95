package contactreq

import (
	"context"
	"time"

	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/keyderive"
)

// Publish writes a built, signed request at the recipient's inbox key
// under the sender-derived value_id, so distinct senders accumulate
// rather than overwrite one another (spec.md §4.8).
func Publish(ctx context.Context, transport dht.Transport, recipientFP, senderFP string, raw []byte, ttlSeconds uint32) error {
	key := keyderive.DeriveKey(keyderive.ContactRequestInbox(recipientFP))
	return transport.PutSigned(ctx, key, raw, ValueID(senderFP), ttlSeconds)
}

// FetchAll retrieves every slot at the recipient's inbox key and decodes
// each independently; malformed or invalid records are skipped rather
// than failing the whole fetch (spec.md §4.8 "failures are skipped, not
// fatal"; this is the SUPPLEMENTED FEATURES FetchAll in SPEC_FULL.md).
func FetchAll(ctx context.Context, transport dht.Transport, suite cryptosuite.Suite, recipientFP string, now time.Time) ([]Request, error) {
	key := keyderive.DeriveKey(keyderive.ContactRequestInbox(recipientFP))
	raws, err := transport.GetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	out := make([]Request, 0, len(raws))
	for _, raw := range raws {
		req, err := Decode(suite, raw, now)
		if err != nil {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}
