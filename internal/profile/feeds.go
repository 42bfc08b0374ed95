package profile

import (
	"context"
	"errors"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/codec"
	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/keyderive"
)

const (
	feedMagic         = "FEED"
	feedVersion       = 1
	feedTopicFieldLen = 37
	feedMaxSubs       = 10_000
	feedTTLSeconds    = 30 * 24 * 60 * 60
)

// ErrBadFeedSignature is returned when a feed subscription list's
// signature fails to verify.
var ErrBadFeedSignature = errors.New("profile: feed subscription signature invalid")

// FeedSubscription is one entry in a subscriber's feed list (spec.md
// §4.10/§6.4).
type FeedSubscription struct {
	TopicUUID    string
	SubscribedAt uint64
	LastSynced   uint64
}

// encodeFeedList serializes subs per spec.md §6.4's "Feed subscription
// list" grammar and signs the whole thing, appending sig_len(u16)||sig.
// The §6.4 grammar table does not itemize a trailing signature field, but
// §4.10 prose says the list is "signed and stored"; the signature is
// appended the same way every other single-chunk record in this system
// appends one (contact request, Initial Key Packet).
func encodeFeedList(suite cryptosuite.Suite, sk []byte, subs []FeedSubscription) ([]byte, error) {
	if len(subs) > feedMaxSubs {
		return nil, codec.Sentinel(codec.ErrOversize)
	}
	w := codec.NewWriter(4 + 1 + 2 + len(subs)*(feedTopicFieldLen+8+8) + 2 + cryptosuite.MaxSignatureBytes)
	if err := w.PutMagicASCII(feedMagic); err != nil {
		return nil, err
	}
	w.PutU8(feedVersion)
	w.PutU16(uint16(len(subs)))
	for _, s := range subs {
		if err := w.PutFixedString(s.TopicUUID, feedTopicFieldLen); err != nil {
			return nil, err
		}
		w.PutU64(s.SubscribedAt)
		w.PutU64(s.LastSynced)
	}

	signed := append([]byte(nil), w.Bytes()...)
	sig, err := suite.Sign(sk, signed)
	if err != nil {
		return nil, err
	}
	if err := w.PutLenPrefixedBytes16(sig); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func decodeFeedList(suite cryptosuite.Suite, raw []byte, pk []byte) ([]FeedSubscription, error) {
	r := codec.NewReader(raw)
	if err := r.MagicASCII(feedMagic); err != nil {
		return nil, err
	}
	version, err := r.U8()
	if err != nil {
		return nil, err
	}
	if version != feedVersion {
		return nil, codec.Sentinel(codec.ErrUnsupportedVersion)
	}
	count, err := r.U16()
	if err != nil {
		return nil, err
	}
	subs := make([]FeedSubscription, 0, count)
	for i := uint16(0); i < count; i++ {
		topicUUID, err := r.FixedString(feedTopicFieldLen)
		if err != nil {
			return nil, err
		}
		subscribedAt, err := r.U64()
		if err != nil {
			return nil, err
		}
		lastSynced, err := r.U64()
		if err != nil {
			return nil, err
		}
		subs = append(subs, FeedSubscription{TopicUUID: topicUUID, SubscribedAt: subscribedAt, LastSynced: lastSynced})
	}

	signedEnd := r.Offset()
	sig, err := r.LenPrefixedBytes16(cryptosuite.MaxSignatureBytes)
	if err != nil {
		return nil, err
	}
	if !suite.Verify(pk, raw[:signedEnd], sig) {
		return nil, ErrBadFeedSignature
	}
	return subs, nil
}

// PublishFeedSubscriptions signs and publishes ownerFP's full
// subscription list at "dna:feeds:subscriptions:{fp}".
func PublishFeedSubscriptions(ctx context.Context, chunks *chunkstore.Store, suite cryptosuite.Suite, sk []byte, ownerFP string, subs []FeedSubscription) error {
	raw, err := encodeFeedList(suite, sk, subs)
	if err != nil {
		return err
	}
	return chunks.Publish(ctx, keyderive.FeedSubscriptions(ownerFP), raw, feedTTLSeconds)
}

// FetchFeedSubscriptions retrieves and verifies ownerFP's subscription
// list under pk.
func FetchFeedSubscriptions(ctx context.Context, chunks *chunkstore.Store, suite cryptosuite.Suite, ownerFP string, pk []byte) ([]FeedSubscription, error) {
	raw, err := chunks.Fetch(ctx, keyderive.FeedSubscriptions(ownerFP))
	if err != nil {
		return nil, err
	}
	return decodeFeedList(suite, raw, pk)
}
