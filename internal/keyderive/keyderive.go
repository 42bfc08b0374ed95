// Package keyderive implements the deterministic mapping from a logical
// ASCII preimage to a 32-byte DHT key (spec.md §4.2, C2).
package keyderive

import (
	"fmt"

	"golang.org/x/crypto/sha3"
)

// DeriveKey returns SHA3-512(preimage)[0:32]. Key uniqueness is a function
// of the ASCII preimage only; there is no key directory (spec.md §3).
func DeriveKey(preimage string) [32]byte {
	sum := sha3.Sum512([]byte(preimage))
	var key [32]byte
	copy(key[:], sum[:32])
	return key
}

// ChunkSlot returns the preimage for chunk i of the logical value at base.
func ChunkSlot(base string, i uint32) string {
	return fmt.Sprintf("%s:chunk:%d", base, i)
}

// DMBucket returns the preimage for the DM outbox bucket identifying the
// (sender, recipient, day) triple.
func DMBucket(sender, recipient string, day int64) string {
	return fmt.Sprintf("%s:outbox:%s:%d", sender, recipient, day)
}

// ContactRequestInbox returns the preimage for a recipient's contact
// request inbox key.
func ContactRequestInbox(recipientFP string) string {
	return fmt.Sprintf("%s:requests", recipientFP)
}

// Ack returns the preimage for the acknowledgment key a recipient
// publishes to, keyed by (recipient, sender).
func Ack(recipientFP, senderFP string) string {
	return fmt.Sprintf("%s:ack:%s", recipientFP, senderFP)
}

// Profile returns the preimage for a fingerprint's profile record.
func Profile(fp string) string {
	return fmt.Sprintf("%s:profile", fp)
}

// PublicKeyRecord returns the preimage for a fingerprint's public-key record.
func PublicKeyRecord(fp string) string {
	return fmt.Sprintf("%s:pubkey", fp)
}

// NameAlias returns the preimage for a human-readable name lookup.
func NameAlias(name string) string {
	return fmt.Sprintf("%s:lookup", name)
}

// ReverseMap returns the preimage for a fingerprint's reverse name mapping.
func ReverseMap(fp string) string {
	return fmt.Sprintf("%s:reverse", fp)
}

// GroupMeta returns the preimage for a group's metadata record.
func GroupMeta(uuid string) string {
	return fmt.Sprintf("dht:group:%s", uuid)
}

// GroupKeyVersion returns the preimage for a group's Initial Key Packet
// at the given GSK version.
func GroupKeyVersion(uuid string, version uint32) string {
	return fmt.Sprintf("%s:gsk:%d", uuid, version)
}

// GroupHeartbeat returns the preimage for a member's liveness heartbeat
// in a group (spec.md §4.9).
func GroupHeartbeat(uuid, memberFP string) string {
	return fmt.Sprintf("%s:heartbeat:%s", uuid, memberFP)
}

// FeedSubscriptions returns the preimage for a fingerprint's feed
// subscription list.
func FeedSubscriptions(fp string) string {
	return fmt.Sprintf("dna:feeds:subscriptions:%s", fp)
}
