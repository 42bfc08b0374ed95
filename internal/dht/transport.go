// Package dht declares the opaque DHT transport interface consumed by the
// storage plane (spec.md §6.1). The underlying Kademlia-style primitive is
// explicitly out of scope (spec.md §1); this package only fixes the
// contract every component is written against.
package dht

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists at a key.
var ErrNotFound = errors.New("dht: not found")

// MaxTTL marks a slot as permanent, per spec.md §3 ("UINT32_MAX is
// treated as permanent").
const MaxTTL uint32 = 0xFFFFFFFF

// GetResult is one element of a batched get.
type GetResult struct {
	Found bool
	Bytes []byte
}

// ListenCancelFunc cancels a previously registered listener.
type ListenCancelFunc func()

// ListenCallback is invoked on every update to a listened key. value is
// nil and expired is true when the slot's TTL elapses.
type ListenCallback func(value []byte, expired bool)

// GetAsyncCallback is invoked once with the result of an asynchronous get.
// value is nil if the key was not found.
type GetAsyncCallback func(value []byte, found bool)

// Transport is the narrow interface the core consumes from the underlying
// DHT (spec.md §6.1). All operations key on a 32-byte opaque identifier
// produced by internal/keyderive.
type Transport interface {
	// PutSigned writes value_bytes at key under value_id, replacing any
	// prior value sharing the same (key, value_id). ttlSeconds of
	// MaxTTL means permanent.
	PutSigned(ctx context.Context, key [32]byte, valueBytes []byte, valueID uint64, ttlSeconds uint32) error

	// Get returns the single accumulated value at key, or ErrNotFound.
	Get(ctx context.Context, key [32]byte) ([]byte, error)

	// GetAll returns every concurrent slot stored at key.
	GetAll(ctx context.Context, key [32]byte) ([][]byte, error)

	// GetAsync issues a non-blocking get, invoking cb exactly once.
	GetAsync(ctx context.Context, key [32]byte, cb GetAsyncCallback)

	// GetBatchSync performs a single batched get over many keys.
	GetBatchSync(ctx context.Context, keys [][32]byte) ([]GetResult, error)

	// Listen registers cb for updates to key, returning a token the
	// caller uses to Cancel. The callback is invoked from a transport
	// goroutine and must not block.
	Listen(ctx context.Context, key [32]byte, cb ListenCallback) (ListenCancelFunc, error)

	// OwnerValueID returns the per-identity stable value_id this node
	// should use as a writer.
	OwnerValueID() uint64

	// RepublishPacked writes a previously serialized signed value
	// unchanged (signature preserved) under the key named by keyHex.
	RepublishPacked(ctx context.Context, keyHex string, serializedValue []byte) error

	// IsReady reports whether the local routing table has at least one
	// peer.
	IsReady(ctx context.Context) bool
}
