package chunkstore

import (
	"errors"
	"fmt"

	"dnamessenger.dev/core/internal/dht"
)

// PublishErrorKind enumerates the Publish failure taxonomy (spec.md §4.3).
type PublishErrorKind string

const (
	PublishErrCompress PublishErrorKind = "CHUNK_PUBLISH_COMPRESS"
	PublishErrSerialize PublishErrorKind = "CHUNK_PUBLISH_SERIALIZE"
	PublishErrDhtPut    PublishErrorKind = "CHUNK_PUBLISH_DHT_PUT"
	PublishErrNullParam PublishErrorKind = "CHUNK_PUBLISH_NULL_PARAM"
	PublishErrTooManyChunks PublishErrorKind = "CHUNK_PUBLISH_TOO_MANY_CHUNKS"
)

// PublishError is returned by Publish.
type PublishError struct {
	Kind PublishErrorKind
	Err  error
}

func (e *PublishError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Retryable reports whether the error kind is safe to retry. Only a
// transport-layer put failure is transient; compression/serialization
// failures and oversize payloads are permanent (spec.md §7).
func (e *PublishError) Retryable() bool {
	return e.Kind == PublishErrDhtPut
}

// FetchErrorKind enumerates the Fetch failure taxonomy (spec.md §4.3, §7).
// HashMismatch is explicitly retryable: it signals a DHT version race
// where chunks from different writes interleaved.
type FetchErrorKind string

const (
	FetchErrDhtGet       FetchErrorKind = "CHUNK_FETCH_DHT_GET"
	FetchErrInvalidFormat FetchErrorKind = "CHUNK_FETCH_INVALID_FORMAT"
	FetchErrChecksum     FetchErrorKind = "CHUNK_FETCH_CHECKSUM"
	FetchErrIncomplete   FetchErrorKind = "CHUNK_FETCH_INCOMPLETE"
	FetchErrTimeout      FetchErrorKind = "CHUNK_FETCH_TIMEOUT"
	FetchErrDecompress   FetchErrorKind = "CHUNK_FETCH_DECOMPRESS"
	FetchErrHashMismatch FetchErrorKind = "CHUNK_FETCH_HASH_MISMATCH"
)

// FetchError is returned by Fetch/FetchBatch/FetchMetadata.
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the error kind is safe to retry (spec.md §7:
// "Transient ... errors are retried within a bounded budget").
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FetchErrDhtGet, FetchErrTimeout, FetchErrHashMismatch, FetchErrIncomplete:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err represents an absent logical value
// (chunk 0 never written), which callers such as internal/dmoutbox treat
// as an empty result rather than a failure (spec.md §4.6 "absent is
// treated as empty").
func IsNotFound(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == FetchErrDhtGet && errors.Is(fe.Err, dht.ErrNotFound)
}
