// Package chunkstore implements C3: the chunked storage layer that
// transparently splits, compresses, signs, fans out, reassembles and
// verifies arbitrarily large authenticated values across many small DHT
// slots (spec.md §4.3). The fan-out/fan-in shape is grounded on the
// worker-pool pattern in the QuantaraX chunk transport (chunk_sender.go /
// chunk_receiver.go in the retrieval pack), adapted from a QUIC stream
// pump to concurrent DHT gets.
package chunkstore

import (
	"context"
	"sync"
	"time"

	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/dht"
	"dnamessenger.dev/core/internal/keyderive"
)

const (
	fetchWallClockBudget = 10 * time.Second
	missingChunkRetries  = 3
	missingChunkDelay    = 500 * time.Millisecond
)

// Store implements Publish/Fetch/FetchBatch/FetchMetadata/Delete over a
// dht.Transport. One Store instance should be shared by all callers
// publishing to the same base keys so the per-key mutex in Publish is
// effective (spec.md §4.3 "Concurrency").
type Store struct {
	transport dht.Transport
	suite     cryptosuite.Suite

	mu          sync.Mutex
	keyMutexes  map[string]*sync.Mutex
}

func NewStore(transport dht.Transport, suite cryptosuite.Suite) *Store {
	return &Store{
		transport:  transport,
		suite:      suite,
		keyMutexes: make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(baseKey string) func() {
	s.mu.Lock()
	m, ok := s.keyMutexes[baseKey]
	if !ok {
		m = &sync.Mutex{}
		s.keyMutexes[baseKey] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Publish compresses, chunks, and signs-puts data at baseKey (spec.md §4.3).
func (s *Store) Publish(ctx context.Context, baseKey string, data []byte, ttlSeconds uint32) error {
	if len(data) == 0 {
		return &PublishError{Kind: PublishErrNullParam}
	}
	unlock := s.lockFor(baseKey)
	defer unlock()

	compressed, err := s.suite.ZstdCompress(data)
	if err != nil {
		return &PublishError{Kind: PublishErrCompress, Err: err}
	}

	n := (len(compressed) + MaxChunkPayload - 1) / MaxChunkPayload
	if n == 0 {
		n = 1
	}
	if n > MaxChunks {
		return &PublishError{Kind: PublishErrTooManyChunks}
	}

	valueID := s.transport.OwnerValueID()
	contentHash := s.suite.SHA3_256(data)

	for i := 0; i < n; i++ {
		start := i * MaxChunkPayload
		end := start + MaxChunkPayload
		if end > len(compressed) {
			end = len(compressed)
		}
		h := header{
			Version:      VersionV2,
			TotalChunks:  uint32(n),
			ChunkIndex:   uint32(i),
			OriginalSize: uint32(len(data)),
		}
		if i == 0 {
			h.ContentHash = contentHash
		}
		raw := encodeChunk(h, compressed[start:end])

		key := keyderive.DeriveKey(keyderive.ChunkSlot(baseKey, uint32(i)))
		if err := s.transport.PutSigned(ctx, key, raw, valueID, ttlSeconds); err != nil {
			return &PublishError{Kind: PublishErrDhtPut, Err: err}
		}
	}
	return nil
}

// Fetch reassembles and verifies the logical value at baseKey (spec.md §4.3).
func (s *Store) Fetch(ctx context.Context, baseKey string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchWallClockBudget)
	defer cancel()

	chunk0Key := keyderive.DeriveKey(keyderive.ChunkSlot(baseKey, 0))
	raw, err := s.transport.Get(ctx, chunk0Key)
	if err != nil {
		return nil, &FetchError{Kind: FetchErrDhtGet, Err: err}
	}
	h0, payload0, err := decodeChunk(raw)
	if err != nil {
		return nil, err
	}

	n := h0.TotalChunks
	if n == 0 {
		n = 1
	}
	if n > MaxChunks {
		return nil, &FetchError{Kind: FetchErrInvalidFormat}
	}
	if h0.OriginalSize > MaxOriginalSize {
		return nil, &FetchError{Kind: FetchErrInvalidFormat}
	}

	if n == 1 {
		return s.finish(h0, [][]byte{payload0})
	}

	payloads := make([][]byte, n)
	payloads[0] = payload0
	if err := s.fetchRemaining(ctx, baseKey, payloads); err != nil {
		return nil, err
	}
	return s.finish(h0, payloads)
}

// fetchRemaining issues concurrent gets for chunks 1..n-1, retrying
// missing slots up to missingChunkRetries times within the outer
// wall-clock budget (spec.md §4.3 step 4-6).
func (s *Store) fetchRemaining(ctx context.Context, baseKey string, payloads [][]byte) error {
	n := len(payloads)
	missing := make([]int, 0, n-1)
	for i := 1; i < n; i++ {
		missing = append(missing, i)
	}

	for attempt := 0; attempt <= missingChunkRetries && len(missing) > 0; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(missingChunkDelay):
			case <-ctx.Done():
				return &FetchError{Kind: FetchErrTimeout, Err: ctx.Err()}
			}
		}

		type result struct {
			idx     int
			payload []byte
			err     error
		}
		results := make(chan result, len(missing))
		var wg sync.WaitGroup
		for _, idx := range missing {
			idx := idx
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := keyderive.DeriveKey(keyderive.ChunkSlot(baseKey, uint32(idx)))
				raw, err := s.transport.Get(ctx, key)
				if err != nil {
					results <- result{idx: idx, err: err}
					return
				}
				h, payload, err := decodeChunk(raw)
				if err != nil {
					results <- result{idx: idx, err: err}
					return
				}
				if int(h.ChunkIndex) != idx {
					results <- result{idx: idx, err: &FetchError{Kind: FetchErrInvalidFormat}}
					return
				}
				results <- result{idx: idx, payload: payload}
			}()
		}

		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-ctx.Done():
			return &FetchError{Kind: FetchErrTimeout, Err: ctx.Err()}
		}
		close(results)

		stillMissing := make([]int, 0)
		for r := range results {
			if r.err != nil {
				stillMissing = append(stillMissing, r.idx)
				continue
			}
			payloads[r.idx] = r.payload
		}
		missing = stillMissing
	}

	if len(missing) > 0 {
		return &FetchError{Kind: FetchErrIncomplete}
	}
	return nil
}

// finish concatenates payloads in index order, decompresses, and verifies
// size/hash per spec.md §4.3 step 8 and invariants 1-3.
func (s *Store) finish(h header, payloads [][]byte) ([]byte, error) {
	total := 0
	for _, p := range payloads {
		total += len(p)
	}
	compressed := make([]byte, 0, total)
	for _, p := range payloads {
		compressed = append(compressed, p...)
	}

	decompressed, err := s.suite.ZstdDecompress(compressed, int(h.OriginalSize))
	if err != nil {
		return nil, &FetchError{Kind: FetchErrDecompress, Err: err}
	}
	if uint32(len(decompressed)) != h.OriginalSize {
		return nil, &FetchError{Kind: FetchErrIncomplete}
	}
	if h.Version == VersionV2 {
		got := s.suite.SHA3_256(decompressed)
		if got != h.ContentHash {
			return nil, &FetchError{Kind: FetchErrHashMismatch}
		}
	}
	return decompressed, nil
}

// Metadata is the result of FetchMetadata: enough information to decide
// whether a full Fetch is necessary.
type Metadata struct {
	ContentHash  [32]byte
	OriginalSize uint32
	TotalChunks  uint32
	IsV2         bool
}

// FetchMetadata fetches only chunk 0 (spec.md §4.3).
func (s *Store) FetchMetadata(ctx context.Context, baseKey string) (Metadata, error) {
	key := keyderive.DeriveKey(keyderive.ChunkSlot(baseKey, 0))
	raw, err := s.transport.Get(ctx, key)
	if err != nil {
		return Metadata{}, &FetchError{Kind: FetchErrDhtGet, Err: err}
	}
	h, _, err := decodeChunk(raw)
	if err != nil {
		return Metadata{}, err
	}
	n := h.TotalChunks
	if n == 0 {
		n = 1
	}
	return Metadata{
		ContentHash:  h.ContentHash,
		OriginalSize: h.OriginalSize,
		TotalChunks:  n,
		IsV2:         h.Version == VersionV2,
	}, nil
}

// FetchBatch fetches many logical values with a single batched get over
// all chunk-0 keys, falling back to the multi-chunk path for any value
// spanning more than one chunk (spec.md §4.3).
func (s *Store) FetchBatch(ctx context.Context, baseKeys []string) (map[string][]byte, map[string]error) {
	out := make(map[string][]byte, len(baseKeys))
	errs := make(map[string]error)

	chunk0Keys := make([][32]byte, len(baseKeys))
	for i, bk := range baseKeys {
		chunk0Keys[i] = keyderive.DeriveKey(keyderive.ChunkSlot(bk, 0))
	}
	results, err := s.transport.GetBatchSync(ctx, chunk0Keys)
	if err != nil {
		for _, bk := range baseKeys {
			errs[bk] = &FetchError{Kind: FetchErrDhtGet, Err: err}
		}
		return out, errs
	}

	for i, bk := range baseKeys {
		res := results[i]
		if !res.Found {
			errs[bk] = &FetchError{Kind: FetchErrDhtGet, Err: dht.ErrNotFound}
			continue
		}
		h0, payload0, err := decodeChunk(res.Bytes)
		if err != nil {
			errs[bk] = err
			continue
		}
		n := h0.TotalChunks
		if n == 0 {
			n = 1
		}
		if n == 1 {
			v, err := s.finish(h0, [][]byte{payload0})
			if err != nil {
				errs[bk] = err
				continue
			}
			out[bk] = v
			continue
		}
		payloads := make([][]byte, n)
		payloads[0] = payload0
		if err := s.fetchRemaining(ctx, bk, payloads); err != nil {
			errs[bk] = err
			continue
		}
		v, err := s.finish(h0, payloads)
		if err != nil {
			errs[bk] = err
			continue
		}
		out[bk] = v
	}
	return out, errs
}

// Delete overwrites chunks with a short-TTL tombstone (spec.md §4.3). If
// knownN is 0, the chunk count is discovered from chunk 0.
func (s *Store) Delete(ctx context.Context, baseKey string, knownN uint32) error {
	n := knownN
	if n == 0 {
		meta, err := s.FetchMetadata(ctx, baseKey)
		if err != nil {
			n = 1
		} else {
			n = meta.TotalChunks
		}
	}
	valueID := s.transport.OwnerValueID()
	tombstone := encodeChunk(header{Version: VersionV1, TotalChunks: 0, ChunkIndex: 0}, []byte{0})
	for i := uint32(0); i < n; i++ {
		key := keyderive.DeriveKey(keyderive.ChunkSlot(baseKey, i))
		if err := s.transport.PutSigned(ctx, key, tombstone, valueID, 60); err != nil {
			return &PublishError{Kind: PublishErrDhtPut, Err: err}
		}
	}
	return nil
}
