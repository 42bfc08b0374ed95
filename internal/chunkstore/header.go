package chunkstore

import (
	"hash/crc32"

	"dnamessenger.dev/core/internal/codec"
)

const (
	chunkMagic = "DNAC"

	// VersionV1 omits the content hash. VersionV2 adds a chunk-0-only
	// SHA3-256 over the uncompressed logical value (spec.md §3).
	VersionV1 = uint8(1)
	VersionV2 = uint8(2)

	// MaxChunkPayload is the maximum compressed payload bytes per chunk.
	MaxChunkPayload = 44_975
	// MaxChunks is the maximum number of chunks for one logical value.
	MaxChunks = 10_000
	// MaxOriginalSize bounds the decompressed logical value Fetch will
	// accept (spec.md §4.3 step 2).
	MaxOriginalSize = 100 * 1024 * 1024
)

// header is the on-wire chunk record described in spec.md §3.
type header struct {
	Version       uint8
	TotalChunks   uint32
	ChunkIndex    uint32
	ChunkDataSize uint32
	OriginalSize  uint32
	CRC32         uint32
	ContentHash   [32]byte // only meaningful for v2, chunk 0
}

func (h *header) hasContentHash() bool {
	return h.Version == VersionV2 && h.ChunkIndex == 0
}

// encodeChunk serializes one chunk record: header + payload.
func encodeChunk(h header, payload []byte) []byte {
	w := codec.NewWriter(24 + len(payload) + 32)
	_ = w.PutMagicASCII(chunkMagic)
	w.PutU8(h.Version)
	w.PutU32(h.TotalChunks)
	w.PutU32(h.ChunkIndex)
	w.PutU32(uint32(len(payload)))
	w.PutU32(h.OriginalSize)
	w.PutU32(crc32.ChecksumIEEE(payload))
	if h.hasContentHash() {
		w.PutBytes(h.ContentHash[:])
	}
	w.PutBytes(payload)
	return w.Bytes()
}

// decodeChunk parses and validates a chunk record's header (magic,
// version, CRC32) and returns the header plus the payload slice.
func decodeChunk(raw []byte) (header, []byte, error) {
	r := codec.NewReader(raw)
	if err := r.MagicASCII(chunkMagic); err != nil {
		return header{}, nil, &FetchError{Kind: FetchErrInvalidFormat, Err: err}
	}
	ver, err := r.U8()
	if err != nil {
		return header{}, nil, &FetchError{Kind: FetchErrInvalidFormat, Err: err}
	}
	if ver != VersionV1 && ver != VersionV2 {
		return header{}, nil, &FetchError{Kind: FetchErrInvalidFormat, Err: codec.Sentinel(codec.ErrUnsupportedVersion)}
	}
	total, err := r.U32()
	if err != nil {
		return header{}, nil, &FetchError{Kind: FetchErrInvalidFormat, Err: err}
	}
	idx, err := r.U32()
	if err != nil {
		return header{}, nil, &FetchError{Kind: FetchErrInvalidFormat, Err: err}
	}
	dataSize, err := r.U32()
	if err != nil {
		return header{}, nil, &FetchError{Kind: FetchErrInvalidFormat, Err: err}
	}
	origSize, err := r.U32()
	if err != nil {
		return header{}, nil, &FetchError{Kind: FetchErrInvalidFormat, Err: err}
	}
	crc, err := r.U32()
	if err != nil {
		return header{}, nil, &FetchError{Kind: FetchErrInvalidFormat, Err: err}
	}
	h := header{Version: ver, TotalChunks: total, ChunkIndex: idx, ChunkDataSize: dataSize, OriginalSize: origSize, CRC32: crc}
	if h.hasContentHash() {
		ch, err := r.Bytes(32)
		if err != nil {
			return header{}, nil, &FetchError{Kind: FetchErrInvalidFormat, Err: err}
		}
		copy(h.ContentHash[:], ch)
	}
	payload, err := r.Bytes(int(dataSize))
	if err != nil {
		return header{}, nil, &FetchError{Kind: FetchErrInvalidFormat, Err: err}
	}
	if crc32.ChecksumIEEE(payload) != crc {
		return header{}, nil, &FetchError{Kind: FetchErrChecksum, Err: nil}
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return h, out, nil
}
