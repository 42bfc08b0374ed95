package group

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"dnamessenger.dev/core/internal/chunkstore"
	"dnamessenger.dev/core/internal/codec"
	"dnamessenger.dev/core/internal/cryptosuite"
	"dnamessenger.dev/core/internal/keyderive"
)

const (
	packetUUIDFieldLen = 37
	packetFPFieldLen   = 129
	packetKEMCtLen    = cryptosuite.KEMCiphertextBytes
	// wrapped_key is AEAD-seal(32-byte GSK) with a 128-bit tag appended
	// (spec.md §6.2), i.e. 48 bytes on the wire. The header-level wire
	// table names a 40-byte field; that predates the 128-bit tag width
	// fixed in §6.2 and is treated as stale, the same way spec.md §9
	// calls out the watermark and dht_permsg fields as abandoned.
	packetWrappedLen  = cryptosuite.SharedSecretBytes + 16
	packetSigTypeLatt = 1

	gskBytes = 32

	packetTTLSeconds = 30 * 24 * 60 * 60
)

var (
	// ErrMemberEntryNotFound is returned by Extract when the caller's
	// fingerprint has no entry in the packet.
	ErrMemberEntryNotFound = errors.New("group: no Initial Key Packet entry for this member")
	// ErrPacketBadSignature is returned when the owner signature over
	// the packet fails to verify.
	ErrPacketBadSignature = errors.New("group: Initial Key Packet signature invalid")
)

type packetMember struct {
	fp      string
	kemCt   []byte
	wrapped []byte
}

// BuildPacket assembles and signs a new Initial Key Packet distributing
// gsk to every fingerprint in members, wrapping it per-member via
// KEM-encapsulate + AEAD-seal (spec.md §4.9 "Initial Key Packet build").
// memberKEMPubKeys must contain one KEM public key per entry in members,
// same order.
func BuildPacket(suite cryptosuite.Suite, ownerSigSK []byte, groupUUID string, gskVersion uint32, members []string, memberKEMPubKeys [][]byte, gsk [gskBytes]byte) ([]byte, error) {
	if len(members) != len(memberKEMPubKeys) {
		return nil, fmt.Errorf("group: members and memberKEMPubKeys length mismatch")
	}
	aad := packetAAD(groupUUID, gskVersion)

	entries := make([]packetMember, 0, len(members))
	for i, fp := range members {
		ct, shared, err := suite.KEMEncapsulate(memberKEMPubKeys[i])
		if err != nil {
			return nil, fmt.Errorf("group: kem encapsulate for %s: %w", fp, err)
		}
		var nonce [12]byte
		wrapped, err := suite.AEADSeal(shared, nonce, aad, gsk[:])
		if err != nil {
			return nil, fmt.Errorf("group: aead seal for %s: %w", fp, err)
		}
		entries = append(entries, packetMember{fp: fp, kemCt: ct, wrapped: wrapped})
	}

	w := codec.NewWriter(packetUUIDFieldLen + 4 + 4 + len(entries)*(packetFPFieldLen+packetKEMCtLen+packetWrappedLen) + 1 + 2 + cryptosuite.MaxSignatureBytes)
	if err := w.PutFixedString(groupUUID, packetUUIDFieldLen); err != nil {
		return nil, err
	}
	w.PutU32(gskVersion)
	w.PutU32(uint32(len(entries)))
	for _, m := range entries {
		if err := w.PutFixedString(m.fp, packetFPFieldLen); err != nil {
			return nil, err
		}
		if len(m.kemCt) > packetKEMCtLen {
			return nil, codec.Sentinel(codec.ErrOversize)
		}
		ctField := make([]byte, packetKEMCtLen)
		copy(ctField, m.kemCt)
		w.PutBytes(ctField)
		if len(m.wrapped) > packetWrappedLen {
			return nil, codec.Sentinel(codec.ErrOversize)
		}
		wrappedField := make([]byte, packetWrappedLen)
		copy(wrappedField, m.wrapped)
		w.PutBytes(wrappedField)
	}
	w.PutU8(packetSigTypeLatt)

	signed := append([]byte(nil), w.Bytes()...)
	sig, err := suite.Sign(ownerSigSK, signed)
	if err != nil {
		return nil, err
	}
	if err := w.PutLenPrefixedBytes16(sig); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func packetAAD(groupUUID string, gskVersion uint32) []byte {
	aad := make([]byte, packetUUIDFieldLen+4)
	copy(aad, groupUUID)
	binary.BigEndian.PutUint32(aad[packetUUIDFieldLen:], gskVersion)
	return aad
}

// ExtractedKey is the result of successfully decoding and opening an
// Initial Key Packet for the caller's own member entry.
type ExtractedKey struct {
	UUID       string
	GSKVersion uint32
	GSK        [gskBytes]byte
}

// ExtractPacket verifies ownerSigPubKey's signature over raw, scans for
// myFP's entry, and recovers the GSK by KEM-decapsulating with myKEMSK
// and AEAD-opening the wrapped key (spec.md §4.9 "Initial Key Packet
// extract").
func ExtractPacket(suite cryptosuite.Suite, raw []byte, ownerSigPubKey []byte, myFP string, myKEMSK []byte) (ExtractedKey, error) {
	r := codec.NewReader(raw)
	groupUUID, err := r.FixedString(packetUUIDFieldLen)
	if err != nil {
		return ExtractedKey{}, err
	}
	gskVersion, err := r.U32()
	if err != nil {
		return ExtractedKey{}, err
	}
	memberCount, err := r.U32()
	if err != nil {
		return ExtractedKey{}, err
	}

	type rawEntry struct {
		fp      string
		kemCt   []byte
		wrapped []byte
	}
	entries := make([]rawEntry, 0, memberCount)
	for i := uint32(0); i < memberCount; i++ {
		fp, err := r.FixedString(packetFPFieldLen)
		if err != nil {
			return ExtractedKey{}, err
		}
		ct, err := r.Bytes(packetKEMCtLen)
		if err != nil {
			return ExtractedKey{}, err
		}
		wrapped, err := r.Bytes(packetWrappedLen)
		if err != nil {
			return ExtractedKey{}, err
		}
		entries = append(entries, rawEntry{fp: fp, kemCt: append([]byte(nil), ct...), wrapped: append([]byte(nil), wrapped...)})
	}

	if _, err := r.U8(); err != nil { // sig_type, not yet algorithm-dispatched
		return ExtractedKey{}, err
	}
	signedEnd := r.Offset()
	sig, err := r.LenPrefixedBytes16(cryptosuite.MaxSignatureBytes)
	if err != nil {
		return ExtractedKey{}, err
	}

	signedBytes := raw[:signedEnd]
	if !suite.Verify(ownerSigPubKey, signedBytes, sig) {
		return ExtractedKey{}, ErrPacketBadSignature
	}

	for _, e := range entries {
		if e.fp != myFP {
			continue
		}
		shared, err := suite.KEMDecapsulate(myKEMSK, e.kemCt)
		if err != nil {
			return ExtractedKey{}, fmt.Errorf("group: kem decapsulate: %w", err)
		}
		var nonce [12]byte
		plain, err := suite.AEADOpen(shared, nonce, packetAAD(groupUUID, gskVersion), e.wrapped)
		if err != nil {
			return ExtractedKey{}, fmt.Errorf("group: aead open: %w", err)
		}
		if len(plain) != gskBytes {
			return ExtractedKey{}, fmt.Errorf("group: unexpected gsk length %d", len(plain))
		}
		var gsk [gskBytes]byte
		copy(gsk[:], plain)
		return ExtractedKey{UUID: groupUUID, GSKVersion: gskVersion, GSK: gsk}, nil
	}
	return ExtractedKey{}, ErrMemberEntryNotFound
}

// PublishPacket stores a built Initial Key Packet at its versioned base
// key via the chunked storage plane (spec.md §4.9 "Serialize; publish
// via C3").
func PublishPacket(ctx context.Context, chunks *chunkstore.Store, groupUUID string, gskVersion uint32, raw []byte) error {
	return chunks.Publish(ctx, keyderive.GroupKeyVersion(groupUUID, gskVersion), raw, packetTTLSeconds)
}

// FetchPacket retrieves the raw Initial Key Packet bytes at a given GSK
// version.
func FetchPacket(ctx context.Context, chunks *chunkstore.Store, groupUUID string, gskVersion uint32) ([]byte, error) {
	return chunks.Fetch(ctx, keyderive.GroupKeyVersion(groupUUID, gskVersion))
}
