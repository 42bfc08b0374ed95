// Package dmoutbox implements C6: per-(sender,recipient,day) direct
// message buckets with a bounded write-through cache, idempotent queueing,
// and parallel multi-contact sync (spec.md §4.6). The bucket-list codec
// and bounded-cache shape generalize the chunked transport patterns in
// internal/chunkstore to a mutable, append-bounded list of records.
package dmoutbox

import (
	"dnamessenger.dev/core/internal/codec"
)

const (
	dmMagic        = "DNA "
	dmVersionV1    = 1
	dmVersionV2    = 2
	maxCiphertext  = 64 * 1024
	maxFingerprint = 256
)

// Message is one direct message within a day bucket (spec.md §6.4
// "DM-bucket value").
type Message struct {
	SeqNum     uint64
	Timestamp  uint64
	Expiry     uint64
	Sender     string
	Recipient  string
	Ciphertext []byte
}

// encodeBucket serializes a day bucket's message list, always in the v2
// wire shape (spec.md §6.4).
func encodeBucket(messages []Message) []byte {
	w := codec.NewWriter(64 + len(messages)*96)
	w.PutU32(uint32(len(messages)))
	for _, m := range messages {
		w.PutMagicASCII(dmMagic)
		w.PutU8(dmVersionV2)
		w.PutU64(m.SeqNum)
		w.PutU64(m.Timestamp)
		w.PutU64(m.Expiry)
		w.PutU16(uint16(len(m.Sender)))
		w.PutU16(uint16(len(m.Recipient)))
		w.PutU32(uint32(len(m.Ciphertext)))
		w.PutBytes([]byte(m.Sender))
		w.PutBytes([]byte(m.Recipient))
		w.PutBytes(m.Ciphertext)
	}
	return w.Bytes()
}

// decodeBucket deserializes a day bucket's message list. v1 records
// (legacy, no seq_num) decode with SeqNum left at 0 (spec.md §6.4 "v1
// (legacy) omits seq_num").
func decodeBucket(raw []byte) ([]Message, error) {
	r := codec.NewReader(raw)
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, count)
	for i := uint32(0); i < count; i++ {
		if err := r.MagicASCII(dmMagic); err != nil {
			return nil, err
		}
		version, err := r.U8()
		if err != nil {
			return nil, err
		}
		var m Message
		switch version {
		case dmVersionV2:
			m.SeqNum, err = r.U64()
			if err != nil {
				return nil, err
			}
		case dmVersionV1:
			// no seq_num field
		default:
			return nil, codec.Sentinel(codec.ErrUnsupportedVersion)
		}
		if m.Timestamp, err = r.U64(); err != nil {
			return nil, err
		}
		if m.Expiry, err = r.U64(); err != nil {
			return nil, err
		}
		senderLen, err := r.U16()
		if err != nil {
			return nil, err
		}
		recipientLen, err := r.U16()
		if err != nil {
			return nil, err
		}
		ctLen, err := r.U32()
		if err != nil {
			return nil, err
		}
		if int(senderLen) > maxFingerprint || int(recipientLen) > maxFingerprint || ctLen > maxCiphertext {
			return nil, codec.Sentinel(codec.ErrOversize)
		}
		senderBytes, err := r.Bytes(int(senderLen))
		if err != nil {
			return nil, err
		}
		m.Sender = string(senderBytes)
		recipientBytes, err := r.Bytes(int(recipientLen))
		if err != nil {
			return nil, err
		}
		m.Recipient = string(recipientBytes)
		ct, err := r.Bytes(int(ctLen))
		if err != nil {
			return nil, err
		}
		m.Ciphertext = append([]byte(nil), ct...)
		out = append(out, m)
	}
	return out, nil
}
