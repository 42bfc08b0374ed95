// Package contactreq implements C8: signed contact-request records at a
// recipient-scoped inbox key, with multi-sender accumulation (spec.md
// §4.8).
package contactreq

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"dnamessenger.dev/core/internal/codec"
	"dnamessenger.dev/core/internal/cryptosuite"
)

const (
	reqMagic          = "DNAR"
	reqVersion        = 1
	senderFPFieldLen  = 129
	senderNameLen     = 64
	sigPubKeyFieldLen = 2592
	messageFieldLen   = 256
)

var (
	// ErrExpired is returned when a decoded request's expiry has passed.
	ErrExpired = errors.New("contactreq: request expired")
	// ErrFingerprintMismatch is returned when SHA3-512(pubkey) does not
	// match the embedded sender fingerprint.
	ErrFingerprintMismatch = errors.New("contactreq: fingerprint does not match pubkey")
	// ErrBadSignature is returned when the embedded signature fails to verify.
	ErrBadSignature = errors.New("contactreq: signature verification failed")
)

// Request is a single decoded, verified contact request (spec.md §6.4).
type Request struct {
	Timestamp    uint64
	Expiry       uint64
	SenderFP     string
	SenderName   string
	SigPublicKey []byte
	Message      string
	Signature    []byte
}

// Build serializes and signs a new contact request. senderFP must equal
// hex(SHA3-512(sigPublicKey)); callers are responsible for deriving it
// from the same keypair they sign with.
func Build(suite cryptosuite.Suite, sk []byte, senderFP, senderName string, sigPublicKey []byte, message string, now time.Time, ttlSeconds uint32) ([]byte, error) {
	w := codec.NewWriter(4 + 1 + 8 + 8 + senderFPFieldLen + senderNameLen + sigPubKeyFieldLen + messageFieldLen + 2 + cryptosuite.MaxSignatureBytes)
	if err := w.PutMagicASCII(reqMagic); err != nil {
		return nil, err
	}
	w.PutU8(reqVersion)
	w.PutU64(uint64(now.Unix()))
	w.PutU64(uint64(now.Unix()) + uint64(ttlSeconds))
	if err := w.PutFixedString(senderFP, senderFPFieldLen); err != nil {
		return nil, err
	}
	if err := w.PutFixedString(senderName, senderNameLen); err != nil {
		return nil, err
	}
	// The field holds a 2-byte length prefix followed by the key,
	// zero-padded to sigPubKeyFieldLen, so at most sigPubKeyFieldLen-2
	// (2590) key bytes fit; a longer key, including one of
	// cryptosuite.SigPublicKeyBytes (2592), is rejected as oversize. The
	// 2-byte header lets a shorter development key (see
	// cryptosuite.SoftwareSuite) round-trip exactly instead of relying on
	// trimming trailing zero bytes, which a real key could legitimately
	// end with.
	if len(sigPublicKey) > sigPubKeyFieldLen-2 {
		return nil, codec.Sentinel(codec.ErrOversize)
	}
	field := make([]byte, sigPubKeyFieldLen)
	binary.BigEndian.PutUint16(field[:2], uint16(len(sigPublicKey)))
	copy(field[2:], sigPublicKey)
	w.PutBytes(field)
	if err := w.PutFixedString(message, messageFieldLen); err != nil {
		return nil, err
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

// Decode parses and validates a raw contact request record against the
// invariants in spec.md §4.8/§8 invariant 7: magic, version, expiry,
// fingerprint binding, and signature.
func Decode(suite cryptosuite.Suite, raw []byte, now time.Time) (Request, error) {
	r := codec.NewReader(raw)
	if err := r.MagicASCII(reqMagic); err != nil {
		return Request{}, err
	}
	version, err := r.U8()
	if err != nil {
		return Request{}, err
	}
	if version != reqVersion {
		return Request{}, codec.Sentinel(codec.ErrUnsupportedVersion)
	}
	timestamp, err := r.U64()
	if err != nil {
		return Request{}, err
	}
	expiry, err := r.U64()
	if err != nil {
		return Request{}, err
	}
	senderFP, err := r.FixedString(senderFPFieldLen)
	if err != nil {
		return Request{}, err
	}
	senderName, err := r.FixedString(senderNameLen)
	if err != nil {
		return Request{}, err
	}
	sigPubKeyRaw, err := r.Bytes(sigPubKeyFieldLen)
	if err != nil {
		return Request{}, err
	}
	sigPublicKey, err := unpackSigPublicKey(sigPubKeyRaw)
	if err != nil {
		return Request{}, err
	}
	message, err := r.FixedString(messageFieldLen)
	if err != nil {
		return Request{}, err
	}
	signedEnd := r.Offset()
	sig, err := r.LenPrefixedBytes16(cryptosuite.MaxSignatureBytes)
	if err != nil {
		return Request{}, err
	}

	if expiry <= uint64(now.Unix()) {
		return Request{}, ErrExpired
	}

	got := suite.SHA3_512(sigPublicKey)
	if hex.EncodeToString(got[:]) != senderFP {
		return Request{}, ErrFingerprintMismatch
	}

	signedBytes := raw[:signedEnd]
	if !suite.Verify(sigPublicKey, signedBytes, sig) {
		return Request{}, ErrBadSignature
	}

	return Request{
		Timestamp:    timestamp,
		Expiry:       expiry,
		SenderFP:     senderFP,
		SenderName:   senderName,
		SigPublicKey: sigPublicKey,
		Message:      message,
		Signature:    sig,
	}, nil
}

func unpackSigPublicKey(field []byte) ([]byte, error) {
	if len(field) < 2 {
		return nil, codec.Sentinel(codec.ErrTruncated)
	}
	n := binary.BigEndian.Uint16(field[:2])
	if int(n) > len(field)-2 {
		return nil, codec.Sentinel(codec.ErrOversize)
	}
	out := make([]byte, n)
	copy(out, field[2:2+int(n)])
	return out, nil
}

// ValueID derives the multi-writer accumulation slot from the first 16
// hex characters of the sender fingerprint, replacing a zero result with
// 1 (spec.md §4.8).
func ValueID(senderFP string) uint64 {
	prefix := senderFP
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	v, err := strconv.ParseUint(prefix, 16, 64)
	if err != nil {
		v = 0
	}
	if v == 0 {
		v = 1
	}
	return v
}
