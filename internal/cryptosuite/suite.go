// Package cryptosuite defines the narrow cryptographic contract consumed
// by the messenger core (spec.md §6.2) and the development-only software
// implementation used to exercise it in tests. Production deployments are
// expected to supply a Suite backed by the real lattice-based signature
// scheme and KEM; those primitives are explicitly out of scope for this
// module (spec.md §1).
package cryptosuite

import "errors"

// ErrMacMismatch is returned by AEADOpen when the tag does not verify.
var ErrMacMismatch = errors.New("cryptosuite: AEAD mac mismatch")

// Suite is the narrow interface the storage plane (C3–C10) consumes. It
// mirrors the shape of the teacher's CryptoProvider interface
// (crypto/provider.go): a handful of opaque, verifiable operations with no
// algorithm-specific state leaking into callers.
type Suite interface {
	// Sign produces a signature over msg using sk. Signature length is
	// bounded by spec.md §6.2 (<= 4627 bytes for the lattice scheme).
	Sign(sk []byte, msg []byte) ([]byte, error)
	// Verify reports whether sig is a valid signature over msg under pk.
	Verify(pk []byte, msg []byte, sig []byte) bool

	// KEMEncapsulate produces a ciphertext and 32-byte shared secret for
	// the recipient's KEM public key.
	KEMEncapsulate(pk []byte) (ciphertext []byte, sharedSecret [32]byte, err error)
	// KEMDecapsulate recovers the shared secret from a ciphertext using
	// the recipient's KEM secret key.
	KEMDecapsulate(sk []byte, ciphertext []byte) (sharedSecret [32]byte, err error)

	SHA3_256(msg []byte) [32]byte
	SHA3_512(msg []byte) [64]byte

	// AEADSeal/AEADOpen use a 96-bit nonce and a 128-bit tag appended to
	// the ciphertext (spec.md §6.2).
	AEADSeal(key [32]byte, nonce [12]byte, aad, plaintext []byte) ([]byte, error)
	AEADOpen(key [32]byte, nonce [12]byte, aad, ciphertext []byte) ([]byte, error)

	ZstdCompress(data []byte) ([]byte, error)
	ZstdDecompress(data []byte, expectedSize int) ([]byte, error)

	RandBytes(n int) ([]byte, error)
}

// MaxSignatureBytes and friends document the external primitive
// contracts from spec.md §1/§6.2; callers use them to size buffers and
// reject obviously malformed records before ever touching crypto.
const (
	MaxSignatureBytes  = 4627
	SigPublicKeyBytes  = 2592
	KEMCiphertextBytes = 1568
	SharedSecretBytes  = 32
)
