package cryptosuite

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/sha3"
)

// SoftwareSuite is a development-only Suite implementation. It does NOT
// claim post-quantum security: Sign/Verify and the KEM are backed by
// classical Ed25519/X25519 primitives sized to exercise the storage plane's
// length-handling logic, not to meet the lattice-based contracts in
// spec.md §6.2. It exists only to unblock core/tests, exactly as the
// teacher's DevStdCryptoProvider unblocks early tooling ahead of a real
// wolfCrypt/liboqs backend (crypto/devstd.go).
type SoftwareSuite struct{}

var _ Suite = SoftwareSuite{}

func (SoftwareSuite) Sign(sk []byte, msg []byte) ([]byte, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("cryptosuite: dev sign key must be %d bytes", ed25519.PrivateKeySize)
	}
	return ed25519.Sign(ed25519.PrivateKey(sk), msg), nil
}

func (SoftwareSuite) Verify(pk []byte, msg []byte, sig []byte) bool {
	if len(pk) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk), msg, sig)
}

func (SoftwareSuite) KEMEncapsulate(pk []byte) ([]byte, [32]byte, error) {
	if len(pk) != 32 {
		return nil, [32]byte{}, fmt.Errorf("cryptosuite: dev KEM pubkey must be 32 bytes")
	}
	ephSK := make([]byte, 32)
	if _, err := rand.Read(ephSK); err != nil {
		return nil, [32]byte{}, err
	}
	ephPK, err := curve25519.X25519(ephSK, curve25519.Basepoint)
	if err != nil {
		return nil, [32]byte{}, err
	}
	raw, err := curve25519.X25519(ephSK, pk)
	if err != nil {
		return nil, [32]byte{}, err
	}
	var ss [32]byte
	copy(ss[:], sha3.Sum256(raw)[:])
	return ephPK, ss, nil
}

func (SoftwareSuite) KEMDecapsulate(sk []byte, ciphertext []byte) ([32]byte, error) {
	// A fixed-width wire field (the Initial Key Packet's kem_ct) carries
	// the 32-byte dev ciphertext zero-padded; accept that padding.
	if len(ciphertext) > 32 && len(bytes.Trim(ciphertext[32:], "\x00")) == 0 {
		ciphertext = ciphertext[:32]
	}
	if len(sk) != 32 || len(ciphertext) != 32 {
		return [32]byte{}, fmt.Errorf("cryptosuite: dev KEM sk/ciphertext must be 32 bytes")
	}
	raw, err := curve25519.X25519(sk, ciphertext)
	if err != nil {
		return [32]byte{}, err
	}
	var ss [32]byte
	copy(ss[:], sha3.Sum256(raw)[:])
	return ss, nil
}

func (SoftwareSuite) SHA3_256(msg []byte) [32]byte {
	return sha3.Sum256(msg)
}

func (SoftwareSuite) SHA3_512(msg []byte) [64]byte {
	return sha3.Sum512(msg)
}

func (SoftwareSuite) AEADSeal(key [32]byte, nonce [12]byte, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

func (SoftwareSuite) AEADOpen(key [32]byte, nonce [12]byte, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrMacMismatch
	}
	return pt, nil
}

func (SoftwareSuite) ZstdCompress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (SoftwareSuite) ZstdDecompress(data []byte, expectedSize int) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out := make([]byte, 0, expectedSize)
	buf := make([]byte, 32*1024)
	for {
		n, err := dec.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (SoftwareSuite) RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// GenerateSigKeypair is a test/tooling helper producing an Ed25519
// keypair sized for SoftwareSuite.Sign/Verify.
func GenerateSigKeypair() (pub, priv []byte, err error) {
	p, s, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return p, s, nil
}

// GenerateKEMKeypair is a test/tooling helper producing an X25519
// keypair sized for SoftwareSuite.KEMEncapsulate/KEMDecapsulate.
func GenerateKEMKeypair() (pub, priv []byte, err error) {
	sk := make([]byte, 32)
	if _, err := rand.Read(sk); err != nil {
		return nil, nil, err
	}
	pk, err := curve25519.X25519(sk, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return pk, sk, nil
}
