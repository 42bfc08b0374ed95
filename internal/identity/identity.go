// Package identity generates and persists the long-lived keypair that
// names a participant (spec.md §1, §4.1): a signature keypair and a KEM
// keypair, plus the fingerprint derived from the signature public key.
// The private halves never leave the device; keystore.go is the only
// thing allowed to write them to disk, and only in wrapped form.
package identity

import (
	"encoding/hex"

	"dnamessenger.dev/core/internal/cryptosuite"
)

// Keypair is one participant's full identity: both public keys, both
// secret keys, and the fingerprint derived from the signature public
// key (spec.md §4.1: "fingerprint = SHA3-512(signature public key)").
type Keypair struct {
	Fingerprint string
	SigPublic   []byte
	SigSecret   []byte
	KEMPublic   []byte
	KEMSecret   []byte
}

// Fingerprint returns the 128-hex-character identity string for a
// signature public key, independent of any particular Keypair.
func Fingerprint(suite cryptosuite.Suite, sigPublic []byte) string {
	sum := suite.SHA3_512(sigPublic)
	return hex.EncodeToString(sum[:])
}

// Generate produces a fresh identity: a signature keypair and a KEM
// keypair from cryptosuite.GenerateSigKeypair/GenerateKEMKeypair, with
// the fingerprint derived from the signature public key through suite.
func Generate(suite cryptosuite.Suite) (Keypair, error) {
	sigPub, sigSK, err := cryptosuite.GenerateSigKeypair()
	if err != nil {
		return Keypair{}, err
	}
	kemPub, kemSK, err := cryptosuite.GenerateKEMKeypair()
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{
		Fingerprint: Fingerprint(suite, sigPub),
		SigPublic:   sigPub,
		SigSecret:   sigSK,
		KEMPublic:   kemPub,
		KEMSecret:   kemSK,
	}, nil
}
