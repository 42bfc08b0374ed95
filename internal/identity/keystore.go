package identity

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/scrypt"
)

// ErrWrongPassphrase is returned by Load when the KEK derived from the
// supplied passphrase fails the keystore's integrity check.
var ErrWrongPassphrase = errors.New("identity: wrong passphrase or corrupt keystore")

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// keystoreV1 is the on-disk, passphrase-wrapped encoding of a Keypair.
// Only the secret halves are wrapped; the public keys and fingerprint
// are stored in the clear since they carry no confidentiality
// requirement. Load detects a wrong passphrase through the AES-KW
// integrity check on unwrap.
type keystoreV1 struct {
	Version     string `json:"version"` // "dna-keystore-v1"
	Fingerprint string `json:"fingerprint"`
	SigPublic   string `json:"sig_public_hex"`
	KEMPublic   string `json:"kem_public_hex"`
	SaltHex     string `json:"scrypt_salt_hex"`
	WrapAlg     string `json:"wrap_alg"` // "AES-256-KW"
	WrappedSig  string `json:"wrapped_sig_secret_hex"`
	WrappedKEM  string `json:"wrapped_kem_secret_hex"`
}

func deriveKEK(passphrase string, salt []byte) ([32]byte, error) {
	var kek [32]byte
	raw, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return kek, err
	}
	copy(kek[:], raw)
	return kek, nil
}

// Save wraps kp's secret keys under a passphrase-derived KEK and writes
// the result to path, replacing any existing file there atomically.
func Save(path string, passphrase string, kp Keypair) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	kek, err := deriveKEK(passphrase, salt)
	if err != nil {
		return err
	}

	wrappedSig, err := aesKeyWrap(kek[:], kp.SigSecret)
	if err != nil {
		return fmt.Errorf("identity: wrap sig secret: %w", err)
	}
	wrappedKEM, err := aesKeyWrap(kek[:], kp.KEMSecret)
	if err != nil {
		return fmt.Errorf("identity: wrap kem secret: %w", err)
	}

	ks := keystoreV1{
		Version:     "dna-keystore-v1",
		Fingerprint: kp.Fingerprint,
		SigPublic:   hex.EncodeToString(kp.SigPublic),
		KEMPublic:   hex.EncodeToString(kp.KEMPublic),
		SaltHex:     hex.EncodeToString(salt),
		WrapAlg:     "AES-256-KW",
		WrappedSig:  hex.EncodeToString(wrappedSig),
		WrappedKEM:  hex.EncodeToString(wrappedKEM),
	}
	body, err := json.MarshalIndent(ks, "", "  ")
	if err != nil {
		return err
	}
	body = append(body, '\n')

	return writeFileAtomic(path, body, 0o600)
}

// Load reads the keystore at path and unwraps its secret keys using
// the KEK derived from passphrase. It returns ErrWrongPassphrase if
// the passphrase does not match (rather than a generic AES-KW error)
// so callers can prompt the operator to retry.
func Load(path string, passphrase string) (Keypair, error) {
	raw, err := readFileSafe(path)
	if err != nil {
		return Keypair{}, err
	}
	var ks keystoreV1
	if err := json.Unmarshal(raw, &ks); err != nil {
		return Keypair{}, fmt.Errorf("identity: parse keystore: %w", err)
	}
	if ks.Version != "dna-keystore-v1" {
		return Keypair{}, fmt.Errorf("identity: unsupported keystore version %q", ks.Version)
	}

	salt, err := hex.DecodeString(ks.SaltHex)
	if err != nil {
		return Keypair{}, fmt.Errorf("identity: bad scrypt_salt_hex: %w", err)
	}
	kek, err := deriveKEK(passphrase, salt)
	if err != nil {
		return Keypair{}, err
	}

	wrappedSig, err := hex.DecodeString(ks.WrappedSig)
	if err != nil {
		return Keypair{}, fmt.Errorf("identity: bad wrapped_sig_secret_hex: %w", err)
	}
	wrappedKEM, err := hex.DecodeString(ks.WrappedKEM)
	if err != nil {
		return Keypair{}, fmt.Errorf("identity: bad wrapped_kem_secret_hex: %w", err)
	}

	sigSK, err := aesKeyUnwrap(kek[:], wrappedSig)
	if err != nil {
		return Keypair{}, ErrWrongPassphrase
	}
	kemSK, err := aesKeyUnwrap(kek[:], wrappedKEM)
	if err != nil {
		return Keypair{}, ErrWrongPassphrase
	}

	sigPub, err := hex.DecodeString(ks.SigPublic)
	if err != nil {
		return Keypair{}, fmt.Errorf("identity: bad sig_public_hex: %w", err)
	}
	kemPub, err := hex.DecodeString(ks.KEMPublic)
	if err != nil {
		return Keypair{}, fmt.Errorf("identity: bad kem_public_hex: %w", err)
	}

	return Keypair{
		Fingerprint: ks.Fingerprint,
		SigPublic:   sigPub,
		SigSecret:   sigSK,
		KEMPublic:   kemPub,
		KEMSecret:   kemSK,
	}, nil
}

// LoadOrGenerate loads the keystore at path, or generates a fresh
// identity and persists it there if no keystore exists yet. This is
// the entry point cmd/dna-node uses on startup.
func LoadOrGenerate(path string, passphrase string, generate func() (Keypair, error)) (Keypair, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path, passphrase)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Keypair{}, err
	}

	kp, err := generate()
	if err != nil {
		return Keypair{}, err
	}
	if err := Save(path, passphrase, kp); err != nil {
		return Keypair{}, err
	}
	return kp, nil
}

func readFileSafe(path string) ([]byte, error) {
	dir := filepath.Dir(path)
	name := filepath.Base(path)
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("identity: invalid keystore file name %q", name)
	}
	return fs.ReadFile(os.DirFS(dir), name)
}

func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".identity-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
