package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/pbkdf2"

	"github.com/b4ae/b4ae/pkg/crypto/aead"
	"github.com/b4ae/b4ae/pkg/crypto/zeroize"
)

// Keystore format parameters
const (
	KeystoreVersion   = "1.0"
	keystoreKDF       = "pbkdf2-hmac-sha256"
	keystoreCipher    = "aes-256-gcm"
	DefaultIterations = 100000
	saltSize          = 32
	// MinPassphraseLength is the minimum accepted passphrase length
	MinPassphraseLength = 12
)

var (
	// ErrPassphraseTooShort indicates a passphrase below the minimum length
	ErrPassphraseTooShort = errors.New("identity: passphrase must be at least 12 characters")
	// ErrInvalidKeystore indicates a corrupted or malformed keystore file
	ErrInvalidKeystore = errors.New("identity: invalid keystore format")
	// ErrWrongPassphrase indicates the passphrase does not decrypt the keystore
	ErrWrongPassphrase = errors.New("identity: wrong passphrase or corrupted keystore")
)

// keystoreFile is the JSON structure saved to disk. The GCM tag travels
// inside the ciphertext.
type keystoreFile struct {
	Version    string    `json:"version"`
	KDF        string    `json:"kdf"`
	KDFParams  kdfParams `json:"kdf_params"`
	Cipher     string    `json:"cipher"`
	Ciphertext string    `json:"ciphertext"` // base64
	Nonce      string    `json:"nonce"`      // base64, 12 bytes
}

type kdfParams struct {
	Iterations int    `json:"iterations"`
	Salt       string `json:"salt"` // base64, 32 bytes
}

// SaveKeystore encrypts a private identity under a passphrase and writes it
// to path with 0600 permissions. Salt and nonce are fresh per save; the
// passphrase never touches disk.
func SaveKeystore(id *PrivateIdentity, passphrase, path string) error {
	if len(passphrase) < MinPassphraseLength {
		return ErrPassphraseTooShort
	}
	if id == nil {
		return fmt.Errorf("%w: nil identity", ErrInvalidKeystore)
	}

	salt, err := aead.RandomBytes(saltSize)
	if err != nil {
		return err
	}
	nonce, err := aead.RandomBytes(aead.NonceSize)
	if err != nil {
		return err
	}

	key := pbkdf2.Key([]byte(passphrase), salt, DefaultIterations, aead.KeySize, sha256.New)
	defer zeroize.Bytes(key)

	plaintext := id.Export()
	defer zeroize.Bytes(plaintext)

	ciphertext, err := aead.Seal(key, nonce, nil, plaintext)
	if err != nil {
		return fmt.Errorf("identity: keystore encryption failed: %w", err)
	}

	file := keystoreFile{
		Version: KeystoreVersion,
		KDF:     keystoreKDF,
		KDFParams: kdfParams{
			Iterations: DefaultIterations,
			Salt:       base64.StdEncoding.EncodeToString(salt),
		},
		Cipher:     keystoreCipher,
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: failed to marshal keystore: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("identity: failed to write keystore: %w", err)
	}

	return nil
}

// LoadKeystore decrypts a keystore file back into a private identity.
func LoadKeystore(path, passphrase string) (*PrivateIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: failed to read keystore: %w", err)
	}

	var file keystoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeystore, err)
	}

	if file.Version != KeystoreVersion {
		return nil, fmt.Errorf("%w: version %q", ErrInvalidKeystore, file.Version)
	}
	if file.KDF != keystoreKDF || file.Cipher != keystoreCipher {
		return nil, fmt.Errorf("%w: unsupported kdf or cipher", ErrInvalidKeystore)
	}
	if file.KDFParams.Iterations < 10000 {
		return nil, fmt.Errorf("%w: iteration count too low", ErrInvalidKeystore)
	}

	salt, err := base64.StdEncoding.DecodeString(file.KDFParams.Salt)
	if err != nil || len(salt) != saltSize {
		return nil, fmt.Errorf("%w: bad salt", ErrInvalidKeystore)
	}
	nonce, err := base64.StdEncoding.DecodeString(file.Nonce)
	if err != nil || len(nonce) != aead.NonceSize {
		return nil, fmt.Errorf("%w: bad nonce", ErrInvalidKeystore)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(file.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrInvalidKeystore)
	}

	key := pbkdf2.Key([]byte(passphrase), salt, file.KDFParams.Iterations, aead.KeySize, sha256.New)
	defer zeroize.Bytes(key)

	plaintext, err := aead.Open(key, nonce, nil, ciphertext)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	defer zeroize.Bytes(plaintext)

	return Import(plaintext)
}
