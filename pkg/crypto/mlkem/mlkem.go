// Package mlkem wraps the ML-KEM-1024 (Kyber1024) key-encapsulation mechanism
// from NIST FIPS 203 behind fixed-size, typed operations.
package mlkem

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber1024"
)

// Key and ciphertext sizes for ML-KEM-1024
const (
	PublicKeySize  = 1568 // bytes
	PrivateKeySize = 3168 // bytes
	CiphertextSize = 1568 // bytes
	SharedKeySize  = 32   // bytes
)

var (
	// ErrInvalidKey indicates a public or private key has the wrong format or size
	ErrInvalidKey = errors.New("mlkem: invalid key")
	// ErrInvalidCiphertext indicates the ciphertext format is invalid or corrupted
	ErrInvalidCiphertext = errors.New("mlkem: invalid ciphertext")
	// ErrKeyGenerationFailed indicates keypair generation failed
	ErrKeyGenerationFailed = errors.New("mlkem: key generation failed")
	// ErrDecapsulationFailed indicates the decapsulation operation failed
	ErrDecapsulationFailed = errors.New("mlkem: decapsulation failed")
)

// KeyPair holds an ML-KEM-1024 keypair in packed form.
type KeyPair struct {
	PublicKey  []byte // 1568 bytes
	PrivateKey []byte // 3168 bytes
}

// GenerateKeyPair generates a fresh ML-KEM-1024 keypair from system entropy.
func GenerateKeyPair() (*KeyPair, error) {
	scheme := kyber1024.Scheme()

	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGenerationFailed, err)
	}

	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal public key: %v", ErrKeyGenerationFailed, err)
	}

	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal private key: %v", ErrKeyGenerationFailed, err)
	}

	return &KeyPair{
		PublicKey:  pkBytes,
		PrivateKey: skBytes,
	}, nil
}

// Encapsulate produces a ciphertext and 32-byte shared secret under the given
// public key. The operation is IND-CCA2 secure per NIST FIPS 203.
func Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error) {
	scheme := kyber1024.Scheme()

	if len(publicKey) != scheme.PublicKeySize() {
		return nil, nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidKey, scheme.PublicKeySize(), len(publicKey))
	}

	pk, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to unmarshal public key: %v", ErrInvalidKey, err)
	}

	ct, ss, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("mlkem: encapsulation failed: %w", err)
	}

	return ct, ss, nil
}

// Decapsulate recovers the 32-byte shared secret from a ciphertext using the
// private key. circl performs the re-encapsulation comparison in constant time.
func Decapsulate(privateKey, ciphertext []byte) ([]byte, error) {
	scheme := kyber1024.Scheme()

	if len(privateKey) != scheme.PrivateKeySize() {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d",
			ErrInvalidKey, scheme.PrivateKeySize(), len(privateKey))
	}

	if len(ciphertext) != scheme.CiphertextSize() {
		return nil, fmt.Errorf("%w: ciphertext must be %d bytes, got %d",
			ErrInvalidCiphertext, scheme.CiphertextSize(), len(ciphertext))
	}

	sk, err := scheme.UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal private key: %v", ErrInvalidKey, err)
	}

	ss, err := scheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecapsulationFailed, err)
	}

	return ss, nil
}

// Scheme returns the underlying ML-KEM-1024 scheme for size constants and metadata.
func Scheme() kem.Scheme {
	return kyber1024.Scheme()
}
