// Package mldsa wraps ML-DSA-87 (Dilithium5) digital signatures from NIST
// FIPS 204. ML-DSA provides EUF-CMA security against quantum adversaries.
package mldsa

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode5"
)

// Key and signature sizes for ML-DSA-87.
// Note: circl implements Dilithium Round 3, so the signature size differs
// slightly from final FIPS 204.
const (
	PublicKeySize  = mode5.PublicKeySize  // 2592 bytes
	PrivateKeySize = mode5.PrivateKeySize // 4864 bytes
	SignatureSize  = mode5.SignatureSize  // 4595 bytes
)

var (
	// ErrKeyGenerationFailed indicates keypair generation failed
	ErrKeyGenerationFailed = errors.New("mldsa: key generation failed")
	// ErrInvalidPublicKey indicates the public key has the wrong format or size
	ErrInvalidPublicKey = errors.New("mldsa: invalid public key")
	// ErrInvalidPrivateKey indicates the private key has the wrong format or size
	ErrInvalidPrivateKey = errors.New("mldsa: invalid private key")
)

// KeyPair holds an ML-DSA-87 keypair in packed form.
type KeyPair struct {
	PublicKey  []byte // 2592 bytes
	PrivateKey []byte // 4864 bytes
}

// GenerateKeyPair generates a fresh ML-DSA-87 keypair from system entropy.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := mode5.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGenerationFailed, err)
	}

	pubBytes, err := publicKey.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal public key: %v", ErrKeyGenerationFailed, err)
	}

	privBytes, err := privateKey.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal private key: %v", ErrKeyGenerationFailed, err)
	}

	return &KeyPair{
		PublicKey:  pubBytes,
		PrivateKey: privBytes,
	}, nil
}

// Sign creates an ML-DSA-87 signature over the message.
func Sign(privateKey, message []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPrivateKey, PrivateKeySize, len(privateKey))
	}

	var privKey mode5.PrivateKey
	if err := privKey.UnmarshalBinary(privateKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	signature := make([]byte, SignatureSize)
	mode5.SignTo(&privKey, message, signature)

	return signature, nil
}

// Verify reports whether signature is a valid ML-DSA-87 signature over message.
// Malformed keys or signatures verify as false rather than erroring, so the
// caller has a single rejection path.
func Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != PublicKeySize {
		return false
	}
	if len(signature) != SignatureSize {
		return false
	}

	var pubKey mode5.PublicKey
	if err := pubKey.UnmarshalBinary(publicKey); err != nil {
		return false
	}

	return mode5.Verify(&pubKey, message, signature)
}

// Scheme returns the underlying ML-DSA-87 scheme for size constants and metadata.
func Scheme() sign.Scheme {
	return mode5.Scheme()
}
