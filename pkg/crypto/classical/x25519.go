// Package classical provides the classical ECDH half of the hybrid key
// exchange using X25519 (RFC 7748).
package classical

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
)

// X25519 key and shared-secret sizes
const (
	X25519PublicKeySize  = 32 // bytes
	X25519PrivateKeySize = 32 // bytes
	X25519SharedSize     = 32 // bytes
)

var (
	// ErrInvalidPublicKey indicates the public key format is invalid
	ErrInvalidPublicKey = errors.New("classical: invalid public key")
	// ErrKeyGenerationFailed indicates key generation failed
	ErrKeyGenerationFailed = errors.New("classical: key generation failed")
	// ErrExchangeFailed indicates the ECDH operation failed
	ErrExchangeFailed = errors.New("classical: ECDH exchange failed")
)

// X25519KeyPair holds an X25519 ECDH keypair.
type X25519KeyPair struct {
	PublicKey  []byte // 32 bytes
	PrivateKey []byte // 32 bytes
}

// GenerateX25519KeyPair generates a fresh X25519 keypair from system entropy.
func GenerateX25519KeyPair() (*X25519KeyPair, error) {
	privKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGenerationFailed, err)
	}

	return &X25519KeyPair{
		PublicKey:  privKey.PublicKey().Bytes(),
		PrivateKey: privKey.Bytes(),
	}, nil
}

// X25519Exchange computes the 32-byte shared secret between a local private
// key and a remote public key. The operation is constant-time per RFC 7748.
func X25519Exchange(privateKey, publicKey []byte) ([]byte, error) {
	if len(privateKey) != X25519PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d",
			ErrExchangeFailed, X25519PrivateKeySize, len(privateKey))
	}

	if len(publicKey) != X25519PublicKeySize {
		return nil, fmt.Errorf("%w: public key must be %d bytes, got %d",
			ErrInvalidPublicKey, X25519PublicKeySize, len(publicKey))
	}

	priv, err := ecdh.X25519().NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %v", ErrExchangeFailed, err)
	}

	pub, err := ecdh.X25519().NewPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse public key: %v", ErrInvalidPublicKey, err)
	}

	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	return secret, nil
}
