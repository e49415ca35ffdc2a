package classical

import (
	"bytes"
	"errors"
	"testing"
)

// TestX25519KeyPairGeneration tests keypair generation and sizes
func TestX25519KeyPairGeneration(t *testing.T) {
	kp, err := GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair() failed: %v", err)
	}

	if len(kp.PublicKey) != X25519PublicKeySize {
		t.Errorf("Public key size mismatch: expected %d, got %d", X25519PublicKeySize, len(kp.PublicKey))
	}
	if len(kp.PrivateKey) != X25519PrivateKeySize {
		t.Errorf("Private key size mismatch: expected %d, got %d", X25519PrivateKeySize, len(kp.PrivateKey))
	}
}

// TestX25519ExchangeAgreement tests that both sides derive the same secret
func TestX25519ExchangeAgreement(t *testing.T) {
	alice, err := GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair() failed: %v", err)
	}
	bob, err := GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair() failed: %v", err)
	}

	s1, err := X25519Exchange(alice.PrivateKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("X25519Exchange() failed: %v", err)
	}
	s2, err := X25519Exchange(bob.PrivateKey, alice.PublicKey)
	if err != nil {
		t.Fatalf("X25519Exchange() failed: %v", err)
	}

	if len(s1) != X25519SharedSize {
		t.Errorf("Shared secret size mismatch: %d", len(s1))
	}
	if !bytes.Equal(s1, s2) {
		t.Error("Shared secrets do not agree")
	}
}

// TestX25519ExchangeRejectsBadSizes tests input validation
func TestX25519ExchangeRejectsBadSizes(t *testing.T) {
	kp, err := GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateX25519KeyPair() failed: %v", err)
	}

	if _, err := X25519Exchange(make([]byte, 16), kp.PublicKey); !errors.Is(err, ErrExchangeFailed) {
		t.Errorf("Expected ErrExchangeFailed for short private key, got %v", err)
	}
	if _, err := X25519Exchange(kp.PrivateKey, make([]byte, 16)); !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("Expected ErrInvalidPublicKey for short public key, got %v", err)
	}
}

// TestX25519DistinctKeypairsDistinctSecrets tests that secrets differ per peer
func TestX25519DistinctKeypairsDistinctSecrets(t *testing.T) {
	alice, _ := GenerateX25519KeyPair()
	bob, _ := GenerateX25519KeyPair()
	carol, _ := GenerateX25519KeyPair()

	s1, err := X25519Exchange(alice.PrivateKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("X25519Exchange() failed: %v", err)
	}
	s2, err := X25519Exchange(alice.PrivateKey, carol.PublicKey)
	if err != nil {
		t.Fatalf("X25519Exchange() failed: %v", err)
	}

	if bytes.Equal(s1, s2) {
		t.Error("Different peers produced the same shared secret")
	}
}
