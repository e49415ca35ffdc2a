package aead

import (
	"bytes"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := RandomBytes(KeySize)
	if err != nil {
		t.Fatalf("RandomBytes() failed: %v", err)
	}
	return key
}

func testNonce(t *testing.T) []byte {
	t.Helper()
	nonce, err := RandomBytes(NonceSize)
	if err != nil {
		t.Fatalf("RandomBytes() failed: %v", err)
	}
	return nonce
}

// TestSealOpenRoundTrip tests AES-256-GCM round-trip with associated data
func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)
	nonce := testNonce(t)
	aad := []byte("record header bytes")
	plaintext := []byte("the quick brown fox jumps over the lazy dog")

	ciphertext, err := Seal(key, nonce, aad, plaintext)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}

	if len(ciphertext) != len(plaintext)+TagSize {
		t.Errorf("Ciphertext size mismatch: expected %d, got %d", len(plaintext)+TagSize, len(ciphertext))
	}

	decrypted, err := Open(key, nonce, aad, ciphertext)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if !bytes.Equal(decrypted, plaintext) {
		t.Error("Decrypted plaintext does not match original")
	}
}

// TestSealOpenEmptyPlaintext tests that an empty plaintext round-trips
func TestSealOpenEmptyPlaintext(t *testing.T) {
	key := testKey(t)
	nonce := testNonce(t)

	ciphertext, err := Seal(key, nonce, nil, nil)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}

	if len(ciphertext) != TagSize {
		t.Errorf("Empty plaintext should produce tag only: got %d bytes", len(ciphertext))
	}

	decrypted, err := Open(key, nonce, nil, ciphertext)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if len(decrypted) != 0 {
		t.Errorf("Expected empty plaintext, got %d bytes", len(decrypted))
	}
}

// TestOpenRejectsTamperedCiphertext tests that any flipped byte fails authentication
func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := testKey(t)
	nonce := testNonce(t)
	aad := []byte("header")
	plaintext := []byte("sensitive payload")

	ciphertext, err := Seal(key, nonce, aad, plaintext)
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}

	for _, pos := range []int{0, len(ciphertext) / 2, len(ciphertext) - 1} {
		tampered := make([]byte, len(ciphertext))
		copy(tampered, ciphertext)
		tampered[pos] ^= 0x01

		if _, err := Open(key, nonce, aad, tampered); !errors.Is(err, ErrAuthFailure) {
			t.Errorf("Open() with byte %d flipped: expected ErrAuthFailure, got %v", pos, err)
		}
	}
}

// TestOpenRejectsMismatchedAAD tests that associated data is authenticated
func TestOpenRejectsMismatchedAAD(t *testing.T) {
	key := testKey(t)
	nonce := testNonce(t)

	ciphertext, err := Seal(key, nonce, []byte("header A"), []byte("payload"))
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}

	if _, err := Open(key, nonce, []byte("header B"), ciphertext); !errors.Is(err, ErrAuthFailure) {
		t.Errorf("Open() with different AAD: expected ErrAuthFailure, got %v", err)
	}
}

// TestOpenRejectsWrongKey tests decryption under a different key fails
func TestOpenRejectsWrongKey(t *testing.T) {
	nonce := testNonce(t)

	ciphertext, err := Seal(testKey(t), nonce, nil, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}

	if _, err := Open(testKey(t), nonce, nil, ciphertext); !errors.Is(err, ErrAuthFailure) {
		t.Errorf("Open() with wrong key: expected ErrAuthFailure, got %v", err)
	}
}

// TestDistinctPlaintextsDistinctCiphertexts tests that distinct inputs never collide
func TestDistinctPlaintextsDistinctCiphertexts(t *testing.T) {
	key := testKey(t)

	ct1, err := Seal(key, testNonce(t), nil, []byte("plaintext one"))
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	ct2, err := Seal(key, testNonce(t), nil, []byte("plaintext two"))
	if err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}

	if bytes.Equal(ct1, ct2) {
		t.Error("Distinct plaintexts under fresh nonces produced equal ciphertexts")
	}
}

// TestSealRejectsBadSizes tests key and nonce size validation
func TestSealRejectsBadSizes(t *testing.T) {
	if _, err := Seal(make([]byte, 16), make([]byte, NonceSize), nil, nil); !errors.Is(err, ErrInvalidKeySize) {
		t.Errorf("Seal() with short key: expected ErrInvalidKeySize, got %v", err)
	}

	if _, err := Seal(make([]byte, KeySize), make([]byte, 8), nil, nil); !errors.Is(err, ErrInvalidNonceSize) {
		t.Errorf("Seal() with short nonce: expected ErrInvalidNonceSize, got %v", err)
	}

	if _, err := Open(make([]byte, KeySize), make([]byte, NonceSize), nil, make([]byte, 4)); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("Open() with short ciphertext: expected ErrInvalidCiphertext, got %v", err)
	}
}

// TestRandomBytes tests CSPRNG output length and basic entropy
func TestRandomBytes(t *testing.T) {
	buf, err := RandomBytes(64)
	if err != nil {
		t.Fatalf("RandomBytes() failed: %v", err)
	}
	if len(buf) != 64 {
		t.Errorf("Expected 64 bytes, got %d", len(buf))
	}

	allZeros := true
	for _, b := range buf {
		if b != 0 {
			allZeros = false
			break
		}
	}
	if allZeros {
		t.Error("Random output is all zeros - likely entropy failure")
	}
}

// TestConstantTimeEqual tests the comparison helper
func TestConstantTimeEqual(t *testing.T) {
	a := []byte{1, 2, 3, 4}
	b := []byte{1, 2, 3, 4}
	c := []byte{1, 2, 3, 5}

	if !ConstantTimeEqual(a, b) {
		t.Error("Equal slices compared unequal")
	}
	if ConstantTimeEqual(a, c) {
		t.Error("Unequal slices compared equal")
	}
	if ConstantTimeEqual(a, a[:3]) {
		t.Error("Different lengths compared equal")
	}
}
