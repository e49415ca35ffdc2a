package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func sampleInit() *Init {
	m := &Init{
		Version:       ProtocolVersion,
		CipherSuite:   SuiteHybrid,
		SigPublicKey:  bytes.Repeat([]byte{0x01}, 2592),
		ECDHPublicKey: bytes.Repeat([]byte{0x02}, 32),
		KEMPublicKey:  bytes.Repeat([]byte{0x03}, 1568),
		Timestamp:     1700000000,
		Signature:     bytes.Repeat([]byte{0x04}, 4595),
	}
	copy(m.Nonce[:], bytes.Repeat([]byte{0x05}, HandshakeNonceSize))
	return m
}

// TestInitRoundTrip tests Init encode/decode
func TestInitRoundTrip(t *testing.T) {
	m := sampleInit()

	decoded, err := DecodeInit(m.Encode())
	if err != nil {
		t.Fatalf("DecodeInit() failed: %v", err)
	}

	if decoded.Version != m.Version || decoded.CipherSuite != m.CipherSuite {
		t.Error("Version or suite mismatch")
	}
	if !bytes.Equal(decoded.SigPublicKey, m.SigPublicKey) {
		t.Error("Signature public key mismatch")
	}
	if !bytes.Equal(decoded.ECDHPublicKey, m.ECDHPublicKey) {
		t.Error("ECDH public key mismatch")
	}
	if !bytes.Equal(decoded.KEMPublicKey, m.KEMPublicKey) {
		t.Error("KEM public key mismatch")
	}
	if decoded.Nonce != m.Nonce {
		t.Error("Nonce mismatch")
	}
	if decoded.Timestamp != m.Timestamp {
		t.Error("Timestamp mismatch")
	}
	if !bytes.Equal(decoded.Signature, m.Signature) {
		t.Error("Signature mismatch")
	}
}

// TestInitSigningInputIsCanonical tests that the signed input reconstructs
// identically from a decoded message
func TestInitSigningInputIsCanonical(t *testing.T) {
	m := sampleInit()

	decoded, err := DecodeInit(m.Encode())
	if err != nil {
		t.Fatalf("DecodeInit() failed: %v", err)
	}

	if !bytes.Equal(decoded.SigningInput(), m.SigningInput()) {
		t.Error("SigningInput differs after a decode round-trip")
	}
}

// TestInitEmptyKEMKey tests the classical-suite encoding with no KEM field
func TestInitEmptyKEMKey(t *testing.T) {
	m := sampleInit()
	m.CipherSuite = SuiteAES256GCM
	m.KEMPublicKey = nil

	decoded, err := DecodeInit(m.Encode())
	if err != nil {
		t.Fatalf("DecodeInit() failed: %v", err)
	}
	if len(decoded.KEMPublicKey) != 0 {
		t.Errorf("Expected empty KEM key, got %d bytes", len(decoded.KEMPublicKey))
	}
}

// TestDecodeInitRejectsTruncation tests truncation at several points
func TestDecodeInitRejectsTruncation(t *testing.T) {
	encoded := sampleInit().Encode()

	for _, cut := range []int{0, 1, 10, 100, len(encoded) - 1} {
		if _, err := DecodeInit(encoded[:cut]); !errors.Is(err, ErrInvalidMessage) {
			t.Errorf("DecodeInit() of %d bytes: expected ErrInvalidMessage, got %v", cut, err)
		}
	}
}

// TestDecodeInitRejectsTrailingBytes tests trailing garbage rejection
func TestDecodeInitRejectsTrailingBytes(t *testing.T) {
	encoded := append(sampleInit().Encode(), 0xFF)

	if _, err := DecodeInit(encoded); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Expected ErrInvalidMessage, got %v", err)
	}
}

func sampleResponse() *Response {
	m := &Response{
		SigPublicKey:  bytes.Repeat([]byte{0x11}, 2592),
		KEMCiphertext: bytes.Repeat([]byte{0x12}, 1568),
		ECDHPublicKey: bytes.Repeat([]byte{0x13}, 32),
		Timestamp:     1700000001,
		Signature:     bytes.Repeat([]byte{0x14}, 4595),
	}
	copy(m.Nonce[:], bytes.Repeat([]byte{0x15}, HandshakeNonceSize))
	return m
}

// TestResponseRoundTrip tests Response encode/decode
func TestResponseRoundTrip(t *testing.T) {
	m := sampleResponse()

	decoded, err := DecodeResponse(m.Encode())
	if err != nil {
		t.Fatalf("DecodeResponse() failed: %v", err)
	}

	if !bytes.Equal(decoded.SigPublicKey, m.SigPublicKey) ||
		!bytes.Equal(decoded.KEMCiphertext, m.KEMCiphertext) ||
		!bytes.Equal(decoded.ECDHPublicKey, m.ECDHPublicKey) ||
		decoded.Nonce != m.Nonce ||
		decoded.Timestamp != m.Timestamp ||
		!bytes.Equal(decoded.Signature, m.Signature) {
		t.Error("Response fields mismatch after round-trip")
	}

	if !bytes.Equal(decoded.PreSignatureBytes(), m.PreSignatureBytes()) {
		t.Error("PreSignatureBytes differs after a decode round-trip")
	}
}

// TestCompleteRoundTrip tests Complete encode/decode and strict length
func TestCompleteRoundTrip(t *testing.T) {
	m := &Complete{}
	copy(m.ConfirmationTag[:], bytes.Repeat([]byte{0x21}, ConfirmTagSize))

	decoded, err := DecodeComplete(m.Encode())
	if err != nil {
		t.Fatalf("DecodeComplete() failed: %v", err)
	}
	if decoded.ConfirmationTag != m.ConfirmationTag {
		t.Error("Confirmation tag mismatch")
	}

	if _, err := DecodeComplete(make([]byte, ConfirmTagSize+1)); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Expected ErrInvalidMessage for wrong length, got %v", err)
	}
}
