package session

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/b4ae/b4ae/pkg/crypto/aead"
	"github.com/b4ae/b4ae/pkg/crypto/keyschedule"
	"github.com/b4ae/b4ae/shared/protocol"
)

// sessionPair derives matched key material the way a finalized handshake
// would and builds the two ends of a channel.
func sessionPair(t *testing.T, optsA, optsB Options) (*Session, *Session) {
	t.Helper()

	master, err := aead.RandomBytes(32)
	if err != nil {
		t.Fatalf("RandomBytes() failed: %v", err)
	}

	keysA, err := keyschedule.DeriveSessionKeys(master, true)
	if err != nil {
		t.Fatalf("DeriveSessionKeys() failed: %v", err)
	}
	keysB, err := keyschedule.DeriveSessionKeys(master, false)
	if err != nil {
		t.Fatalf("DeriveSessionKeys() failed: %v", err)
	}

	return New("bob", protocol.SuiteHybrid, keysA, optsA),
		New("alice", protocol.SuiteHybrid, keysB, optsB)
}

// TestSessionRoundTrip tests a short message in one record
func TestSessionRoundTrip(t *testing.T) {
	alice, bob := sessionPair(t, DefaultOptions(), DefaultOptions())

	payload := []byte("Hello, B4AE!")
	records, err := alice.Encrypt(payload)
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Short payload produced %d records, expected 1", len(records))
	}

	decrypted, err := bob.Decrypt(records[0])
	if err != nil {
		t.Fatalf("Decrypt() failed: %v", err)
	}
	if !bytes.Equal(decrypted, payload) {
		t.Errorf("Round-trip mismatch: got %q", decrypted)
	}
}

// TestSessionEmptyPayload tests that an empty payload round-trips
func TestSessionEmptyPayload(t *testing.T) {
	alice, bob := sessionPair(t, DefaultOptions(), DefaultOptions())

	records, err := alice.Encrypt(nil)
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}

	decrypted, err := bob.Decrypt(records[0])
	if err != nil {
		t.Fatalf("Decrypt() failed: %v", err)
	}
	if len(decrypted) != 0 {
		t.Errorf("Expected empty payload, got %d bytes", len(decrypted))
	}
}

// TestSessionReplayRejected tests that a record decrypts exactly once
func TestSessionReplayRejected(t *testing.T) {
	alice, bob := sessionPair(t, DefaultOptions(), DefaultOptions())

	records, err := alice.Encrypt([]byte("once only"))
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}

	if _, err := bob.Decrypt(records[0]); err != nil {
		t.Fatalf("First Decrypt() failed: %v", err)
	}

	if _, err := bob.Decrypt(records[0]); !errors.Is(err, ErrReplay) {
		t.Errorf("Second delivery: expected ErrReplay, got %v", err)
	}
}

// TestSessionTamperedRecord tests that any ciphertext flip fails authentication
func TestSessionTamperedRecord(t *testing.T) {
	alice, bob := sessionPair(t, DefaultOptions(), DefaultOptions())

	records, err := alice.Encrypt([]byte("integrity matters"))
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}

	tampered := make([]byte, len(records[0]))
	copy(tampered, records[0])
	// Flip a byte inside the ciphertext, past header and nonce
	tampered[protocol.RecordHeaderSize+protocol.RecordNonceSize+3] ^= 0x01

	if _, err := bob.Decrypt(tampered); !errors.Is(err, aead.ErrAuthFailure) {
		t.Errorf("Expected ErrAuthFailure, got %v", err)
	}

	// The untampered record must still decrypt: the forgery did not burn
	// its sequence number
	if _, err := bob.Decrypt(records[0]); err != nil {
		t.Errorf("Original record rejected after forgery attempt: %v", err)
	}
}

// TestSessionFragmentationRoundTrip tests a 10,000-byte payload split across
// records and reassembled from out-of-order delivery
func TestSessionFragmentationRoundTrip(t *testing.T) {
	alice, bob := sessionPair(t, DefaultOptions(), DefaultOptions())

	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i % 256)
	}

	records, err := alice.Encrypt(payload)
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}
	if len(records) < 8 {
		t.Fatalf("Expected at least 8 records, got %d", len(records))
	}

	// Every record must fit the MTU
	for i, record := range records {
		if len(record) > DefaultOptions().MTU {
			t.Errorf("Record %d is %d bytes, above the MTU", i, len(record))
		}
	}

	// Deliver in reverse order; the payload must appear exactly once,
	// when the last missing fragment lands
	var reassembled []byte
	deliveries := 0
	for i := len(records) - 1; i >= 0; i-- {
		chunk, err := bob.Decrypt(records[i])
		if err != nil {
			t.Fatalf("Decrypt() of record %d failed: %v", i, err)
		}
		if chunk != nil {
			deliveries++
			reassembled = chunk
		}
	}

	if deliveries != 1 {
		t.Fatalf("Payload delivered %d times, expected once", deliveries)
	}
	if !bytes.Equal(reassembled, payload) {
		t.Error("Reassembled payload does not match original")
	}
}

// TestSessionOversizedPayload tests the size cap at Encrypt
func TestSessionOversizedPayload(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxMessageSize = 4096

	alice, bob := sessionPair(t, opts, opts)

	// At the cap: fragments and round-trips
	atCap := make([]byte, 4096)
	records, err := alice.Encrypt(atCap)
	if err != nil {
		t.Fatalf("Encrypt() at cap failed: %v", err)
	}
	var got []byte
	for _, record := range records {
		payload, err := bob.Decrypt(record)
		if err != nil {
			t.Fatalf("Decrypt() failed: %v", err)
		}
		if payload != nil {
			got = payload
		}
	}
	if !bytes.Equal(got, atCap) {
		t.Error("At-cap payload mismatch")
	}

	// One byte over: rejected before any sealing
	if _, err := alice.Encrypt(make([]byte, 4097)); !errors.Is(err, protocol.ErrOversizedPayload) {
		t.Errorf("Expected ErrOversizedPayload, got %v", err)
	}
}

// TestSessionSequenceExhaustion tests the hard stop before nonce reuse
func TestSessionSequenceExhaustion(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxRecords = 2

	alice, _ := sessionPair(t, opts, DefaultOptions())

	for i := 0; i < 2; i++ {
		if _, err := alice.Encrypt([]byte("x")); err != nil {
			t.Fatalf("Encrypt() %d failed: %v", i, err)
		}
	}

	if _, err := alice.Encrypt([]byte("x")); !errors.Is(err, ErrSequenceExhausted) {
		t.Errorf("Expected ErrSequenceExhausted, got %v", err)
	}
}

// TestSessionMessageIDsStrictlyIncrease tests tx sequencing on the wire
func TestSessionMessageIDsStrictlyIncrease(t *testing.T) {
	alice, _ := sessionPair(t, DefaultOptions(), DefaultOptions())

	var last uint64
	for i := 0; i < 10; i++ {
		records, err := alice.Encrypt([]byte("tick"))
		if err != nil {
			t.Fatalf("Encrypt() failed: %v", err)
		}

		header, err := protocol.DecodeRecordHeader(records[0])
		if err != nil {
			t.Fatalf("DecodeRecordHeader() failed: %v", err)
		}
		if header.MessageID <= last {
			t.Fatalf("message_id %d not greater than %d", header.MessageID, last)
		}
		last = header.MessageID
	}
}

// TestReassemblyTimeout tests that a stalled transfer expires
func TestReassemblyTimeout(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	now := func() time.Time { return clock }

	opts := DefaultOptions()
	opts.ReassemblyTTL = 30 * time.Second
	opts.Now = now

	alice, bob := sessionPair(t, opts, opts)

	payload := make([]byte, 5000)
	records, err := alice.Encrypt(payload)
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}
	if len(records) < 2 {
		t.Fatalf("Need at least 2 fragments, got %d", len(records))
	}

	// First fragment arrives, then the transfer stalls past the TTL
	if _, err := bob.Decrypt(records[0]); err != nil {
		t.Fatalf("Decrypt() failed: %v", err)
	}

	clock = clock.Add(31 * time.Second)

	if _, err := bob.Decrypt(records[1]); !errors.Is(err, ErrReassemblyTimeout) {
		t.Errorf("Expected ErrReassemblyTimeout, got %v", err)
	}
}

// TestSessionClose tests that a closed session refuses work
func TestSessionClose(t *testing.T) {
	alice, _ := sessionPair(t, DefaultOptions(), DefaultOptions())

	alice.Close()

	if _, err := alice.Encrypt([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := alice.Decrypt(make([]byte, 64)); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

// TestSessionStatistics tests the counter snapshots
func TestSessionStatistics(t *testing.T) {
	alice, bob := sessionPair(t, DefaultOptions(), DefaultOptions())

	for i := 0; i < 5; i++ {
		records, err := alice.Encrypt([]byte("Test"))
		if err != nil {
			t.Fatalf("Encrypt() failed: %v", err)
		}
		if _, err := bob.Decrypt(records[0]); err != nil {
			t.Fatalf("Decrypt() failed: %v", err)
		}
	}

	if sent := alice.Info().MessagesSent; sent != 5 {
		t.Errorf("Alice messages_sent = %d, expected 5", sent)
	}
	if received := bob.Info().MessagesReceived; received != 5 {
		t.Errorf("Bob messages_received = %d, expected 5", received)
	}
	if alice.Info().BytesSent != 20 {
		t.Errorf("Alice bytes_sent = %d, expected 20", alice.Info().BytesSent)
	}
}
