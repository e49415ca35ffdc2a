// Package protocol defines the B4AE wire formats: the handshake envelope and
// message bodies, the record header, the fragment wrapper, and the cheap
// pre-crypto validation applied to everything inbound.
package protocol

import (
	"errors"
	"time"
)

// Protocol version carried in envelopes, handshake bodies and record headers
const ProtocolVersion uint16 = 0x0001

// Magic prefixes every handshake envelope
const Magic = "B4AE"

// Message types
const (
	MsgTypeInit     byte = 0x01
	MsgTypeResponse byte = 0x02
	MsgTypeComplete byte = 0x03
	MsgTypeData     byte = 0x04
	MsgTypeFragment byte = 0x05
)

// Cipher suites
const (
	// SuiteAES256GCM negotiates X25519 + AES-256-GCM without the
	// post-quantum KEM. Rejected under the Strict profile.
	SuiteAES256GCM byte = 0x01
	// SuiteHybrid negotiates ML-KEM-1024 + X25519 + AES-256-GCM.
	SuiteHybrid byte = 0x02
)

// Wire sizes
const (
	EnvelopeSize       = 11 // magic(4) + version(2) + msg_type(1) + length(4)
	RecordHeaderSize   = 24 // version(2)+msg_type(1)+suite(1)+message_id(8)+payload_length(4)+timestamp(8)
	RecordNonceSize    = 12
	RecordTagSize      = 16
	RecordOverhead     = RecordHeaderSize + RecordNonceSize + RecordTagSize
	FragmentHeaderSize = 12 // transfer_id(8) + fragment_index(2) + total_fragments(2)
	HandshakeNonceSize = 32
	ConfirmTagSize     = 32
)

// Limits and defaults
const (
	// DefaultMaxMessageSize caps a reassembled application payload (1 MiB)
	DefaultMaxMessageSize uint32 = 1 << 20
	// StrictMaxMessageSize is the lowered cap under the Strict profile (256 KiB)
	StrictMaxMessageSize uint32 = 256 << 10
	// DefaultMTU bounds a single record on the wire
	DefaultMTU = 1400
	// MaxHandshakeBodySize caps an envelope body before allocation.
	// The largest legitimate body is a hybrid-suite Init of 8838 bytes.
	MaxHandshakeBodySize uint32 = 32 << 10
	// MaxTimestampDrift is how far a message timestamp may deviate from the
	// local clock, in either direction, inclusive
	MaxTimestampDrift = 3600 * time.Second
)

// Validation and parse errors
var (
	// ErrInvalidMessage indicates a structurally malformed message
	ErrInvalidMessage = errors.New("protocol: invalid message")
	// ErrUnsupportedVersion indicates a protocol version mismatch
	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	// ErrUnsupportedSuite indicates an unknown or non-negotiated cipher suite
	ErrUnsupportedSuite = errors.New("protocol: unsupported cipher suite")
	// ErrInvalidTimestamp indicates a timestamp outside the drift window
	ErrInvalidTimestamp = errors.New("protocol: timestamp outside drift window")
	// ErrOversizedPayload indicates a payload above the negotiated size cap
	ErrOversizedPayload = errors.New("protocol: oversized payload")
	// ErrInvalidMsgType indicates a message type not allowed in the current state
	ErrInvalidMsgType = errors.New("protocol: message type not allowed")
)

// KnownSuite reports whether suite is a defined cipher suite value.
func KnownSuite(suite byte) bool {
	return suite == SuiteAES256GCM || suite == SuiteHybrid
}

// MessageTypeName returns a human-readable name for logs.
func MessageTypeName(msgType byte) string {
	switch msgType {
	case MsgTypeInit:
		return "INIT"
	case MsgTypeResponse:
		return "RESPONSE"
	case MsgTypeComplete:
		return "COMPLETE"
	case MsgTypeData:
		return "DATA"
	case MsgTypeFragment:
		return "FRAGMENT"
	default:
		return "UNKNOWN"
	}
}
