package protocol

import (
	"fmt"
	"time"
)

// Validator applies the cheap sanity checks to inbound headers before any
// cryptographic work: version, size cap, negotiated suite, timestamp drift,
// and state-dependent message type. Rejecting here costs a few comparisons
// instead of an AEAD pass.
type Validator struct {
	// MaxMessageSize caps the declared payload length
	MaxMessageSize uint32
	// Suite is the negotiated cipher suite; zero disables the check
	// (handshake-time validation runs before negotiation settles)
	Suite byte
	// Now supplies the wall clock. Drift is measured against the real
	// current time; the field exists so tests can pin the clock.
	Now func() time.Time
}

// NewValidator builds a validator with the real clock.
func NewValidator(maxMessageSize uint32, suite byte) *Validator {
	return &Validator{
		MaxMessageSize: maxMessageSize,
		Suite:          suite,
		Now:            time.Now,
	}
}

// ValidateRecordHeader checks an inbound record header. allowedTypes is the
// set of message types acceptable in the session's current state.
func (v *Validator) ValidateRecordHeader(h *RecordHeader, allowedTypes ...byte) error {
	if h.Version != ProtocolVersion {
		return fmt.Errorf("%w: got 0x%04x, expected 0x%04x", ErrUnsupportedVersion, h.Version, ProtocolVersion)
	}

	if h.PayloadLength > v.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes exceeds cap of %d", ErrOversizedPayload, h.PayloadLength, v.MaxMessageSize)
	}

	if !KnownSuite(h.CipherSuite) || (v.Suite != 0 && h.CipherSuite != v.Suite) {
		return fmt.Errorf("%w: 0x%02x", ErrUnsupportedSuite, h.CipherSuite)
	}

	if err := v.ValidateTimestamp(h.Timestamp); err != nil {
		return err
	}

	allowed := false
	for _, t := range allowedTypes {
		if h.MsgType == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s (0x%02x)", ErrInvalidMsgType, MessageTypeName(h.MsgType), h.MsgType)
	}

	return nil
}

// ValidateTimestamp checks that a Unix-seconds timestamp is within the drift
// window of the local clock, boundary inclusive: a timestamp exactly 3600 s
// away is accepted, 3601 s is rejected.
func (v *Validator) ValidateTimestamp(ts int64) error {
	now := v.now().Unix()

	drift := now - ts
	if drift < 0 {
		drift = -drift
	}

	if drift > int64(MaxTimestampDrift/time.Second) {
		return fmt.Errorf("%w: %d is %ds from local time %d", ErrInvalidTimestamp, ts, drift, now)
	}

	return nil
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
