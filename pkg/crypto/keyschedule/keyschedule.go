// Package keyschedule derives the B4AE session key material from the
// handshake transcript hash and the two raw shared secrets of the hybrid
// exchange. HKDF-SHA256 extract-then-expand throughout.
//
// All expansions hang off a single master secret:
//
//	master  = HKDF-Extract(salt = transcript hash, ikm = S_kem || S_dh)
//	keys    = HKDF-Expand(master, label || role byte, out_len)
//
// The two directions are labelled from the initiator's point of view, so the
// initiator's tx key is byte-equal to the responder's rx key and vice versa.
package keyschedule

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Derived output sizes
const (
	KeySize         = 32 // session key bytes
	NoncePrefixSize = 4  // per-direction nonce prefix bytes
	SessionIDSize   = 16 // session identifier bytes
	ConfirmTagSize  = 32 // handshake confirmation tag bytes
)

// roleInitiator is the role byte appended to both directional labels; the
// two directions are named from the initiator's point of view.
const roleInitiator byte = 0x01

// HKDF-Expand labels. The role byte is appended to the directional labels.
var (
	labelTX       = []byte("b4ae tx")
	labelRX       = []byte("b4ae rx")
	labelTXPrefix = []byte("b4ae np tx")
	labelRXPrefix = []byte("b4ae np rx")
	labelSID      = []byte("b4ae sid")
	labelConfirmI = []byte("b4ae confirm_i")
)

var (
	// ErrMissingSecret indicates an empty shared secret or transcript hash
	ErrMissingSecret = errors.New("keyschedule: missing input secret")
	// ErrDerivationFailed indicates HKDF expansion failed
	ErrDerivationFailed = errors.New("keyschedule: derivation failed")
)

// SessionKeys is the full per-session key material, oriented for one side.
// TXKey seals outbound records; RXKey opens inbound ones.
type SessionKeys struct {
	TXKey         [KeySize]byte
	RXKey         [KeySize]byte
	TXNoncePrefix [NoncePrefixSize]byte
	RXNoncePrefix [NoncePrefixSize]byte
	SessionID     [SessionIDSize]byte
}

// DeriveMaster computes the master secret. The transcript hash binds every
// on-wire handshake byte into the key schedule; kemSecret may be empty for
// the classical-only cipher suite, ecdhSecret never is.
func DeriveMaster(transcriptHash, kemSecret, ecdhSecret []byte) ([]byte, error) {
	if len(transcriptHash) == 0 {
		return nil, fmt.Errorf("%w: transcript hash", ErrMissingSecret)
	}
	if len(ecdhSecret) == 0 {
		return nil, fmt.Errorf("%w: ECDH shared secret", ErrMissingSecret)
	}

	ikm := make([]byte, 0, len(kemSecret)+len(ecdhSecret))
	ikm = append(ikm, kemSecret...)
	ikm = append(ikm, ecdhSecret...)

	master := hkdf.Extract(sha256.New, ikm, transcriptHash)

	// The concatenated secrets are no longer needed once extracted
	for i := range ikm {
		ikm[i] = 0
	}

	return master, nil
}

// DeriveSessionKeys expands the master secret into directional keys, nonce
// prefixes and the session ID, oriented for the given role. The initiator's
// TX material equals the responder's RX material byte-for-byte.
func DeriveSessionKeys(master []byte, initiator bool) (*SessionKeys, error) {
	if len(master) == 0 {
		return nil, fmt.Errorf("%w: master secret", ErrMissingSecret)
	}

	keyI2R, err := expand(master, directional(labelTX), KeySize)
	if err != nil {
		return nil, err
	}
	keyR2I, err := expand(master, directional(labelRX), KeySize)
	if err != nil {
		return nil, err
	}
	prefixI2R, err := expand(master, directional(labelTXPrefix), NoncePrefixSize)
	if err != nil {
		return nil, err
	}
	prefixR2I, err := expand(master, directional(labelRXPrefix), NoncePrefixSize)
	if err != nil {
		return nil, err
	}
	sid, err := expand(master, labelSID, SessionIDSize)
	if err != nil {
		return nil, err
	}

	keys := &SessionKeys{}
	copy(keys.SessionID[:], sid)

	if initiator {
		copy(keys.TXKey[:], keyI2R)
		copy(keys.RXKey[:], keyR2I)
		copy(keys.TXNoncePrefix[:], prefixI2R)
		copy(keys.RXNoncePrefix[:], prefixR2I)
	} else {
		copy(keys.TXKey[:], keyR2I)
		copy(keys.RXKey[:], keyI2R)
		copy(keys.TXNoncePrefix[:], prefixR2I)
		copy(keys.RXNoncePrefix[:], prefixI2R)
	}

	for i := range keyI2R {
		keyI2R[i] = 0
	}
	for i := range keyR2I {
		keyR2I[i] = 0
	}

	return keys, nil
}

// ConfirmationTag derives the 32-byte tag the initiator sends in the Complete
// message. Both sides compute it from the master secret; a transcript or
// secret mismatch on either side changes the tag.
func ConfirmationTag(master []byte) ([]byte, error) {
	if len(master) == 0 {
		return nil, fmt.Errorf("%w: master secret", ErrMissingSecret)
	}
	return expand(master, labelConfirmI, ConfirmTagSize)
}

func directional(label []byte) []byte {
	info := make([]byte, 0, len(label)+1)
	info = append(info, label...)
	info = append(info, roleInitiator)
	return info
}

func expand(master, info []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, master, info), out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDerivationFailed, err)
	}
	return out, nil
}
