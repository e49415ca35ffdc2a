// Package handshake implements the three-message B4AE hybrid handshake:
//
//	Init     (initiator → responder): ephemeral KEM + ECDH keys, signed
//	Response (responder → initiator): KEM ciphertext + ECDH key, signed over the transcript
//	Complete (initiator → responder): confirmation tag from the master secret
//
// Every transition is bound to prior state through a running SHA-256
// transcript over the canonical bytes of each message. Signature, KEM and
// confirmation failures move the context to Failed and wipe its secrets;
// a failed context is never retried.
package handshake

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"time"

	"github.com/b4ae/b4ae/pkg/crypto/aead"
	"github.com/b4ae/b4ae/pkg/crypto/classical"
	"github.com/b4ae/b4ae/pkg/crypto/keyschedule"
	"github.com/b4ae/b4ae/pkg/crypto/mlkem"
	"github.com/b4ae/b4ae/pkg/crypto/zeroize"
	"github.com/b4ae/b4ae/shared/protocol"
)

// Role of an endpoint in one handshake.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}

// State of an in-flight handshake.
type State int

const (
	StateIdle State = iota
	StateInitSent
	StateInitReceived
	StateResponseSent
	StateResponseReceived
	StateCompleteSent
	StateCompleteReceived
	StateFinalized
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInitSent:
		return "InitSent"
	case StateInitReceived:
		return "InitReceived"
	case StateResponseSent:
		return "ResponseSent"
	case StateResponseReceived:
		return "ResponseReceived"
	case StateCompleteSent:
		return "CompleteSent"
	case StateCompleteReceived:
		return "CompleteReceived"
	case StateFinalized:
		return "Finalized"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

var (
	// ErrInvalidState indicates an event that the current state does not accept
	ErrInvalidState = errors.New("handshake: invalid state for operation")
	// ErrSignatureInvalid indicates a peer signature failed verification
	ErrSignatureInvalid = errors.New("handshake: signature verification failed")
	// ErrKemFailure indicates KEM encapsulation or decapsulation failed
	ErrKemFailure = errors.New("handshake: KEM operation failed")
	// ErrConfirmationMismatch indicates the Complete confirmation tag did not match
	ErrConfirmationMismatch = errors.New("handshake: confirmation tag mismatch")
	// ErrIdentityMismatch indicates the presented identity differs from the pinned one
	ErrIdentityMismatch = errors.New("handshake: peer identity does not match pinned key")
	// ErrTimeout indicates the handshake deadline passed
	ErrTimeout = errors.New("handshake: deadline exceeded")
)

// Config carries the negotiable handshake options.
type Config struct {
	// CipherSuite the initiator proposes (protocol.SuiteHybrid by default)
	CipherSuite byte
	// Timeout is the handshake deadline measured from context creation
	Timeout time.Duration
	// RequireSignature demands a signature on the peer's contribution.
	// When false an absent signature is tolerated; a present one is still
	// verified.
	RequireSignature bool
	// RequireHybrid rejects the classical-only suite (Strict profile)
	RequireHybrid bool
	// MaxMessageSize is the application payload cap that goes with this
	// configuration. The handshake does not read it and Result does not
	// carry it; sessions take their cap from their own options.
	MaxMessageSize uint32
	// Now supplies the wall clock; nil means time.Now
	Now func() time.Time
}

// DefaultConfig returns the standard handshake options.
func DefaultConfig() Config {
	return Config{
		CipherSuite:      protocol.SuiteHybrid,
		Timeout:          30 * time.Second,
		RequireSignature: true,
		MaxMessageSize:   protocol.DefaultMaxMessageSize,
	}
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Result is what a finalized handshake hands to the session layer. The
// context that produced it is dead afterwards; there is no partial session.
type Result struct {
	Keys             *keyschedule.SessionKeys
	Suite            byte
	PeerSigPublicKey []byte
}

// Handshake is one in-flight handshake context. Not safe for concurrent use;
// the session manager serializes access per peer.
type Handshake struct {
	role   Role
	state  State
	config Config
	suite  byte

	// Long-term identity
	localSigPub  []byte
	localSigPriv []byte

	// Pinned peer key; nil means trust-on-first-use
	pinnedPeerSigPub []byte
	peerSigPub       []byte

	// Ephemeral exchange keys
	kemKeys  *mlkem.KeyPair
	ecdhKeys *classical.X25519KeyPair

	// Peer ephemeral material
	peerECDHPub []byte
	peerKEMPub  []byte

	// Running hash over every canonical handshake byte
	transcript hash.Hash

	// Shared secrets and derived material
	kemSecret  []byte
	ecdhSecret []byte
	master     []byte

	deadline  time.Time
	validator *protocol.Validator
}

func newHandshake(role Role, config Config, sigPub, sigPriv, pinnedPeer []byte) *Handshake {
	if config.CipherSuite == 0 {
		config.CipherSuite = protocol.SuiteHybrid
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Handshake{
		role:             role,
		state:            StateIdle,
		config:           config,
		suite:            config.CipherSuite,
		localSigPub:      sigPub,
		localSigPriv:     sigPriv,
		pinnedPeerSigPub: pinnedPeer,
		transcript:       sha256.New(),
		deadline:         config.now().Add(config.Timeout),
		validator:        &protocol.Validator{MaxMessageSize: protocol.MaxHandshakeBodySize, Now: config.Now},
	}
}

// NewInitiator creates an initiator-side context. pinnedPeer may be nil when
// no key is pinned for the peer.
func NewInitiator(config Config, sigPub, sigPriv, pinnedPeer []byte) (*Handshake, error) {
	hs := newHandshake(RoleInitiator, config, sigPub, sigPriv, pinnedPeer)

	var err error
	if hs.suite == protocol.SuiteHybrid {
		if hs.kemKeys, err = mlkem.GenerateKeyPair(); err != nil {
			return nil, fmt.Errorf("handshake: %w", err)
		}
	}
	if hs.ecdhKeys, err = classical.GenerateX25519KeyPair(); err != nil {
		hs.destroy()
		return nil, fmt.Errorf("handshake: %w", err)
	}

	return hs, nil
}

// NewResponder creates a responder-side context. The suite is learned from
// the inbound Init.
func NewResponder(config Config, sigPub, sigPriv, pinnedPeer []byte) (*Handshake, error) {
	hs := newHandshake(RoleResponder, config, sigPub, sigPriv, pinnedPeer)

	var err error
	if hs.ecdhKeys, err = classical.GenerateX25519KeyPair(); err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}

	return hs, nil
}

// Role returns the context's role.
func (hs *Handshake) Role() Role { return hs.role }

// State returns the current state.
func (hs *Handshake) State() State { return hs.state }

// Suite returns the cipher suite in effect.
func (hs *Handshake) Suite() byte { return hs.suite }

// PeerSigPublicKey returns the peer's signature key once learned.
func (hs *Handshake) PeerSigPublicKey() []byte { return hs.peerSigPub }

// Abort moves the context to Failed and wipes all buffered secrets.
// Equivalent to dropping the context before Finalized.
func (hs *Handshake) Abort() {
	hs.fail()
}

// checkDeadline fails the context if the deadline has passed. Deadlines are
// checked on each event; there is no background timer.
func (hs *Handshake) checkDeadline() error {
	if hs.config.now().After(hs.deadline) {
		hs.fail()
		return ErrTimeout
	}
	return nil
}

// fail wipes secrets and parks the context in Failed. No retry on the same
// context.
func (hs *Handshake) fail() {
	hs.state = StateFailed
	hs.destroy()
}

func (hs *Handshake) destroy() {
	if hs.kemKeys != nil {
		zeroize.Bytes(hs.kemKeys.PrivateKey)
	}
	if hs.ecdhKeys != nil {
		zeroize.Bytes(hs.ecdhKeys.PrivateKey)
	}
	zeroize.Bytes(hs.kemSecret)
	zeroize.Bytes(hs.ecdhSecret)
	zeroize.Bytes(hs.master)
	hs.kemSecret = nil
	hs.ecdhSecret = nil
	hs.master = nil
}

// deriveMaster computes the master secret from the finished transcript and
// the two raw shared secrets, then wipes the raw secrets.
func (hs *Handshake) deriveMaster() error {
	transcriptHash := hs.transcript.Sum(nil)

	master, err := keyschedule.DeriveMaster(transcriptHash, hs.kemSecret, hs.ecdhSecret)
	if err != nil {
		return err
	}
	hs.master = master

	zeroize.Bytes(hs.kemSecret)
	zeroize.Bytes(hs.ecdhSecret)
	hs.kemSecret = nil
	hs.ecdhSecret = nil

	return nil
}

// finalize derives the session keys, wipes the context, and returns the
// result. The caller owns zeroisation of the returned keys.
func (hs *Handshake) finalize() (*Result, error) {
	keys, err := keyschedule.DeriveSessionKeys(hs.master, hs.role == RoleInitiator)
	if err != nil {
		hs.fail()
		return nil, err
	}

	result := &Result{
		Keys:             keys,
		Suite:            hs.suite,
		PeerSigPublicKey: hs.peerSigPub,
	}

	hs.state = StateFinalized
	hs.destroy()

	return result, nil
}

// verifyPeerSignature checks a peer signature over msg according to the
// signature policy.
func (hs *Handshake) verifyPeerSignature(pub, msg, sig []byte) error {
	if len(sig) == 0 {
		if hs.config.RequireSignature {
			return fmt.Errorf("%w: signature required but absent", ErrSignatureInvalid)
		}
		return nil
	}

	if !verifySig(pub, msg, sig) {
		return ErrSignatureInvalid
	}
	return nil
}

// checkPinnedIdentity compares a presented long-term key against the pinned
// one, byte for byte.
func (hs *Handshake) checkPinnedIdentity(presented []byte) error {
	if hs.pinnedPeerSigPub == nil {
		return nil
	}
	if !aead.ConstantTimeEqual(hs.pinnedPeerSigPub, presented) {
		return ErrIdentityMismatch
	}
	return nil
}

// randomNonce draws a fresh 32-byte handshake nonce.
func randomNonce() ([protocol.HandshakeNonceSize]byte, error) {
	var nonce [protocol.HandshakeNonceSize]byte
	buf, err := aead.RandomBytes(protocol.HandshakeNonceSize)
	if err != nil {
		return nonce, err
	}
	copy(nonce[:], buf)
	return nonce, nil
}
