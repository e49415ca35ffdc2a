// Package client exposes the B4AE application API: a Client handle owning a
// long-term identity and a session manager, with buffer-in/buffer-out
// operations for the handshake and record traffic. Transport is the
// caller's concern.
package client

import (
	"errors"
	"fmt"

	"github.com/b4ae/b4ae/pkg/audit"
	"github.com/b4ae/b4ae/pkg/identity"
	"github.com/b4ae/b4ae/pkg/logging"
	"github.com/b4ae/b4ae/pkg/session"
	"github.com/b4ae/b4ae/shared/protocol"
)

// SecurityProfile selects the protection level.
type SecurityProfile int

const (
	// ProfileStandard negotiates the hybrid suite but tolerates a peer
	// proposing the classical-only suite.
	ProfileStandard SecurityProfile = iota
	// ProfileStrict rejects non-hybrid suites and lowers the size caps.
	ProfileStrict
)

// String returns a human-readable profile name.
func (p SecurityProfile) String() string {
	switch p {
	case ProfileStandard:
		return "standard"
	case ProfileStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ErrNoIdentity indicates an operation that needs a loaded identity.
var ErrNoIdentity = errors.New("client: no identity loaded")

// Options tune a client beyond the profile defaults. The zero value is valid.
type Options struct {
	// Identity supplies an existing identity; nil generates a fresh one
	Identity *identity.PrivateIdentity
	// PeerID labels a generated identity; ignored when Identity is set
	PeerID []byte
	// PinStore resolves pinned peer keys; nil uses an in-memory store
	PinStore identity.PinStore
	// AuditSink receives security events; nil discards them
	AuditSink audit.Sink
	// Logger overrides the default "client" logger
	Logger *logging.Logger
	// Manager overrides the derived manager configuration when non-nil
	Manager *session.ManagerConfig
}

// Client is one endpoint's handle onto the protocol.
type Client struct {
	profile  SecurityProfile
	identity *identity.PrivateIdentity
	pins     identity.PinStore
	mgr      *session.Manager
	recorder *audit.Recorder
	logger   *logging.Logger
}

// NewClient builds a client for the given profile, generating a fresh
// identity when none is supplied.
func NewClient(profile SecurityProfile, opts Options) (*Client, error) {
	id := opts.Identity
	if id == nil {
		var err error
		id, err = identity.Generate(opts.PeerID)
		if err != nil {
			return nil, err
		}
	}

	pins := opts.PinStore
	if pins == nil {
		pins = identity.NewMemoryPinStore()
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger("client", logging.INFO)
	}

	var cfg session.ManagerConfig
	if opts.Manager != nil {
		cfg = *opts.Manager
	} else {
		cfg = profileConfig(profile)
	}

	recorder := audit.NewRecorder(opts.AuditSink, 0)

	mgr := session.NewManager(id.Public.SigPublicKey, id.SigPrivateKey, cfg, recorder, logger)
	mgr.SetPinLookup(pins.Lookup)

	return &Client{
		profile:  profile,
		identity: id,
		pins:     pins,
		mgr:      mgr,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// profileConfig derives the manager configuration for a profile.
func profileConfig(profile SecurityProfile) session.ManagerConfig {
	cfg := session.DefaultManagerConfig()

	if profile == ProfileStrict {
		cfg.Handshake.RequireHybrid = true
		cfg.Handshake.MaxMessageSize = protocol.StrictMaxMessageSize
		cfg.Session.MaxMessageSize = protocol.StrictMaxMessageSize
	}

	return cfg
}

// Profile returns the client's security profile.
func (c *Client) Profile() SecurityProfile {
	return c.profile
}

// Identity returns the client's public identity.
func (c *Client) Identity() *identity.PublicIdentity {
	return &c.identity.Public
}

// PinPeer records a peer's long-term signature key; subsequent handshakes
// with that peer must present it byte-for-byte.
func (c *Client) PinPeer(peerID string, sigPublicKey []byte) error {
	return c.pins.Pin(peerID, sigPublicKey)
}

// InitiateHandshake starts a handshake toward a peer, returning the Init
// bytes for the transport.
func (c *Client) InitiateHandshake(peerID string) ([]byte, error) {
	return c.mgr.Initiate(peerID)
}

// RespondToHandshake processes a peer's Init and returns the Response bytes.
func (c *Client) RespondToHandshake(peerID string, initBytes []byte) ([]byte, error) {
	return c.mgr.Respond(peerID, initBytes)
}

// ProcessResponse consumes the peer's Response and returns the Complete
// bytes.
func (c *Client) ProcessResponse(peerID string, respBytes []byte) ([]byte, error) {
	return c.mgr.ProcessResponse(peerID, respBytes)
}

// CompleteHandshake consumes the initiator's Complete and establishes the
// responder-side session.
func (c *Client) CompleteHandshake(peerID string, completeBytes []byte) error {
	return c.mgr.Complete(peerID, completeBytes)
}

// FinalizeInitiator establishes the initiator-side session after the
// Complete was sent.
func (c *Client) FinalizeInitiator(peerID string) error {
	return c.mgr.Finalize(peerID)
}

// EncryptMessage seals an application payload into one or more records.
func (c *Client) EncryptMessage(peerID string, payload []byte) ([][]byte, error) {
	return c.mgr.Encrypt(peerID, payload)
}

// DecryptMessage opens one inbound record. The payload is nil while a
// fragmented transfer is still incomplete.
func (c *Client) DecryptMessage(peerID string, record []byte) ([]byte, error) {
	return c.mgr.Decrypt(peerID, record)
}

// HasSession reports whether an established session exists for the peer.
func (c *Client) HasSession(peerID string) bool {
	return c.mgr.Has(peerID)
}

// SessionInfo returns counter snapshots for the peer's session.
func (c *Client) SessionInfo(peerID string) (session.Info, error) {
	return c.mgr.Info(peerID)
}

// CloseSession zeroises the peer's keys and removes the session.
func (c *Client) CloseSession(peerID string) {
	c.mgr.Close(peerID)
}

// Rehandshake tears the session down and starts a fresh handshake, e.g.
// after ErrSequenceExhausted.
func (c *Client) Rehandshake(peerID string) ([]byte, error) {
	c.mgr.Close(peerID)
	return c.mgr.Initiate(peerID)
}

// IdentityExport serializes the client's full identity as a versioned blob.
func (c *Client) IdentityExport() ([]byte, error) {
	if c.identity == nil {
		return nil, ErrNoIdentity
	}
	return c.identity.Export(), nil
}

// IdentityImport replaces the client's identity from an exported blob. All
// established sessions and in-flight handshakes are closed; new handshakes
// use the imported keys. The replacement manager takes its configuration
// from the client's profile, so an Options.Manager override given to
// NewClient no longer applies.
func (c *Client) IdentityImport(blob []byte) error {
	id, err := identity.Import(blob)
	if err != nil {
		return err
	}

	c.identity.Zeroize()
	c.identity = id

	cfg := profileConfig(c.profile)
	c.mgr.CloseAll()
	c.mgr = session.NewManager(id.Public.SigPublicKey, id.SigPrivateKey, cfg, c.recorder, c.logger)
	c.mgr.SetPinLookup(c.pins.Lookup)

	return nil
}

// Close tears down all sessions and flushes the audit recorder.
func (c *Client) Close() {
	c.mgr.CloseAll()
	c.recorder.Close()
	c.identity.Zeroize()
}

// Errors re-exported for callers that switch on kinds without importing the
// owning packages.
var (
	ErrNoSession         = session.ErrNoSession
	ErrReplay            = session.ErrReplay
	ErrSequenceExhausted = session.ErrSequenceExhausted
	ErrOversizedPayload  = protocol.ErrOversizedPayload
)

// FormatRecordCount is a convenience for demos and logs.
func FormatRecordCount(records [][]byte) string {
	total := 0
	for _, r := range records {
		total += len(r)
	}
	return fmt.Sprintf("%d records, %d bytes", len(records), total)
}
