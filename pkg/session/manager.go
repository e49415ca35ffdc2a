package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/b4ae/b4ae/pkg/audit"
	"github.com/b4ae/b4ae/pkg/crypto/aead"
	"github.com/b4ae/b4ae/pkg/handshake"
	"github.com/b4ae/b4ae/pkg/logging"
)

// ManagerConfig bounds the session manager's behavior.
type ManagerConfig struct {
	Handshake handshake.Config
	Session   Options
	// IdleTimeout evicts sessions with no activity
	IdleTimeout time.Duration
	// FailureThreshold auth/replay failures within FailureWindow close the
	// session as a suspected attack
	FailureThreshold int
	FailureWindow    time.Duration
}

// DefaultManagerConfig returns the standard manager bounds.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Handshake:        handshake.DefaultConfig(),
		Session:          DefaultOptions(),
		IdleTimeout:      30 * time.Minute,
		FailureThreshold: 16,
		FailureWindow:    60 * time.Second,
	}
}

// peerEntry is the per-peer slot: at most one in-flight handshake and at
// most one established session. Its own mutex serializes cryptographic work
// so the table mutex is held only for lookups.
type peerEntry struct {
	mu   sync.Mutex
	hs   *handshake.Handshake
	sess *Session
}

// Manager owns the peer-id → session table and routes handshake and record
// traffic to the right per-peer state.
type Manager struct {
	mu    sync.Mutex
	peers map[string]*peerEntry

	config  ManagerConfig
	sigPub  []byte
	sigPriv []byte

	// pinLookup returns the pinned signature key for a peer, nil when none
	pinLookup func(peerID string) []byte

	recorder *audit.Recorder
	logger   *logging.Logger
}

// NewManager builds a manager around a long-term signing identity. recorder
// and logger may be nil.
func NewManager(sigPub, sigPriv []byte, config ManagerConfig, recorder *audit.Recorder, logger *logging.Logger) *Manager {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 16
	}
	if config.FailureWindow == 0 {
		config.FailureWindow = 60 * time.Second
	}
	if logger == nil {
		logger = logging.NewLogger("session", logging.INFO)
	}

	return &Manager{
		peers:    make(map[string]*peerEntry),
		config:   config,
		sigPub:   sigPub,
		sigPriv:  sigPriv,
		recorder: recorder,
		logger:   logger,
	}
}

// SetPinLookup installs the pinned-identity resolver.
func (m *Manager) SetPinLookup(lookup func(peerID string) []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinLookup = lookup
}

// entry fetches or creates the per-peer slot. The table mutex is held only
// for the map access.
func (m *Manager) entry(peerID string, create bool) *peerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.peers[peerID]
	if !ok && create {
		e = &peerEntry{}
		m.peers[peerID] = e
	}
	return e
}

func (m *Manager) pinned(peerID string) []byte {
	m.mu.Lock()
	lookup := m.pinLookup
	m.mu.Unlock()

	if lookup == nil {
		return nil
	}
	return lookup(peerID)
}

func (m *Manager) emit(eventType audit.EventType, peerID, reason string) {
	if m.recorder != nil {
		m.recorder.Emit(eventType, peerID, reason)
	}
}

// Initiate starts a handshake toward a peer and returns the Init bytes.
func (m *Manager) Initiate(peerID string) ([]byte, error) {
	e := m.entry(peerID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hs != nil && e.hs.State() != handshake.StateFailed {
		return nil, fmt.Errorf("%w: handshake with %q already in flight", handshake.ErrInvalidState, peerID)
	}

	hs, err := handshake.NewInitiator(m.config.Handshake, m.sigPub, m.sigPriv, m.pinned(peerID))
	if err != nil {
		return nil, err
	}

	initBytes, err := hs.GenerateInit()
	if err != nil {
		m.emit(audit.EventHandshakeFailed, peerID, err.Error())
		return nil, err
	}

	e.hs = hs
	m.emit(audit.EventHandshakeStarted, peerID, "initiator")
	m.logger.Debug("handshake initiated", logging.Fields{"peer_id": peerID})

	return initBytes, nil
}

// Respond processes a peer's Init and returns the Response bytes.
func (m *Manager) Respond(peerID string, initBytes []byte) ([]byte, error) {
	e := m.entry(peerID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	// A duplicate Init while one handshake is in flight is rejected
	// without disturbing the existing context
	if e.hs != nil && e.hs.State() != handshake.StateFailed {
		return nil, fmt.Errorf("%w: handshake with %q already in flight", handshake.ErrInvalidState, peerID)
	}

	hs, err := handshake.NewResponder(m.config.Handshake, m.sigPub, m.sigPriv, m.pinned(peerID))
	if err != nil {
		return nil, err
	}

	m.emit(audit.EventHandshakeStarted, peerID, "responder")

	if err := hs.ProcessInit(initBytes); err != nil {
		m.emit(audit.EventHandshakeFailed, peerID, err.Error())
		return nil, err
	}

	respBytes, err := hs.GenerateResponse()
	if err != nil {
		m.emit(audit.EventHandshakeFailed, peerID, err.Error())
		return nil, err
	}

	e.hs = hs
	return respBytes, nil
}

// ProcessResponse consumes the peer's Response and returns the Complete
// bytes (initiator side).
func (m *Manager) ProcessResponse(peerID string, respBytes []byte) ([]byte, error) {
	e := m.entry(peerID, false)
	if e == nil {
		return nil, fmt.Errorf("%w: no handshake with %q", handshake.ErrInvalidState, peerID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hs == nil {
		return nil, fmt.Errorf("%w: no handshake with %q", handshake.ErrInvalidState, peerID)
	}

	if err := e.hs.ProcessResponse(respBytes); err != nil {
		if e.hs.State() == handshake.StateFailed {
			m.emit(audit.EventHandshakeFailed, peerID, err.Error())
			e.hs = nil
		}
		return nil, err
	}

	completeBytes, err := e.hs.GenerateComplete()
	if err != nil {
		m.emit(audit.EventHandshakeFailed, peerID, err.Error())
		e.hs = nil
		return nil, err
	}

	return completeBytes, nil
}

// Complete consumes the initiator's Complete and finalizes the responder
// side, establishing the session.
func (m *Manager) Complete(peerID string, completeBytes []byte) error {
	e := m.entry(peerID, false)
	if e == nil {
		return fmt.Errorf("%w: no handshake with %q", handshake.ErrInvalidState, peerID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hs == nil {
		return fmt.Errorf("%w: no handshake with %q", handshake.ErrInvalidState, peerID)
	}

	if err := e.hs.ProcessComplete(completeBytes); err != nil {
		if e.hs.State() == handshake.StateFailed {
			m.emit(audit.EventHandshakeFailed, peerID, err.Error())
			e.hs = nil
		}
		return err
	}

	return m.finalizeLocked(e, peerID)
}

// Finalize finalizes the initiator side, establishing the session.
func (m *Manager) Finalize(peerID string) error {
	e := m.entry(peerID, false)
	if e == nil {
		return fmt.Errorf("%w: no handshake with %q", handshake.ErrInvalidState, peerID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hs == nil {
		return fmt.Errorf("%w: no handshake with %q", handshake.ErrInvalidState, peerID)
	}

	return m.finalizeLocked(e, peerID)
}

// finalizeLocked turns a finished handshake into the peer's session. Caller
// holds e.mu.
func (m *Manager) finalizeLocked(e *peerEntry, peerID string) error {
	result, err := e.hs.Finalize()
	if err != nil {
		m.emit(audit.EventHandshakeFailed, peerID, err.Error())
		e.hs = nil
		return err
	}
	e.hs = nil

	if e.sess != nil {
		e.sess.Close()
		m.emit(audit.EventSessionClosed, peerID, audit.ReasonRekey)
	}

	e.sess = New(peerID, result.Suite, result.Keys, m.config.Session)
	m.emit(audit.EventHandshakeCompleted, peerID, "")
	m.logger.Info("session established", logging.Fields{"peer_id": peerID})

	return nil
}

// Encrypt fragments and seals a payload for a peer.
func (m *Manager) Encrypt(peerID string, payload []byte) ([][]byte, error) {
	sess, err := m.activeSession(peerID)
	if err != nil {
		return nil, err
	}

	records, err := sess.Encrypt(payload)
	if errors.Is(err, ErrSequenceExhausted) {
		// Permanent for this session; the peer must rehandshake
		m.removeSession(peerID, "sequence_exhausted")
		return nil, err
	}
	return records, err
}

// Decrypt opens one inbound record for a peer. A nil payload with nil error
// means a fragment was buffered and the transfer is still incomplete.
func (m *Manager) Decrypt(peerID string, record []byte) ([]byte, error) {
	sess, err := m.activeSession(peerID)
	if err != nil {
		return nil, err
	}

	payload, err := sess.Decrypt(record)
	if err != nil {
		switch {
		case errors.Is(err, ErrReplay):
			m.emit(audit.EventReplayDetected, peerID, "")
			m.noteFailure(peerID, sess)
		case errors.Is(err, aead.ErrAuthFailure):
			m.emit(audit.EventRecordAuthFailure, peerID, "")
			m.noteFailure(peerID, sess)
		}
		return nil, err
	}

	for _, transferID := range sess.ExpiredTransfers() {
		m.logger.Warn("reassembly timed out", logging.Fields{
			"peer_id":     peerID,
			"transfer_id": transferID,
		})
	}

	return payload, nil
}

// noteFailure counts an auth/replay failure and closes the session when the
// threshold is crossed.
func (m *Manager) noteFailure(peerID string, sess *Session) {
	count := sess.NoteSecurityFailure(m.config.FailureWindow)
	if count >= m.config.FailureThreshold {
		m.logger.Warn("failure threshold crossed, closing session", logging.Fields{
			"peer_id":  peerID,
			"failures": count,
		})
		m.removeSession(peerID, audit.ReasonSuspectedAttack)
	}
}

// activeSession resolves the peer's session, applying idle eviction.
func (m *Manager) activeSession(peerID string) (*Session, error) {
	e := m.entry(peerID, false)
	if e == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoSession, peerID)
	}

	e.mu.Lock()
	sess := e.sess
	e.mu.Unlock()

	if sess == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoSession, peerID)
	}

	if m.config.IdleTimeout > 0 && m.config.Session.now().Sub(sess.IdleSince()) > m.config.IdleTimeout {
		m.removeSession(peerID, audit.ReasonIdleTimeout)
		return nil, fmt.Errorf("%w: %q idle-expired", ErrNoSession, peerID)
	}

	return sess, nil
}

// Has reports whether an established, non-expired session exists for a peer.
func (m *Manager) Has(peerID string) bool {
	_, err := m.activeSession(peerID)
	return err == nil
}

// Info returns counter snapshots for a peer's session.
func (m *Manager) Info(peerID string) (Info, error) {
	sess, err := m.activeSession(peerID)
	if err != nil {
		return Info{}, err
	}
	return sess.Info(), nil
}

// Close zeroises a peer's keys and removes the table entry.
func (m *Manager) Close(peerID string) {
	m.removeSession(peerID, audit.ReasonExplicitClose)
}

func (m *Manager) removeSession(peerID, reason string) {
	m.mu.Lock()
	e, ok := m.peers[peerID]
	if ok {
		delete(m.peers, peerID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}

	e.mu.Lock()
	if e.hs != nil {
		e.hs.Abort()
		e.hs = nil
	}
	if e.sess != nil {
		e.sess.Close()
		e.sess = nil
		m.emit(audit.EventSessionClosed, peerID, reason)
	}
	e.mu.Unlock()
}

// CloseAll tears down every session and handshake.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	peerIDs := make([]string, 0, len(m.peers))
	for id := range m.peers {
		peerIDs = append(peerIDs, id)
	}
	m.mu.Unlock()

	for _, id := range peerIDs {
		m.Close(id)
	}
}

// SweepIdle evicts sessions whose last activity predates the idle timeout.
func (m *Manager) SweepIdle() int {
	if m.config.IdleTimeout <= 0 {
		return 0
	}

	m.mu.Lock()
	type candidate struct {
		id string
		e  *peerEntry
	}
	candidates := make([]candidate, 0, len(m.peers))
	for id, e := range m.peers {
		candidates = append(candidates, candidate{id, e})
	}
	m.mu.Unlock()

	cutoff := m.config.Session.now().Add(-m.config.IdleTimeout)
	evicted := 0
	for _, c := range candidates {
		c.e.mu.Lock()
		expired := c.e.sess != nil && c.e.sess.IdleSince().Before(cutoff)
		c.e.mu.Unlock()

		if expired {
			m.removeSession(c.id, audit.ReasonIdleTimeout)
			evicted++
		}
	}

	return evicted
}
