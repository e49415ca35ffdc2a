// Package session owns the established-channel state: per-session keys,
// sequence numbers, the replay window, record sealing and opening,
// fragmentation and reassembly, and the per-peer session table.
package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/b4ae/b4ae/pkg/crypto/aead"
	"github.com/b4ae/b4ae/pkg/crypto/keyschedule"
	"github.com/b4ae/b4ae/pkg/crypto/zeroize"
	"github.com/b4ae/b4ae/shared/protocol"
)

var (
	// ErrNoSession indicates no established session exists for the peer
	ErrNoSession = errors.New("session: no session for peer")
	// ErrReplay indicates a record whose message ID was already accepted
	ErrReplay = errors.New("session: replay detected")
	// ErrSequenceExhausted indicates the sequence space is spent; the
	// session is permanently unusable and the peer must rehandshake
	ErrSequenceExhausted = errors.New("session: sequence numbers exhausted")
	// ErrReassemblyTimeout indicates a partial transfer expired
	ErrReassemblyTimeout = errors.New("session: reassembly timed out")
	// ErrClosed indicates the session was closed
	ErrClosed = errors.New("session: closed")
)

// Options bound a single session's behavior.
type Options struct {
	// MaxMessageSize caps one reassembled application payload
	MaxMessageSize uint32
	// MTU bounds a single record on the wire
	MTU int
	// ReassemblyTTL expires partial transfers
	ReassemblyTTL time.Duration
	// MaxRecords caps records sealed per session, a safety margin below
	// nonce exhaustion
	MaxRecords uint64
	// Now supplies the wall clock; nil means time.Now
	Now func() time.Time
}

// DefaultOptions returns the standard session bounds.
func DefaultOptions() Options {
	return Options{
		MaxMessageSize: protocol.DefaultMaxMessageSize,
		MTU:            protocol.DefaultMTU,
		ReassemblyTTL:  30 * time.Second,
		MaxRecords:     1<<32 - 1,
	}
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Info is a point-in-time snapshot of session counters.
type Info struct {
	SessionID        [keyschedule.SessionIDSize]byte
	PeerID           string
	CreatedAt        time.Time
	LastActivity     time.Time
	MessagesSent     uint64
	MessagesReceived uint64
	BytesSent        uint64
	BytesReceived    uint64
}

// Session is one established secure channel with a peer. A session exists
// only after a handshake finalized; there is no partial session. Methods are
// safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id     [keyschedule.SessionIDSize]byte
	peerID string
	suite  byte
	keys   *keyschedule.SessionKeys

	txSeq  uint64 // next message_id to seal
	window *replayWindow

	reassembler *reassembler
	validator   *protocol.Validator
	opts        Options

	createdAt    time.Time
	lastActivity time.Time

	messagesSent     uint64
	messagesReceived uint64
	bytesSent        uint64
	bytesReceived    uint64

	// Sliding 60 s record of auth/replay failures for the attack threshold
	failures []time.Time

	closed bool
}

// New builds a session around finalized handshake keys. The session takes
// ownership of keys and wipes them on Close.
func New(peerID string, suite byte, keys *keyschedule.SessionKeys, opts Options) *Session {
	if opts.MaxMessageSize == 0 {
		opts.MaxMessageSize = protocol.DefaultMaxMessageSize
	}
	if opts.MTU == 0 {
		opts.MTU = protocol.DefaultMTU
	}
	if opts.ReassemblyTTL == 0 {
		opts.ReassemblyTTL = 30 * time.Second
	}
	if opts.MaxRecords == 0 {
		opts.MaxRecords = 1<<32 - 1
	}

	now := opts.now()
	s := &Session{
		id:           keys.SessionID,
		peerID:       peerID,
		suite:        suite,
		keys:         keys,
		txSeq:        1,
		window:       newReplayWindow(),
		reassembler:  newReassembler(opts.MaxMessageSize, opts.ReassemblyTTL, opts.now),
		validator:    &protocol.Validator{MaxMessageSize: opts.MaxMessageSize, Suite: suite, Now: opts.Now},
		opts:         opts,
		createdAt:    now,
		lastActivity: now,
	}
	return s
}

// ID returns the 16-byte session identifier agreed during the handshake.
func (s *Session) ID() [keyschedule.SessionIDSize]byte {
	return s.id
}

// PeerID returns the peer this session belongs to.
func (s *Session) PeerID() string {
	return s.peerID
}

// Info returns a snapshot of the session counters.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Info{
		SessionID:        s.id,
		PeerID:           s.peerID,
		CreatedAt:        s.createdAt,
		LastActivity:     s.lastActivity,
		MessagesSent:     s.messagesSent,
		MessagesReceived: s.messagesReceived,
		BytesSent:        s.bytesSent,
		BytesReceived:    s.bytesReceived,
	}
}

// IdleSince returns the last activity timestamp.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Close wipes the session keys. Further operations fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	zeroize.Key(&s.keys.TXKey)
	zeroize.Key(&s.keys.RXKey)
	s.reassembler.clear()
}

// Encrypt fragments (when needed) and seals an application payload into one
// or more wire records.
func (s *Session) Encrypt(payload []byte) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if uint32(len(payload)) > s.opts.MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds cap of %d",
			protocol.ErrOversizedPayload, len(payload), s.opts.MaxMessageSize)
	}

	maxPlain := s.opts.MTU - protocol.RecordOverhead
	if len(payload) <= maxPlain {
		record, err := s.seal(protocol.MsgTypeData, payload)
		if err != nil {
			return nil, err
		}
		return [][]byte{record}, nil
	}

	return s.sealFragmented(payload, maxPlain)
}

func (s *Session) sealFragmented(payload []byte, maxPlain int) ([][]byte, error) {
	chunkSize := maxPlain - protocol.FragmentHeaderSize
	total := (len(payload) + chunkSize - 1) / chunkSize
	if total > 0xFFFF {
		return nil, fmt.Errorf("%w: payload needs %d fragments", protocol.ErrOversizedPayload, total)
	}

	idBytes, err := aead.RandomBytes(8)
	if err != nil {
		return nil, err
	}
	transferID := binary.BigEndian.Uint64(idBytes)

	records := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(payload) {
			end = len(payload)
		}

		frag := &protocol.Fragment{
			TransferID: transferID,
			Index:      uint16(i),
			Total:      uint16(total),
			Data:       payload[start:end],
		}

		record, err := s.seal(protocol.MsgTypeFragment, frag.Encode())
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// seal encrypts one plaintext into a wire record. Caller holds s.mu.
func (s *Session) seal(msgType byte, plaintext []byte) ([]byte, error) {
	if s.txSeq > s.opts.MaxRecords {
		return nil, ErrSequenceExhausted
	}

	header := &protocol.RecordHeader{
		Version:       protocol.ProtocolVersion,
		MsgType:       msgType,
		CipherSuite:   s.suite,
		MessageID:     s.txSeq,
		PayloadLength: uint32(len(plaintext)),
		Timestamp:     s.opts.now().Unix(),
	}
	headerBytes := header.Encode()

	var nonce [protocol.RecordNonceSize]byte
	copy(nonce[:4], s.keys.TXNoncePrefix[:])
	binary.BigEndian.PutUint64(nonce[4:], s.txSeq)

	ciphertext, err := aead.Seal(s.keys.TXKey[:], nonce[:], headerBytes, plaintext)
	if err != nil {
		return nil, err
	}

	s.txSeq++
	s.messagesSent++
	s.bytesSent += uint64(len(plaintext))
	s.lastActivity = s.opts.now()

	record := &protocol.Record{Header: header, Nonce: nonce, Ciphertext: ciphertext}
	return record.Encode(), nil
}

// Decrypt validates, opens and reassembles one inbound record. The result is
// nil when the record was a fragment of a still-incomplete transfer; the
// payload is returned once the final fragment lands.
func (s *Session) Decrypt(data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	record, err := protocol.DecodeRecord(data)
	if err != nil {
		return nil, err
	}

	// Cheap checks before any cryptographic work
	if err := s.validator.ValidateRecordHeader(record.Header, protocol.MsgTypeData, protocol.MsgTypeFragment); err != nil {
		return nil, err
	}

	seq := record.Header.MessageID
	if !s.window.Check(seq) {
		return nil, fmt.Errorf("%w: message_id %d", ErrReplay, seq)
	}

	// The nonce is bound to the message ID; reconstruct it rather than
	// trusting the wire copy.
	var nonce [protocol.RecordNonceSize]byte
	copy(nonce[:4], s.keys.RXNoncePrefix[:])
	binary.BigEndian.PutUint64(nonce[4:], seq)

	plaintext, err := aead.Open(s.keys.RXKey[:], nonce[:], record.Header.Encode(), record.Ciphertext)
	if err != nil {
		return nil, err
	}

	// Only an authenticated record advances the window
	s.window.Update(seq)
	s.messagesReceived++
	s.bytesReceived += uint64(len(plaintext))
	s.lastActivity = s.opts.now()

	if record.Header.MsgType == protocol.MsgTypeData {
		if plaintext == nil {
			// Distinguish an empty payload from a buffered fragment
			plaintext = []byte{}
		}
		return plaintext, nil
	}

	frag, err := protocol.DecodeFragment(plaintext)
	if err != nil {
		return nil, err
	}

	return s.reassembler.add(frag)
}

// NoteSecurityFailure records an auth or replay failure and returns how many
// occurred inside the sliding window. The manager closes the session when
// the count crosses the attack threshold.
func (s *Session) NoteSecurityFailure(window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now()
	cutoff := now.Add(-window)

	kept := s.failures[:0]
	for _, t := range s.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.failures = append(kept, now)

	return len(s.failures)
}

// ExpiredTransfers reports and forgets transfers that outlived the
// reassembly TTL.
func (s *Session) ExpiredTransfers() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reassembler.expire()
}
