package protocol

import (
	"encoding/binary"
	"fmt"
)

// Handshake message bodies use a fixed canonical encoding: variable-size
// fields carry a big-endian u16 length prefix, fixed-size fields are raw,
// all in declaration order. Signatures cover the canonical bytes of every
// preceding field, so both sides recompute the signed input from the parsed
// message rather than trusting offsets.

// Init is the first handshake message (initiator to responder).
type Init struct {
	Version       uint16
	CipherSuite   byte
	SigPublicKey  []byte // initiator's long-term ML-DSA-87 public key
	ECDHPublicKey []byte // ephemeral X25519 public key
	KEMPublicKey  []byte // ephemeral ML-KEM-1024 public key; empty for SuiteAES256GCM
	Nonce         [HandshakeNonceSize]byte
	Timestamp     int64  // Unix seconds
	Signature     []byte // ML-DSA-87 over SigningInput()
}

// SigningInput returns the canonical bytes of every Init field before the
// signature. This is the exact byte string the initiator signs.
func (m *Init) SigningInput() []byte {
	buf := make([]byte, 0, 16+len(m.SigPublicKey)+len(m.ECDHPublicKey)+len(m.KEMPublicKey)+HandshakeNonceSize)
	buf = binary.BigEndian.AppendUint16(buf, m.Version)
	buf = append(buf, m.CipherSuite)
	buf = appendPrefixed(buf, m.SigPublicKey)
	buf = appendPrefixed(buf, m.ECDHPublicKey)
	buf = appendPrefixed(buf, m.KEMPublicKey)
	buf = append(buf, m.Nonce[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Timestamp))
	return buf
}

// Encode serializes the Init body (without envelope).
func (m *Init) Encode() []byte {
	return appendPrefixed(m.SigningInput(), m.Signature)
}

// DecodeInit parses an Init body.
func DecodeInit(body []byte) (*Init, error) {
	r := reader{data: body}

	m := &Init{}
	var err error
	if m.Version, err = r.uint16(); err != nil {
		return nil, initErr(err)
	}
	if m.CipherSuite, err = r.byte(); err != nil {
		return nil, initErr(err)
	}
	if m.SigPublicKey, err = r.prefixed(); err != nil {
		return nil, initErr(err)
	}
	if m.ECDHPublicKey, err = r.prefixed(); err != nil {
		return nil, initErr(err)
	}
	if m.KEMPublicKey, err = r.prefixed(); err != nil {
		return nil, initErr(err)
	}
	if err = r.fixed(m.Nonce[:]); err != nil {
		return nil, initErr(err)
	}
	var ts uint64
	if ts, err = r.uint64(); err != nil {
		return nil, initErr(err)
	}
	m.Timestamp = int64(ts)
	if m.Signature, err = r.prefixed(); err != nil {
		return nil, initErr(err)
	}
	if err = r.done(); err != nil {
		return nil, initErr(err)
	}

	return m, nil
}

// Response is the second handshake message (responder to initiator).
type Response struct {
	SigPublicKey  []byte // responder's long-term ML-DSA-87 public key
	KEMCiphertext []byte // encapsulated to the initiator's KEM key; empty for SuiteAES256GCM
	ECDHPublicKey []byte // ephemeral X25519 public key
	Nonce         [HandshakeNonceSize]byte
	Timestamp     int64  // Unix seconds
	Signature     []byte // ML-DSA-87 over the running transcript hash
}

// PreSignatureBytes returns the canonical bytes of every Response field
// before the signature. These bytes enter the transcript before the
// responder signs it.
func (m *Response) PreSignatureBytes() []byte {
	buf := make([]byte, 0, 16+len(m.SigPublicKey)+len(m.KEMCiphertext)+len(m.ECDHPublicKey)+HandshakeNonceSize)
	buf = appendPrefixed(buf, m.SigPublicKey)
	buf = appendPrefixed(buf, m.KEMCiphertext)
	buf = appendPrefixed(buf, m.ECDHPublicKey)
	buf = append(buf, m.Nonce[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Timestamp))
	return buf
}

// Encode serializes the Response body (without envelope).
func (m *Response) Encode() []byte {
	return appendPrefixed(m.PreSignatureBytes(), m.Signature)
}

// DecodeResponse parses a Response body.
func DecodeResponse(body []byte) (*Response, error) {
	r := reader{data: body}

	m := &Response{}
	var err error
	if m.SigPublicKey, err = r.prefixed(); err != nil {
		return nil, responseErr(err)
	}
	if m.KEMCiphertext, err = r.prefixed(); err != nil {
		return nil, responseErr(err)
	}
	if m.ECDHPublicKey, err = r.prefixed(); err != nil {
		return nil, responseErr(err)
	}
	if err = r.fixed(m.Nonce[:]); err != nil {
		return nil, responseErr(err)
	}
	var ts uint64
	if ts, err = r.uint64(); err != nil {
		return nil, responseErr(err)
	}
	m.Timestamp = int64(ts)
	if m.Signature, err = r.prefixed(); err != nil {
		return nil, responseErr(err)
	}
	if err = r.done(); err != nil {
		return nil, responseErr(err)
	}

	return m, nil
}

// Complete is the third handshake message (initiator to responder). It
// carries only the confirmation tag derived from the master secret.
type Complete struct {
	ConfirmationTag [ConfirmTagSize]byte
}

// Encode serializes the Complete body (without envelope).
func (m *Complete) Encode() []byte {
	out := make([]byte, ConfirmTagSize)
	copy(out, m.ConfirmationTag[:])
	return out
}

// DecodeComplete parses a Complete body.
func DecodeComplete(body []byte) (*Complete, error) {
	if len(body) != ConfirmTagSize {
		return nil, fmt.Errorf("%w: COMPLETE body must be %d bytes, got %d",
			ErrInvalidMessage, ConfirmTagSize, len(body))
	}

	m := &Complete{}
	copy(m.ConfirmationTag[:], body)
	return m, nil
}

func initErr(err error) error {
	return fmt.Errorf("%w: INIT: %v", ErrInvalidMessage, err)
}

func responseErr(err error) error {
	return fmt.Errorf("%w: RESPONSE: %v", ErrInvalidMessage, err)
}

// appendPrefixed appends a big-endian u16 length prefix followed by the field.
func appendPrefixed(buf, field []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(field)))
	return append(buf, field...)
}

// reader is a cursor over a message body. Every accessor checks remaining
// length before touching the buffer; no read panics on truncated input.
type reader struct {
	data []byte
	off  int
}

func (r *reader) byte() (byte, error) {
	if r.off+1 > len(r.data) {
		return 0, fmt.Errorf("truncated at offset %d", r.off)
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *reader) uint16() (uint16, error) {
	if r.off+2 > len(r.data) {
		return 0, fmt.Errorf("truncated at offset %d", r.off)
	}
	v := binary.BigEndian.Uint16(r.data[r.off : r.off+2])
	r.off += 2
	return v, nil
}

func (r *reader) uint64() (uint64, error) {
	if r.off+8 > len(r.data) {
		return 0, fmt.Errorf("truncated at offset %d", r.off)
	}
	v := binary.BigEndian.Uint64(r.data[r.off : r.off+8])
	r.off += 8
	return v, nil
}

func (r *reader) prefixed() ([]byte, error) {
	length, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if r.off+int(length) > len(r.data) {
		return nil, fmt.Errorf("field of %d bytes truncated at offset %d", length, r.off)
	}
	field := make([]byte, length)
	copy(field, r.data[r.off:r.off+int(length)])
	r.off += int(length)
	return field, nil
}

func (r *reader) fixed(dst []byte) error {
	if r.off+len(dst) > len(r.data) {
		return fmt.Errorf("fixed field of %d bytes truncated at offset %d", len(dst), r.off)
	}
	copy(dst, r.data[r.off:r.off+len(dst)])
	r.off += len(dst)
	return nil
}

func (r *reader) done() error {
	if r.off != len(r.data) {
		return fmt.Errorf("%d trailing bytes", len(r.data)-r.off)
	}
	return nil
}
