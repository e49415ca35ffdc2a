package protocol

import (
	"encoding/binary"
	"fmt"
)

// RecordHeader is the fixed 24-byte prefix of every data record. It travels
// in the clear but is bound into the AEAD as associated data, so any header
// tampering fails tag verification.
//
// Layout (big-endian):
//
//	version(2) | msg_type(1) | cipher_suite(1) | message_id(8) | payload_length(4) | timestamp(8)
type RecordHeader struct {
	Version       uint16
	MsgType       byte
	CipherSuite   byte
	MessageID     uint64
	PayloadLength uint32
	Timestamp     int64 // Unix seconds
}

// Encode serializes the header to its 24-byte wire form.
func (h *RecordHeader) Encode() []byte {
	buf := make([]byte, RecordHeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	buf[2] = h.MsgType
	buf[3] = h.CipherSuite
	binary.BigEndian.PutUint64(buf[4:12], h.MessageID)
	binary.BigEndian.PutUint32(buf[12:16], h.PayloadLength)
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.Timestamp))
	return buf
}

// DecodeRecordHeader parses the 24-byte header. Structural parsing only; the
// Validator applies semantic checks before any cryptographic work.
func DecodeRecordHeader(data []byte) (*RecordHeader, error) {
	if len(data) < RecordHeaderSize {
		return nil, fmt.Errorf("%w: record header needs %d bytes, got %d",
			ErrInvalidMessage, RecordHeaderSize, len(data))
	}

	return &RecordHeader{
		Version:       binary.BigEndian.Uint16(data[0:2]),
		MsgType:       data[2],
		CipherSuite:   data[3],
		MessageID:     binary.BigEndian.Uint64(data[4:12]),
		PayloadLength: binary.BigEndian.Uint32(data[12:16]),
		Timestamp:     int64(binary.BigEndian.Uint64(data[16:24])),
	}, nil
}

// Record is a parsed data record: header, nonce, and ciphertext (which
// includes the trailing GCM tag).
type Record struct {
	Header     *RecordHeader
	Nonce      [RecordNonceSize]byte
	Ciphertext []byte // payload ciphertext || 16-byte tag
}

// Encode serializes the record to its wire form:
// header(24) | nonce(12) | ciphertext+tag.
func (r *Record) Encode() []byte {
	buf := make([]byte, 0, RecordHeaderSize+RecordNonceSize+len(r.Ciphertext))
	buf = append(buf, r.Header.Encode()...)
	buf = append(buf, r.Nonce[:]...)
	buf = append(buf, r.Ciphertext...)
	return buf
}

// DecodeRecord parses a wire record. The ciphertext length must equal the
// declared payload length plus the tag, so a mismatched header never reaches
// the AEAD.
func DecodeRecord(data []byte) (*Record, error) {
	header, err := DecodeRecordHeader(data)
	if err != nil {
		return nil, err
	}

	rest := data[RecordHeaderSize:]
	if len(rest) < RecordNonceSize+RecordTagSize {
		return nil, fmt.Errorf("%w: record body of %d bytes is too short", ErrInvalidMessage, len(rest))
	}

	rec := &Record{Header: header}
	copy(rec.Nonce[:], rest[:RecordNonceSize])
	rec.Ciphertext = rest[RecordNonceSize:]

	expected := int(header.PayloadLength) + RecordTagSize
	if len(rec.Ciphertext) != expected {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes, header declares %d",
			ErrInvalidMessage, len(rec.Ciphertext), expected)
	}

	return rec, nil
}
