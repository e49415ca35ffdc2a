package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeEnvelope wraps a handshake message body in the wire envelope:
// magic(4) | version(2) | msg_type(1) | length(4) | body
func EncodeEnvelope(msgType byte, body []byte) []byte {
	buf := make([]byte, 0, EnvelopeSize+len(body))
	buf = append(buf, Magic...)
	buf = binary.BigEndian.AppendUint16(buf, ProtocolVersion)
	buf = append(buf, msgType)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)
	return buf
}

// DecodeEnvelope validates the envelope and returns the message type and
// body. The length field must describe the remaining bytes exactly; a bad
// magic or short buffer is ErrInvalidMessage, a version mismatch is
// ErrUnsupportedVersion, so version probing fails before any allocation.
func DecodeEnvelope(data []byte) (msgType byte, body []byte, err error) {
	if len(data) < EnvelopeSize {
		return 0, nil, fmt.Errorf("%w: %d bytes is shorter than the envelope", ErrInvalidMessage, len(data))
	}

	if !bytes.Equal(data[:4], []byte(Magic)) {
		return 0, nil, fmt.Errorf("%w: bad magic", ErrInvalidMessage)
	}

	version := binary.BigEndian.Uint16(data[4:6])
	if version != ProtocolVersion {
		return 0, nil, fmt.Errorf("%w: got 0x%04x, expected 0x%04x", ErrUnsupportedVersion, version, ProtocolVersion)
	}

	msgType = data[6]
	length := binary.BigEndian.Uint32(data[7:11])

	if length > MaxHandshakeBodySize {
		return 0, nil, fmt.Errorf("%w: body of %d bytes exceeds cap", ErrInvalidMessage, length)
	}

	if uint32(len(data)-EnvelopeSize) != length {
		return 0, nil, fmt.Errorf("%w: length field %d does not match %d body bytes",
			ErrInvalidMessage, length, len(data)-EnvelopeSize)
	}

	return msgType, data[EnvelopeSize:], nil
}
