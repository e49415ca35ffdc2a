package protocol

import (
	"encoding/binary"
	"fmt"
)

// Fragment wraps one chunk of a payload that exceeded the MTU. Each fragment
// travels in its own independently sealed record; the wrapper is part of the
// record plaintext.
//
// Layout (big-endian): transfer_id(8) | fragment_index(2) | total_fragments(2) | data
type Fragment struct {
	TransferID uint64
	Index      uint16 // zero-based
	Total      uint16 // at least 1
	Data       []byte
}

// Encode serializes the fragment.
func (f *Fragment) Encode() []byte {
	buf := make([]byte, 0, FragmentHeaderSize+len(f.Data))
	buf = binary.BigEndian.AppendUint64(buf, f.TransferID)
	buf = binary.BigEndian.AppendUint16(buf, f.Index)
	buf = binary.BigEndian.AppendUint16(buf, f.Total)
	return append(buf, f.Data...)
}

// DecodeFragment parses a fragment from record plaintext.
func DecodeFragment(data []byte) (*Fragment, error) {
	if len(data) < FragmentHeaderSize {
		return nil, fmt.Errorf("%w: fragment needs %d header bytes, got %d",
			ErrInvalidMessage, FragmentHeaderSize, len(data))
	}

	f := &Fragment{
		TransferID: binary.BigEndian.Uint64(data[0:8]),
		Index:      binary.BigEndian.Uint16(data[8:10]),
		Total:      binary.BigEndian.Uint16(data[10:12]),
		Data:       data[FragmentHeaderSize:],
	}

	if f.Total < 1 {
		return nil, fmt.Errorf("%w: total_fragments must be at least 1", ErrInvalidMessage)
	}
	if f.Index >= f.Total {
		return nil, fmt.Errorf("%w: fragment_index %d out of range for %d fragments",
			ErrInvalidMessage, f.Index, f.Total)
	}

	return f, nil
}
