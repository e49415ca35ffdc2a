package session

import (
	"fmt"
	"time"

	"github.com/b4ae/b4ae/shared/protocol"
)

// transfer is one in-progress reassembly keyed by transfer ID.
type transfer struct {
	total    uint16
	parts    map[uint16][]byte
	received int
	size     int
	started  time.Time
}

// reassembler buffers inbound fragments until every index of a transfer has
// arrived, then concatenates them in index order. Partial transfers expire
// after the TTL; a transfer that grows past the payload cap is fatal for
// that transfer.
type reassembler struct {
	transfers map[uint64]*transfer
	maxSize   uint32
	ttl       time.Duration
	now       func() time.Time
}

func newReassembler(maxSize uint32, ttl time.Duration, now func() time.Time) *reassembler {
	if now == nil {
		now = time.Now
	}
	return &reassembler{
		transfers: make(map[uint64]*transfer),
		maxSize:   maxSize,
		ttl:       ttl,
		now:       now,
	}
}

// add buffers one fragment. Returns the complete payload once the last
// index arrives, nil while the transfer is still partial.
func (r *reassembler) add(frag *protocol.Fragment) ([]byte, error) {
	t, ok := r.transfers[frag.TransferID]
	if ok && r.now().Sub(t.started) > r.ttl {
		delete(r.transfers, frag.TransferID)
		return nil, fmt.Errorf("%w: transfer %d", ErrReassemblyTimeout, frag.TransferID)
	}

	if !ok {
		t = &transfer{
			total:   frag.Total,
			parts:   make(map[uint16][]byte),
			started: r.now(),
		}
		r.transfers[frag.TransferID] = t
	}

	if frag.Total != t.total {
		delete(r.transfers, frag.TransferID)
		return nil, fmt.Errorf("%w: fragment total changed mid-transfer", protocol.ErrInvalidMessage)
	}

	// Duplicate index inside an authenticated transfer: first copy wins
	if _, seen := t.parts[frag.Index]; seen {
		return nil, nil
	}

	if uint32(t.size+len(frag.Data)) > r.maxSize {
		delete(r.transfers, frag.TransferID)
		return nil, fmt.Errorf("%w: transfer %d exceeds %d bytes",
			protocol.ErrOversizedPayload, frag.TransferID, r.maxSize)
	}

	data := make([]byte, len(frag.Data))
	copy(data, frag.Data)
	t.parts[frag.Index] = data
	t.received++
	t.size += len(data)

	if t.received < int(t.total) {
		return nil, nil
	}

	// All indices present: concatenate in order
	payload := make([]byte, 0, t.size)
	for i := uint16(0); i < t.total; i++ {
		payload = append(payload, t.parts[i]...)
	}
	delete(r.transfers, frag.TransferID)

	return payload, nil
}

// expire drops transfers older than the TTL and returns their IDs.
func (r *reassembler) expire() []uint64 {
	var expired []uint64
	cutoff := r.now().Add(-r.ttl)

	for id, t := range r.transfers {
		if t.started.Before(cutoff) {
			expired = append(expired, id)
			delete(r.transfers, id)
		}
	}

	return expired
}

// clear drops all buffered transfers.
func (r *reassembler) clear() {
	r.transfers = make(map[uint64]*transfer)
}
