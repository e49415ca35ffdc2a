package session

import (
	"testing"
)

// TestReplayWindowAcceptsFreshSequence tests monotonically increasing IDs
func TestReplayWindowAcceptsFreshSequence(t *testing.T) {
	w := newReplayWindow()

	for seq := uint64(1); seq <= 100; seq++ {
		if !w.Check(seq) {
			t.Fatalf("Fresh sequence %d rejected", seq)
		}
		w.Update(seq)
	}
}

// TestReplayWindowRejectsDuplicate tests that a marked ID is rejected
func TestReplayWindowRejectsDuplicate(t *testing.T) {
	w := newReplayWindow()

	w.Update(5)
	if w.Check(5) {
		t.Error("Duplicate sequence accepted")
	}
}

// TestReplayWindowAcceptsOutOfOrder tests in-window reordering
func TestReplayWindowAcceptsOutOfOrder(t *testing.T) {
	w := newReplayWindow()

	w.Update(10)
	w.Update(12)

	if !w.Check(11) {
		t.Error("In-window out-of-order sequence rejected")
	}
	w.Update(11)
	if w.Check(11) {
		t.Error("Duplicate of out-of-order sequence accepted")
	}
}

// TestReplayWindowRejectsBelowFloor tests IDs older than the 64-entry window
func TestReplayWindowRejectsBelowFloor(t *testing.T) {
	w := newReplayWindow()

	w.Update(100)

	if w.Check(36) {
		t.Error("Sequence at the window floor accepted")
	}
	if !w.Check(37) {
		t.Error("Oldest in-window sequence rejected")
	}
}

// TestReplayWindowLargeJump tests a jump beyond the window width
func TestReplayWindowLargeJump(t *testing.T) {
	w := newReplayWindow()

	w.Update(1)
	w.Update(1000)

	if w.Check(1) {
		t.Error("Ancient sequence accepted after window slid")
	}
	if !w.Check(999) {
		t.Error("In-window sequence rejected after jump")
	}
}

// TestReplayWindowRejectsZero tests that message ID zero is never valid
func TestReplayWindowRejectsZero(t *testing.T) {
	w := newReplayWindow()

	if w.Check(0) {
		t.Error("Sequence zero accepted")
	}
}

// TestReplayWindowCheckDoesNotMutate tests the check/update split: a Check
// must not burn the ID before the record authenticates
func TestReplayWindowCheckDoesNotMutate(t *testing.T) {
	w := newReplayWindow()

	if !w.Check(7) {
		t.Fatal("Fresh sequence rejected")
	}
	if !w.Check(7) {
		t.Error("Second Check of an unmarked sequence rejected; Check mutated state")
	}

	w.Update(7)
	if w.Check(7) {
		t.Error("Marked sequence accepted")
	}
}
