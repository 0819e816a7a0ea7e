package session

import (
	"errors"
	"sync"
)

var ErrSlotOccupied = errors.New("session: response slot already occupied")

// ResponseSlot is a one-shot completion signal for the single outstanding
// correlated request a session may have. Occupancy is enforced by Arm
// returning an error, not by caller convention.
type ResponseSlot struct {
	mu sync.Mutex
	ch chan string
}

// Arm claims the slot and returns the channel the reply will arrive on.
// A second Arm before Deliver or Disarm fails with ErrSlotOccupied.
func (s *ResponseSlot) Arm() (<-chan string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		return nil, ErrSlotOccupied
	}
	s.ch = make(chan string, 1)
	return s.ch, nil
}

// Deliver hands a payload to the armed waiter and frees the slot.
// Returns false when nobody is waiting; the payload is dropped.
func (s *ResponseSlot) Deliver(payload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return false
	}
	s.ch <- payload
	s.ch = nil
	return true
}

// Disarm frees the slot without delivering, e.g. after a timeout.
func (s *ResponseSlot) Disarm() {
	s.mu.Lock()
	s.ch = nil
	s.mu.Unlock()
}
