package queue

import (
	"sync"
)

// Slot is a thread-safe single-item buffer. Put replaces whatever is held,
// so only the most recent item survives until it is taken.
type Slot[T any] struct {
	mu       sync.Mutex
	item     T
	full     bool
	replaced int
}

// NewSlot creates a new empty slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{}
}

// Put stores item, discarding any item not yet taken. It reports whether an
// earlier item was discarded.
func (s *Slot[T]) Put(item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	discarded := s.full
	if discarded {
		s.replaced++
	}
	s.item = item
	s.full = true
	return discarded
}

// Take removes and returns the held item. ok is false if the slot is empty.
func (s *Slot[T]) Take() (item T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		var zero T
		return zero, false
	}
	item = s.item
	var zero T
	s.item = zero
	s.full = false
	return item, true
}

// Peek returns the held item without removing it.
func (s *Slot[T]) Peek() (item T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.item, s.full
}

// Full returns true if the slot holds an item.
func (s *Slot[T]) Full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full
}

// Clear drops the held item, if any.
func (s *Slot[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.item = zero
	s.full = false
}

// Replaced returns how many items were discarded by a later Put.
func (s *Slot[T]) Replaced() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaced
}
