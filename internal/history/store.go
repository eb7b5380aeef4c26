package history

import (
	"fmt"
	"sync"
	"sync/atomic"

	"fee-tracker/internal/fees"
)

// DefaultCapacity is the number of snapshots retained when no capacity is configured.
const DefaultCapacity = 100

// Store is a fixed-capacity window of fee snapshots with FIFO eviction.
//
// Entries are appended to an arena twice the capacity. Each push publishes
// the newest window as a slice that is never written again, so readers load
// it without locking. When the arena fills, the window moves to a fresh
// arena, which keeps pushes amortised O(1).
type Store struct {
	capacity int

	mu    sync.Mutex // serialises writers
	arena []fees.Snapshot
	next  int // next free arena slot
	view  atomic.Pointer[[]fees.Snapshot]
}

// New allocates a store holding at most capacity snapshots.
func New(capacity int) (*Store, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("history capacity must be at least 1, got %d", capacity)
	}
	s := &Store{
		capacity: capacity,
		arena:    make([]fees.Snapshot, 2*capacity),
	}
	empty := make([]fees.Snapshot, 0)
	s.view.Store(&empty)
	return s, nil
}

// Push appends snap at the tail, dropping the oldest entry when full.
func (s *Store) Push(snap fees.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next == len(s.arena) {
		fresh := make([]fees.Snapshot, len(s.arena))
		s.next = copy(fresh, s.load())
		s.arena = fresh
	}
	s.arena[s.next] = snap
	s.next++

	start := max(s.next-s.capacity, 0)
	window := s.arena[start:s.next:s.next]
	s.view.Store(&window)
}

// Snapshot returns a copy of the retained sequence, oldest first.
func (s *Store) Snapshot() []fees.Snapshot {
	return tail(s.load(), -1)
}

// Recent returns up to n of the newest snapshots, oldest first.
func (s *Store) Recent(n int) []fees.Snapshot {
	return tail(s.load(), max(n, 0))
}

// Latest returns the most recently pushed snapshot. ok is false while empty.
func (s *Store) Latest() (snap fees.Snapshot, ok bool) {
	cur := s.load()
	if len(cur) == 0 {
		return fees.Snapshot{}, false
	}
	return cur[len(cur)-1], true
}

// Len reports how many snapshots are retained.
func (s *Store) Len() int {
	return len(s.load())
}

// Capacity is fixed for the store's lifetime.
func (s *Store) Capacity() int {
	return s.capacity
}

// load returns the published view. It must not be modified.
func (s *Store) load() []fees.Snapshot {
	return *s.view.Load()
}

// tail copies the newest n entries of view; a negative n copies all of them.
func tail(view []fees.Snapshot, n int) []fees.Snapshot {
	if n < 0 || n > len(view) {
		n = len(view)
	}
	out := make([]fees.Snapshot, n)
	copy(out, view[len(view)-n:])
	return out
}
