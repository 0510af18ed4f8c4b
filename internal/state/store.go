package state

import "sync/atomic"

// Store publishes the latest snapshot to concurrent readers.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding initial.
func NewStore(initial Snapshot) *Store {
	s := &Store{}
	s.current.Store(&initial)
	return s
}

// Load returns the latest snapshot.
func (s *Store) Load() Snapshot {
	if p := s.current.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}

// Publish replaces the latest snapshot.
func (s *Store) Publish(snap Snapshot) {
	s.current.Store(&snap)
}
