// Package store holds the current sensor snapshot. Replacement publishes a
// fully built snapshot through an atomic pointer, so readers see either the
// previous snapshot or the new one, never a partially written state.
package store

import (
	"sync/atomic"

	"enginewatch/sensor"
)

// Store is the single in-memory holder of the latest snapshot. It starts
// empty and is only ever replaced wholesale.
type Store struct {
	current atomic.Pointer[sensor.Snapshot]
}

// New returns an empty store.
func New() *Store {
	s := &Store{}
	empty := sensor.Snapshot{}
	s.current.Store(&empty)
	return s
}

// Read returns the current snapshot. Callers must treat it as read-only.
func (s *Store) Read() sensor.Snapshot {
	if s == nil {
		return sensor.Snapshot{}
	}
	p := s.current.Load()
	if p == nil {
		return sensor.Snapshot{}
	}
	return *p
}

// Replace swaps in snap as the current snapshot. A nil snapshot is stored as
// an empty one.
func (s *Store) Replace(snap sensor.Snapshot) {
	if s == nil {
		return
	}
	if snap == nil {
		snap = sensor.Snapshot{}
	}
	s.current.Store(&snap)
}
