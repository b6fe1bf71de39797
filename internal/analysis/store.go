// SPDX-License-Identifier: MIT
package analysis

import (
	"sync/atomic"
	"time"
)

// Frame is a published snapshot with its sequence number.
type Frame struct {
	Seq      uint64
	At       time.Time
	Partials Snapshot
}

// Store publishes the latest snapshot to any number of readers. Readers get
// the same immutable Frame until the next Publish.
type Store struct {
	latest atomic.Pointer[Frame]
	seq    atomic.Uint64
}

// NewStore returns a Store holding an all-zero snapshot.
func NewStore(channels, numPartials int) *Store {
	s := &Store{}
	s.latest.Store(&Frame{At: time.Now(), Partials: NewSnapshot(channels, numPartials)})
	return s
}

// Publish replaces the latest frame. The snapshot must not be modified
// afterwards.
func (s *Store) Publish(snap Snapshot) *Frame {
	f := &Frame{Seq: s.seq.Add(1), At: time.Now(), Partials: snap}
	s.latest.Store(f)
	return f
}

// Latest returns the most recently published frame.
func (s *Store) Latest() *Frame {
	return s.latest.Load()
}
