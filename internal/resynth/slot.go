// SPDX-License-Identifier: MIT
package resynth

import "sync/atomic"

// UpdateSlot is a single-entry, latest-wins mailbox between the producer
// and the audio thread. Push overwrites any update the consumer has not
// taken yet.
type UpdateSlot struct {
	pending atomic.Pointer[SynthUpdate]
	pushed  atomic.Uint64
	dropped atomic.Uint64
	taken   atomic.Uint64
}

// Push stores u as the pending update and reports whether an older pending
// update was discarded. It never blocks.
func (s *UpdateSlot) Push(u *SynthUpdate) bool {
	s.pushed.Add(1)
	if old := s.pending.Swap(u); old != nil {
		s.dropped.Add(1)
		return true
	}
	return false
}

// Take removes and returns the pending update, or nil.
func (s *UpdateSlot) Take() *SynthUpdate {
	u := s.pending.Swap(nil)
	if u != nil {
		s.taken.Add(1)
	}
	return u
}

// SlotStats are cumulative slot counters.
type SlotStats struct {
	Pushed  uint64
	Dropped uint64
	Taken   uint64
}

// Stats returns the cumulative counters.
func (s *UpdateSlot) Stats() SlotStats {
	return SlotStats{Pushed: s.pushed.Load(), Dropped: s.dropped.Load(), Taken: s.taken.Load()}
}
