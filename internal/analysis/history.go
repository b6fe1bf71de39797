// SPDX-License-Identifier: MIT
package analysis

import (
	"sync"
	"time"
)

// HistoryEntry is one recorded analysis frame.
type HistoryEntry struct {
	Offset   time.Duration `json:"offset"` // Time since the history was created.
	Partials Snapshot      `json:"partials"`
}

// History is a bounded FIFO of analysis frames for spectrogram display.
// Capacity is fixed at construction; the oldest entry is evicted first.
type History struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	head    int
	count   int
	start   time.Time
	now     func() time.Time
}

// NewHistory returns a History holding up to capacity frames. A capacity of
// zero disables recording.
func NewHistory(capacity int) *History {
	return newHistoryWithClock(capacity, time.Now)
}

func newHistoryWithClock(capacity int, now func() time.Time) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{
		entries: make([]HistoryEntry, capacity),
		start:   now(),
		now:     now,
	}
}

// Capacity returns the fixed number of frames kept.
func (h *History) Capacity() int { return len(h.entries) }

// Len returns the number of frames currently held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Record appends a frame stamped with the time since creation. The snapshot
// must not be modified afterwards.
func (h *History) Record(s Snapshot) {
	if len(h.entries) == 0 {
		return
	}
	offset := h.now().Sub(h.start)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.head] = HistoryEntry{Offset: offset, Partials: s}
	h.head = (h.head + 1) % len(h.entries)
	if h.count < len(h.entries) {
		h.count++
	}
}

// Entries returns the held frames, oldest first.
func (h *History) Entries() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HistoryEntry, h.count)
	start := (h.head - h.count + len(h.entries)) % max(len(h.entries), 1)
	for i := range out {
		out[i] = h.entries[(start+i)%len(h.entries)]
	}
	return out
}

// Latest returns the newest frame.
func (h *History) Latest() (HistoryEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return HistoryEntry{}, false
	}
	return h.entries[(h.head-1+len(h.entries))%len(h.entries)], true
}
