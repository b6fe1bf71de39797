// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func snapshotAt(freq float64) Snapshot {
	return Snapshot{{{Frequency: freq, Amplitude: 1}}}
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Unix(1000, 0)}
	h := newHistoryWithClock(3, clock.now)

	for i := 1; i <= 5; i++ {
		clock.advance(100 * time.Millisecond)
		h.Record(snapshotAt(float64(i)))
	}

	entries := h.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, 3, h.Len())
	for i, e := range entries {
		assert.Equal(t, float64(i+3), e.Partials[0][0].Frequency)
		assert.Equal(t, time.Duration(i+3)*100*time.Millisecond, e.Offset)
	}

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, 5.0, latest.Partials[0][0].Frequency)
}

func TestHistoryPartiallyFilled(t *testing.T) {
	t.Parallel()

	h := NewHistory(8)
	_, ok := h.Latest()
	assert.False(t, ok)

	h.Record(snapshotAt(1))
	h.Record(snapshotAt(2))
	entries := h.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 1.0, entries[0].Partials[0][0].Frequency)
	assert.LessOrEqual(t, entries[0].Offset, entries[1].Offset)
}

func TestHistoryZeroCapacity(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	h.Record(snapshotAt(1))
	assert.Zero(t, h.Len())
	assert.Empty(t, h.Entries())
}

func TestStorePublish(t *testing.T) {
	t.Parallel()

	s := NewStore(2, 4)
	first := s.Latest()
	require.NotNil(t, first)
	assert.True(t, first.Partials.Empty())
	assert.Zero(t, first.Seq)

	f := s.Publish(snapshotAt(440))
	assert.Equal(t, uint64(1), f.Seq)
	assert.Same(t, f, s.Latest())
	assert.Equal(t, uint64(2), s.Publish(snapshotAt(880)).Seq)
}
