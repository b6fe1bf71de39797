// SPDX-License-Identifier: MIT
/*
Package ringbuffer provides the fixed-capacity, multi-channel sample store that
sits between the capture callback and the analysis goroutines.

Samples are stored interleaved by frame. A single writer (the capture
callback) advances the head modulo capacity; any number of readers take
chronological copies under a read lock held only for the duration of the copy.

Capacity is fixed at construction. Resizing means building a new Buffer.
*/
package ringbuffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Buffer is a circular store of capacity frames, each channels samples wide.
type Buffer struct {
	mu       sync.RWMutex
	data     []float32
	head     int // next frame to overwrite
	written  int // frames ever written, saturating at capacity
	capacity int
	channels int

	lastActive atomic.Int64 // UnixNano of the last non-empty write
}

// New creates a Buffer holding capacity frames of channels samples. Both are
// clamped to at least 1.
func New(capacity, channels int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	if channels < 1 {
		channels = 1
	}
	b := &Buffer{
		data:     make([]float32, capacity*channels),
		capacity: capacity,
		channels: channels,
	}
	b.lastActive.Store(time.Now().UnixNano())
	return b
}

// Capacity returns the capacity in frames.
func (b *Buffer) Capacity() int { return b.capacity }

// Channels returns the number of interleaved channels.
func (b *Buffer) Channels() int { return b.channels }

// Len returns the number of valid frames, at most Capacity.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.written
}

// Push writes a single frame. Missing channels are written as zero and extra
// values are ignored.
func (b *Buffer) Push(frame []float32) {
	b.mu.Lock()
	off := b.head * b.channels
	for ch := 0; ch < b.channels; ch++ {
		var v float32
		if ch < len(frame) {
			v = frame[ch]
		}
		b.data[off+ch] = v
	}
	b.advance(1)
	b.mu.Unlock()
	b.touch()
}

// PushBatch writes interleaved frames. A trailing partial frame is dropped.
// When the batch holds more frames than the capacity, only the newest
// capacity frames are kept.
func (b *Buffer) PushBatch(values []float32) {
	frames := len(values) / b.channels
	if frames == 0 {
		return
	}
	if frames > b.capacity {
		values = values[(frames-b.capacity)*b.channels:]
		frames = b.capacity
	}

	b.mu.Lock()
	for f := 0; f < frames; {
		// Copy the longest contiguous run up to the end of the store.
		run := min(frames-f, b.capacity-b.head)
		n := run * b.channels
		copy(b.data[b.head*b.channels:], values[f*b.channels:f*b.channels+n])
		b.advance(run)
		f += run
	}
	b.mu.Unlock()
	b.touch()
}

// PushSelected de-interleaves a device buffer of deviceChannels channels and
// stores only the selected device channels, in selection order. Selections out
// of range are written as silence.
func (b *Buffer) PushSelected(in []float32, deviceChannels int, selected []int) {
	if deviceChannels < 1 {
		return
	}
	frames := len(in) / deviceChannels
	if frames == 0 {
		return
	}
	if frames > b.capacity {
		in = in[(frames-b.capacity)*deviceChannels:]
		frames = b.capacity
	}

	b.mu.Lock()
	for f := 0; f < frames; f++ {
		src := in[f*deviceChannels : (f+1)*deviceChannels]
		off := b.head * b.channels
		for ch := 0; ch < b.channels; ch++ {
			var v float32
			if ch < len(selected) && selected[ch] >= 0 && selected[ch] < deviceChannels {
				v = src[selected[ch]]
			}
			b.data[off+ch] = v
		}
		b.advance(1)
	}
	b.mu.Unlock()
	b.touch()
}

// advance moves the head by n frames. Callers hold the write lock.
func (b *Buffer) advance(n int) {
	b.head = (b.head + n) % b.capacity
	b.written = min(b.written+n, b.capacity)
}

func (b *Buffer) touch() {
	b.lastActive.Store(time.Now().UnixNano())
}

// GetLatest returns a new interleaved slice holding the count most recent
// frames in chronological order. A count above the capacity yields the whole
// store, including frames never written (zeros) when the buffer is not full.
func (b *Buffer) GetLatest(count int) []float32 {
	if count > b.capacity {
		count = b.capacity
	}
	if count <= 0 {
		return []float32{}
	}
	out := make([]float32, count*b.channels)
	b.copyLatest(out, count)
	return out
}

// GetLatestInto fills dst with the most recent len(dst)/Channels frames and
// returns the number of frames copied. It does not allocate.
func (b *Buffer) GetLatestInto(dst []float32) int {
	count := min(len(dst)/b.channels, b.capacity)
	if count <= 0 {
		return 0
	}
	b.copyLatest(dst[:count*b.channels], count)
	return count
}

// Snapshot returns the whole store in chronological order.
func (b *Buffer) Snapshot() []float32 {
	return b.GetLatest(b.capacity)
}

func (b *Buffer) copyLatest(dst []float32, count int) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := (b.head - count + b.capacity) % b.capacity
	if start+count <= b.capacity {
		copy(dst, b.data[start*b.channels:(start+count)*b.channels])
		return
	}
	first := (b.capacity - start) * b.channels
	copy(dst[:first], b.data[start*b.channels:])
	copy(dst[first:], b.data[:count*b.channels-first])
}

// LastActivity returns the time of the most recent non-empty write.
func (b *Buffer) LastActivity() time.Time {
	return time.Unix(0, b.lastActive.Load())
}

// IdleFor reports how long the buffer has gone without writes as of now.
func (b *Buffer) IdleFor(now time.Time) time.Duration {
	return now.Sub(b.LastActivity())
}
