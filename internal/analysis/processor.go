// SPDX-License-Identifier: MIT
package analysis

// SampleSource provides chronological copies of recent interleaved frames.
// ringbuffer.Buffer implements it.
type SampleSource interface {
	// GetLatestInto fills dst with the newest len(dst)/Channels() frames and
	// returns how many frames were copied.
	GetLatestInto(dst []float32) int
	Channels() int
	Capacity() int
}

// SnapshotSource provides the most recently published partials.
type SnapshotSource interface {
	Latest() *Frame
}

// FrameSink receives every frame the analysis engine publishes. Sinks are
// called on the analysis goroutine and must not block.
type FrameSink interface {
	OnFrame(f *Frame)
}

// Compile-time checks for interface implementations.
var _ SnapshotSource = (*Store)(nil)
