// SPDX-License-Identifier: MIT
package audio

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partialsynth/internal/analysis"
	"partialsynth/internal/config"
	"partialsynth/internal/resynth"
	"partialsynth/internal/ringbuffer"
)

var (
	_ Renderer = (*resynth.Synth)(nil)
	_ RateTap  = (*Recorder)(nil)
)

func TestHeartbeat(t *testing.T) {
	t.Parallel()

	var h Heartbeat
	assert.True(t, h.Last().IsZero())
	now := time.Unix(42, 0)
	h.Beat(now)
	assert.True(t, h.Last().Equal(now))
}

func TestAlive(t *testing.T) {
	t.Parallel()

	started := time.Unix(100, 0)
	stall := time.Second

	tests := []struct {
		desc string
		now  time.Time
		last time.Time
		want bool
	}{
		{"grace after start", started.Add(500 * time.Millisecond), time.Time{}, true},
		{"never beat", started.Add(2 * time.Second), time.Time{}, false},
		{"recent beat", started.Add(10 * time.Second), started.Add(9500 * time.Millisecond), true},
		{"stale beat", started.Add(10 * time.Second), started.Add(8 * time.Second), false},
		{"beat before restart", started.Add(100 * time.Millisecond), started.Add(-time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, alive(tt.now, tt.last, started, stall))
		})
	}
}

func TestDeviceChannels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		desc     string
		selected []int
		max      int
		want     int
		wantErr  bool
	}{
		{"first channel", []int{0}, 2, 1, false},
		{"second only", []int{1}, 2, 2, false},
		{"reordered", []int{3, 0}, 4, 4, false},
		{"out of range", []int{0, 2}, 2, 0, true},
		{"negative", []int{-1}, 2, 0, true},
		{"empty", nil, 2, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, err := DeviceChannels(tt.selected, tt.max)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrChannelOutOfRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCaptureCallbackSelectsChannels(t *testing.T) {
	t.Parallel()

	ring := ringbuffer.New(8, 2)
	c := newCapture(ring, nil, []int{2, 0}, 3, config.BufferPolicy{FramesPerBuffer: 4}, time.Second)

	// Three device channels, four frames: value = frame*10 + channel.
	in := []float32{0, 1, 2, 10, 11, 12, 20, 21, 22, 30, 31, 32}
	c.process(in)

	assert.Equal(t, []float32{2, 0, 12, 10, 22, 20, 32, 30}, ring.GetLatest(4))
	assert.Equal(t, uint64(1), c.Callbacks())
	assert.Less(t, ring.IdleFor(time.Now()), time.Second)
}

func TestCaptureCallbackDoesNotAllocate(t *testing.T) {
	ring := ringbuffer.New(2048, 1)
	c := newCapture(ring, nil, []int{1}, 2, config.BufferPolicy{FramesPerBuffer: 512}, time.Second)
	in := make([]float32, 512*2)

	allocs := testing.AllocsPerRun(100, func() {
		c.process(in)
	})
	assert.Zero(t, allocs)
}

type captureTap struct{ buffers int }

func (c *captureTap) Write([]float32) { c.buffers++ }

func newTestOutput(t *testing.T) (*Output, *resynth.UpdateSlot) {
	t.Helper()
	p := resynth.Params{Gain: 1, FreqScale: 1, UpdateRate: 0.1}
	slot := &resynth.UpdateSlot{}
	synth := resynth.NewSynth(1, 2048, testSampleRate, p, slot)
	slot.Push(&resynth.SynthUpdate{
		Seq:      1,
		Partials: analysis.Snapshot{{{Frequency: 440, Amplitude: 50}}},
		Params:   p,
	})
	return newOutput(synth, nil, config.BufferPolicy{FramesPerBuffer: 512}, time.Second), slot
}

func TestOutputCallback(t *testing.T) {
	t.Parallel()

	o, slot := newTestOutput(t)
	tap := &captureTap{}
	o.SetTap(tap)

	out := make([]float32, 512*config.OutputChannels)
	before := time.Now()
	o.process(out)

	assert.Nil(t, slot.Take(), "update consumed by the synth")
	assert.Equal(t, 1, tap.buffers)
	assert.Equal(t, uint64(1), o.Callbacks())
	assert.False(t, o.heartbeat.Last().Before(before))

	o.SetTap(nil)
	o.process(out)
	assert.Equal(t, 1, tap.buffers)
}

func TestOutputRetuneStopsRecorderAtOtherRate(t *testing.T) {
	t.Parallel()

	o, _ := newTestOutput(t)
	r, err := NewRecorder(filepath.Join(t.TempDir(), "out.wav"), testSampleRate, 16)
	require.NoError(t, err)
	o.SetTap(r)

	out := make([]float32, 512*config.OutputChannels)
	o.retune(testSampleRate)
	require.True(t, o.Tapped())
	o.process(out)

	// A fallback reopen at 44.1 kHz must not write into a 48 kHz file.
	o.retune(44100)
	assert.False(t, o.Tapped())
	o.process(out)

	require.NoError(t, r.Close())
	assert.Equal(t, uint64(512), r.Frames())
	assert.Equal(t, uint32(testSampleRate), decodeWAV(t, r.file.Name()).SampleRate)
}

func TestOutputRetuneKeepsPlainTap(t *testing.T) {
	t.Parallel()

	o, _ := newTestOutput(t)
	tap := &captureTap{}
	o.SetTap(tap)
	o.retune(44100)
	assert.True(t, o.Tapped())
}

func TestOutputCallbackDoesNotAllocate(t *testing.T) {
	o, _ := newTestOutput(t)
	o.SetTap(&captureTap{})
	out := make([]float32, 512*config.OutputChannels)

	allocs := testing.AllocsPerRun(100, func() {
		o.process(out)
	})
	assert.Zero(t, allocs)
}
