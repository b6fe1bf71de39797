package config

import (
	"strings"

	"partialsynth/pkg/bitint"
)

// BufferPolicy is the platform dependent stream buffering decision.
type BufferPolicy struct {
	FramesPerBuffer int
	HighLatency     bool // Use the device's default high latency instead of low.
}

// ResolveBufferPolicy picks frames-per-buffer for goos at sampleRate. Linux
// audio stacks (ALSA through PulseAudio or PipeWire) underrun with small
// buffers, so they always get 2048 frames at high latency.
func ResolveBufferPolicy(goos string, sampleRate float64) BufferPolicy {
	if goos == "linux" {
		return BufferPolicy{FramesPerBuffer: 2048, HighLatency: true}
	}

	switch int(sampleRate) {
	case 44100, 48000:
		return BufferPolicy{FramesPerBuffer: 1024}
	case 96000:
		return BufferPolicy{FramesPerBuffer: 2048}
	}

	// Keep each callback at roughly 20ms or more.
	frames := 1024
	for float64(frames*2) <= sampleRate/50 {
		frames *= 2
	}
	return BufferPolicy{FramesPerBuffer: frames}
}

// OptimalRingFrames returns a ring capacity covering 50ms of audio plus a few
// periods of the highest audible frequency, rounded to a power of two.
func OptimalRingFrames(sampleRate float64) int {
	base := int(sampleRate / 20)
	extra := int(sampleRate/20000) * 4
	return bitint.ClampPowerOfTwo((base+extra)/2, MinRingFrames, MaxRingFrames)
}

// Resolve fills the zero-valued audio fields from the platform policy. It is
// called once at startup with runtime.GOOS.
func (c *Config) Resolve(goos string) BufferPolicy {
	policy := ResolveBufferPolicy(goos, c.Audio.SampleRate)
	if c.Audio.FramesPerBuffer == 0 {
		c.Audio.FramesPerBuffer = policy.FramesPerBuffer
	} else {
		policy.FramesPerBuffer = c.Audio.FramesPerBuffer
	}
	if c.Audio.LowLatency {
		policy.HighLatency = false
	}
	if c.Audio.RingFrames == 0 {
		c.Audio.RingFrames = OptimalRingFrames(c.Audio.SampleRate)
	}
	// The analysis window must fit into the ring.
	if c.Audio.RingFrames < c.Audio.FramesPerBuffer {
		c.Audio.RingFrames = bitint.NextPowerOfTwo(c.Audio.FramesPerBuffer)
	}
	return policy
}

// Window names accepted by analysis.window_type, keyed in lower case.
var windowNames = map[string]struct{}{
	"blackmanharris":  {},
	"hann":            {},
	"hamming":         {},
	"blackman":        {},
	"blackmannuttall": {},
	"nuttall":         {},
	"bartletthann":    {},
	"lanczos":         {},
	"rectangular":     {},
}

func normaliseWindowName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.NewReplacer("-", "", "_", "", " ", "").Replace(name)
	if name == "" {
		return "blackmanharris"
	}
	return name
}

// WindowName returns the canonical lower-case key for a configured window name.
func WindowName(name string) string {
	return normaliseWindowName(name)
}
