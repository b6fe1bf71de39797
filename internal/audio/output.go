// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"partialsynth/internal/config"
	applog "partialsynth/internal/log"
)

// Renderer fills an interleaved stereo buffer. *resynth.Synth implements it.
type Renderer interface {
	Process(out []float32)
	SetSampleRate(rate float64)
}

// Tap receives a copy of every rendered buffer. It must not block.
type Tap interface {
	Write(samples []float32)
}

// RateTap is a Tap bound to one sample rate. *Recorder implements it.
type RateTap interface {
	Tap
	SampleRate() float64
}

// Output opens stereo output streams driven by a Renderer.
type Output struct {
	renderer    Renderer
	tap         atomic.Pointer[tapHolder]
	device      *portaudio.DeviceInfo
	frames      int
	highLatency bool
	stall       time.Duration

	heartbeat Heartbeat
	callbacks atomic.Uint64
}

type tapHolder struct{ tap Tap }

// NewOutput looks up the output device from cfg.
func NewOutput(cfg config.AudioConfig, policy config.BufferPolicy, stall time.Duration, renderer Renderer) (*Output, error) {
	device, err := OutputDevice(cfg.OutputDevice)
	if err != nil {
		return nil, err
	}
	if device.MaxOutputChannels < config.OutputChannels {
		return nil, fmt.Errorf("%w: %s has %d output channels, need %d",
			ErrNoDevice, device.Name, device.MaxOutputChannels, config.OutputChannels)
	}
	return newOutput(renderer, device, policy, stall), nil
}

func newOutput(renderer Renderer, device *portaudio.DeviceInfo, policy config.BufferPolicy, stall time.Duration) *Output {
	return &Output{
		renderer:    renderer,
		device:      device,
		frames:      policy.FramesPerBuffer,
		highLatency: policy.HighLatency,
		stall:       stall,
	}
}

// SetTap installs or, with nil, removes the output tap.
func (o *Output) SetTap(t Tap) {
	if t == nil {
		o.tap.Store(nil)
		return
	}
	o.tap.Store(&tapHolder{tap: t})
}

// Name implements Opener.
func (o *Output) Name() string { return "output" }

// Supports implements Opener.
func (o *Output) Supports(rate float64) bool {
	p := streamParams(nil, o.device, 0, config.OutputChannels, rate, o.frames, o.highLatency)
	return portaudio.IsFormatSupported(p, o.process) == nil
}

// Open implements Opener. The renderer is retuned to rate before the
// stream exists, so no callback can observe the change.
func (o *Output) Open(rate float64) (Stream, error) {
	o.retune(rate)
	p := streamParams(nil, o.device, 0, config.OutputChannels, rate, o.frames, o.highLatency)
	stream, err := portaudio.OpenStream(p, o.process)
	if err != nil {
		return nil, fmt.Errorf("opening output stream on %s: %w", o.device.Name, err)
	}
	return &paStream{stream: stream, last: o.heartbeat.Last, stall: o.stall}, nil
}

// retune sets the renderer rate and removes a RateTap written at another
// rate. It runs while no stream exists.
func (o *Output) retune(rate float64) {
	o.renderer.SetSampleRate(rate)
	h := o.tap.Load()
	if h == nil {
		return
	}
	if rt, ok := h.tap.(RateTap); ok && rt.SampleRate() != rate {
		applog.Warnf("Output: stream reopened at %.0f Hz, stopping %.0f Hz tap", rate, rt.SampleRate())
		o.tap.Store(nil)
	}
}

// Tapped reports whether a tap is installed.
func (o *Output) Tapped() bool { return o.tap.Load() != nil }

// Callbacks returns the number of output callbacks served.
func (o *Output) Callbacks() uint64 { return o.callbacks.Load() }

// process is the output callback.
func (o *Output) process(out []float32) {
	o.renderer.Process(out)
	if h := o.tap.Load(); h != nil {
		h.tap.Write(out)
	}
	o.callbacks.Add(1)
	o.heartbeat.Beat(time.Now())
}
