// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"partialsynth/internal/config"
	"partialsynth/internal/ringbuffer"
)

// ErrChannelOutOfRange is returned when a selected input channel does not
// exist on the device.
var ErrChannelOutOfRange = errors.New("input channel out of range")

// DeviceChannels returns how many device channels must be opened to read
// every selected channel, or an error if a selection exceeds maxChannels.
func DeviceChannels(selected []int, maxChannels int) (int, error) {
	if len(selected) == 0 {
		return 0, fmt.Errorf("%w: no channels selected", ErrChannelOutOfRange)
	}
	for _, ch := range selected {
		if ch < 0 || ch >= maxChannels {
			return 0, fmt.Errorf("%w: channel %d, device has %d", ErrChannelOutOfRange, ch, maxChannels)
		}
	}
	return slices.Max(selected) + 1, nil
}

// Capture opens input streams that copy the selected device channels into
// the ring buffer.
type Capture struct {
	ring           *ringbuffer.Buffer
	device         *portaudio.DeviceInfo
	selected       []int
	deviceChannels int
	frames         int
	highLatency    bool
	stall          time.Duration

	callbacks atomic.Uint64
}

// NewCapture validates the channel selection against the input device.
func NewCapture(cfg config.AudioConfig, policy config.BufferPolicy, stall time.Duration, ring *ringbuffer.Buffer) (*Capture, error) {
	device, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}
	n, err := DeviceChannels(cfg.InputChannels, device.MaxInputChannels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", device.Name, err)
	}
	return newCapture(ring, device, cfg.InputChannels, n, policy, stall), nil
}

func newCapture(ring *ringbuffer.Buffer, device *portaudio.DeviceInfo, selected []int, deviceChannels int, policy config.BufferPolicy, stall time.Duration) *Capture {
	return &Capture{
		ring:           ring,
		device:         device,
		selected:       slices.Clone(selected),
		deviceChannels: deviceChannels,
		frames:         policy.FramesPerBuffer,
		highLatency:    policy.HighLatency,
		stall:          stall,
	}
}

// Name implements Opener.
func (c *Capture) Name() string { return "capture" }

// Supports implements Opener.
func (c *Capture) Supports(rate float64) bool {
	p := streamParams(c.device, nil, c.deviceChannels, 0, rate, c.frames, c.highLatency)
	return portaudio.IsFormatSupported(p, c.process) == nil
}

// Open implements Opener.
func (c *Capture) Open(rate float64) (Stream, error) {
	p := streamParams(c.device, nil, c.deviceChannels, 0, rate, c.frames, c.highLatency)
	stream, err := portaudio.OpenStream(p, c.process)
	if err != nil {
		return nil, fmt.Errorf("opening input stream on %s: %w", c.device.Name, err)
	}
	return &paStream{stream: stream, last: c.ring.LastActivity, stall: c.stall}, nil
}

// Callbacks returns the number of input callbacks served.
func (c *Capture) Callbacks() uint64 { return c.callbacks.Load() }

// process is the input callback.
func (c *Capture) process(in []float32) {
	c.ring.PushSelected(in, c.deviceChannels, c.selected)
	c.callbacks.Add(1)
}
