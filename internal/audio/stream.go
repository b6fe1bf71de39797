// SPDX-License-Identifier: MIT
/*
Package audio owns the PortAudio side of the pipeline: device lookup, the
capture stream feeding the ring buffer, the output stream driving the
synth, and the supervisor that keeps the output stream alive.

Real-time callbacks here never log, lock a mutex shared with slow code, or
allocate. They report liveness through an atomic heartbeat that the
supervisor polls.
*/
package audio

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// ErrNoSupportedRate is returned when neither the preferred nor any
// candidate sample rate can be opened.
var ErrNoSupportedRate = errors.New("no supported sample rate")

// Stream is a started or startable device stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	// Alive reports whether the stream has shown activity recently.
	Alive(now time.Time) bool
}

// Opener creates streams for the supervisor.
type Opener interface {
	// Name identifies the stream in logs.
	Name() string
	// Supports reports whether rate can be opened on the device.
	Supports(rate float64) bool
	// Open prepares a stream at rate without starting it.
	Open(rate float64) (Stream, error)
}

// ChooseRate returns preferred if supported, else the first supported
// candidate.
func ChooseRate(preferred float64, candidates []float64, supports func(float64) bool) (float64, error) {
	if supports(preferred) {
		return preferred, nil
	}
	for _, r := range candidates {
		if r != preferred && supports(r) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: preferred %.0f Hz, candidates %v", ErrNoSupportedRate, preferred, candidates)
}

// Heartbeat is the liveness timestamp written by an audio callback.
type Heartbeat struct {
	last atomic.Int64
}

// Beat records activity at now.
func (h *Heartbeat) Beat(now time.Time) {
	h.last.Store(now.UnixNano())
}

// Last returns the time of the most recent beat, or zero.
func (h *Heartbeat) Last() time.Time {
	n := h.last.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// paStream adapts a PortAudio stream to Stream. A stream that has not
// beaten yet is alive for one stall timeout after Start.
type paStream struct {
	stream  *portaudio.Stream
	last    func() time.Time
	stall   time.Duration
	started time.Time
}

func (s *paStream) Start() error {
	s.started = time.Now()
	return s.stream.Start()
}

func (s *paStream) Stop() error { return s.stream.Stop() }

func (s *paStream) Close() error { return s.stream.Close() }

func (s *paStream) Alive(now time.Time) bool {
	return alive(now, s.last(), s.started, s.stall)
}

func alive(now, last, started time.Time, stall time.Duration) bool {
	if last.Before(started) {
		last = started
	}
	return now.Sub(last) < stall
}

func streamParams(input, output *portaudio.DeviceInfo, inChannels, outChannels int, rate float64, frames int, highLatency bool) portaudio.StreamParameters {
	var p portaudio.StreamParameters
	if highLatency {
		p = portaudio.HighLatencyParameters(input, output)
	} else {
		p = portaudio.LowLatencyParameters(input, output)
	}
	p.Input.Channels = inChannels
	p.Output.Channels = outChannels
	p.SampleRate = rate
	p.FramesPerBuffer = frames
	return p
}
