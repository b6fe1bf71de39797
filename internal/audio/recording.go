// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"partialsynth/internal/config"
	applog "partialsynth/internal/log"
)

// recorderBlocks is the number of callback buffers that may wait for the
// writer before the callback starts dropping.
const recorderBlocks = 16

// DefaultRecordingName returns recording-DD-MM-YYYY-HHMMSS.wav for t.
func DefaultRecordingName(t time.Time) string {
	return "recording-" + t.UTC().Format("02-01-2006-150405") + ".wav"
}

// Recorder writes the stereo output to a WAV file. Write is the real-time
// side: it copies into a preallocated block and hands it to the writer
// goroutine, dropping the block when none is free.
type Recorder struct {
	file       *os.File
	sampleRate float64
	encoder    *wav.Encoder
	sampleBuf  *audio.IntBuffer
	scale      float64

	free   chan []float32
	filled chan []float32
	done   chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
	frames    atomic.Uint64
	dropped   atomic.Uint64
	writeErr  error
}

// NewRecorder creates filename and starts the writer goroutine.
func NewRecorder(filename string, sampleRate float64, bitDepth int) (*Recorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: recording bit depth %d", config.ErrInvalidConfig, bitDepth)
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		file:       file,
		sampleRate: sampleRate,
		encoder:    wav.NewEncoder(file, int(sampleRate), bitDepth, config.OutputChannels, 1),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: config.OutputChannels,
				SampleRate:  int(sampleRate),
			},
			SourceBitDepth: bitDepth,
			Data:           make([]int, config.MaxBufferFrames*config.OutputChannels),
		},
		scale:  float64(int64(1)<<(bitDepth-1) - 1),
		free:   make(chan []float32, recorderBlocks),
		filled: make(chan []float32, recorderBlocks),
		done:   make(chan struct{}),
	}
	for range recorderBlocks {
		r.free <- make([]float32, config.MaxBufferFrames*config.OutputChannels)
	}

	go r.writer()
	applog.Infof("Recorder: writing %d-bit %.0f Hz stereo to %s", bitDepth, sampleRate, filename)
	return r, nil
}

// Write queues interleaved stereo samples. It never blocks or allocates.
func (r *Recorder) Write(samples []float32) {
	if r.closed.Load() {
		return
	}
	select {
	case block := <-r.free:
		n := copy(block[:cap(block)], samples)
		r.filled <- block[:n]
		if n < len(samples) {
			r.dropped.Add(uint64(len(samples)-n) / config.OutputChannels)
		}
	default:
		r.dropped.Add(uint64(len(samples)) / config.OutputChannels)
	}
}

func (r *Recorder) writer() {
	defer close(r.done)
	for block := range r.filled {
		if r.writeErr == nil {
			r.writeErr = r.encode(block)
		}
		r.frames.Add(uint64(len(block)) / config.OutputChannels)
		r.free <- block[:cap(block)]
	}
}

func (r *Recorder) encode(block []float32) error {
	data := r.sampleBuf.Data[:len(block)]
	for i, v := range block {
		data[i] = int(math.Round(float64(max(-1, min(1, v))) * r.scale))
	}
	r.sampleBuf.Data = data
	if err := r.encoder.Write(r.sampleBuf); err != nil {
		return fmt.Errorf("writing WAV data: %w", err)
	}
	return nil
}

// SampleRate returns the rate written to the WAV header.
func (r *Recorder) SampleRate() float64 { return r.sampleRate }

// Frames returns the number of frames handed to the encoder.
func (r *Recorder) Frames() uint64 { return r.frames.Load() }

// Dropped returns the number of frames lost to a busy writer.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Close flushes pending blocks and finalises the WAV header. The caller
// must make sure Write is no longer running, e.g. by removing the tap and
// stopping the stream first.
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.filled)
		<-r.done
		err = errors.Join(r.writeErr, r.encoder.Close(), r.file.Close())
		if r.dropped.Load() > 0 {
			applog.Warnf("Recorder: %d frames dropped", r.dropped.Load())
		}
		applog.Infof("Recorder: saved %d frames to %s", r.frames.Load(), r.file.Name())
	})
	return err
}
