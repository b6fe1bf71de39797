// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"sync"
)

// MockTransport implements the transport.Transport interface for testing.
// It records every payload it receives.
type MockTransport struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

// Send stores the payload for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	m.sent = append(m.sent, data)
	m.mu.Unlock()
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of all payloads received so far.
func (m *MockTransport) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.sent))
	copy(out, m.sent)
	return out
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// DBToLinear converts a dBFS level to a linear amplitude.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// GenerateSineWave returns size samples of a sine at frequency Hz with the
// given linear amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateComplexWave returns a 440 Hz fundamental with its 2nd and 3rd
// harmonics at amplitudes 0.5, 0.3 and 0.2.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal)
	}
	return buffer
}

// Interleave merges equally sized channel buffers into one frame-interleaved
// buffer. Shorter channels are zero-extended to the longest one.
func Interleave(channels ...[]float32) []float32 {
	frames := 0
	for _, ch := range channels {
		frames = max(frames, len(ch))
	}
	out := make([]float32, frames*len(channels))
	for c, ch := range channels {
		for i, v := range ch {
			out[i*len(channels)+c] = v
		}
	}
	return out
}
