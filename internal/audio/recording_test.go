// SPDX-License-Identifier: MIT
package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partialsynth/internal/config"
)

const testSampleRate = 48000

func decodeWAV(t *testing.T, filename string) *wav.Decoder {
	t.Helper()
	f, err := os.Open(filename)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	d := wav.NewDecoder(f)
	require.True(t, d.IsValidFile(), "not a WAV file")
	return d
}

func TestRecorderWritesStereoWAV(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "out.wav")
	r, err := NewRecorder(filename, testSampleRate, 16)
	require.NoError(t, err)

	block := make([]float32, 256*config.OutputChannels)
	block[0], block[1] = 0.5, -1
	block[2], block[3] = 1.5, -1.5
	for range 10 {
		r.Write(block)
	}
	require.NoError(t, r.Close())
	assert.Equal(t, uint64(2560), r.Frames())
	assert.Zero(t, r.Dropped())

	d := decodeWAV(t, filename)
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, uint16(2), d.NumChans)
	assert.Equal(t, uint32(testSampleRate), d.SampleRate)
	assert.Equal(t, uint16(16), d.BitDepth)
	require.Len(t, buf.Data, 2560*2)
	assert.Equal(t, []int{16384, -32767, 32767, -32767}, buf.Data[:4])
}

func TestRecorderRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		desc     string
		filename string
		bitDepth int
	}{
		{"unsupported bit depth", filepath.Join(dir, "a.wav"), 12},
		{"missing directory", filepath.Join(dir, "missing", "b.wav"), 16},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := NewRecorder(tt.filename, testSampleRate, tt.bitDepth)
			assert.Error(t, err)
		})
	}
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	r, err := NewRecorder(filepath.Join(t.TempDir(), "c.wav"), testSampleRate, 24)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.NoError(t, r.Close())

	// Writes after Close are ignored.
	r.Write(make([]float32, 64))
	assert.Zero(t, r.Frames())
}

func TestRecorderWriteDoesNotAllocate(t *testing.T) {
	r, err := NewRecorder(filepath.Join(t.TempDir(), "d.wav"), testSampleRate, 16)
	require.NoError(t, err)
	defer r.Close()

	block := make([]float32, 512*config.OutputChannels)
	allocs := testing.AllocsPerRun(100, func() {
		r.Write(block)
	})
	assert.Zero(t, allocs)
}

func TestDefaultRecordingName(t *testing.T) {
	ts := time.Date(2026, 3, 7, 14, 5, 9, 0, time.UTC)
	assert.Equal(t, "recording-07-03-2026-140509.wav", DefaultRecordingName(ts))
}

func BenchmarkRecorderWrite(b *testing.B) {
	r, err := NewRecorder(filepath.Join(b.TempDir(), "bench.wav"), testSampleRate, 16)
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()

	block := make([]float32, 1024*config.OutputChannels)
	b.ReportAllocs()
	for b.Loop() {
		r.Write(block)
	}
}
