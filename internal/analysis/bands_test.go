// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"

	"partialsynth/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBandLevels(t *testing.T) {
	t.Parallel()

	partials := []Partial{
		{Frequency: 100, Amplitude: 20},
		{Frequency: 150, Amplitude: 20},
		{Frequency: 1000, Amplitude: 20},
		{},
	}
	levels := BandLevels(partials, DefaultBands)
	require.Len(t, levels, len(DefaultBands))

	assert.Equal(t, 1.0, levels[1], "bass holds two partials and is the loudest band")
	assert.InDelta(t, 1/1.41421356, levels[3], 1e-6)
	assert.Zero(t, levels[0])
	assert.Zero(t, levels[5])

	assert.Equal(t, make([]float64, len(DefaultBands)), BandLevels(nil, DefaultBands))
}

func TestBandEnergyProcessorSendsPerChannel(t *testing.T) {
	t.Parallel()

	mock := &utils.MockTransport{}
	p := NewBandEnergyProcessor(mock, nil)

	p.OnFrame(&Frame{Seq: 9, Partials: Snapshot{
		{{Frequency: 40, Amplitude: 10}},
		{{Frequency: 3000, Amplitude: 10}},
	}})
	p.OnFrame(nil)

	sent := mock.Sent()
	require.Len(t, sent, 1)
	msg, ok := sent[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "band_energy", msg["type"])
	assert.Equal(t, uint64(9), msg["seq"])

	channels := msg["channels"].([]map[string]float64)
	require.Len(t, channels, 2)
	assert.Equal(t, 1.0, channels[0]["sub"])
	assert.Equal(t, 1.0, channels[1]["highMid"])
	assert.Zero(t, channels[1]["sub"])
}
