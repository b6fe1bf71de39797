// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"partialsynth/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotHelpers(t *testing.T) {
	t.Parallel()

	s := NewSnapshot(2, 3)
	require.Len(t, s, 2)
	assert.Len(t, s[1], 3)
	assert.True(t, s.Empty())

	s[0][0] = Partial{Frequency: 220, Amplitude: 10}
	assert.False(t, s.Empty())
	assert.Equal(t, []Partial{{220, 10}}, s.Active(0))
	assert.Nil(t, s.Active(1))
	assert.Nil(t, s.Channel(5))

	c := s.Clone()
	assert.True(t, c.Equal(s))
	c[0][0].Frequency = 230
	assert.False(t, c.Equal(s))
	assert.Equal(t, 220.0, s[0][0].Frequency, "clone is deep")
}

func TestPartialMagnitude(t *testing.T) {
	t.Parallel()
	assert.Zero(t, Partial{}.Magnitude())
	assert.InDelta(t, math.Sqrt(10), Partial{Frequency: 1, Amplitude: 10}.Magnitude(), 1e-12)
	assert.InDelta(t, 1.0, Partial{Frequency: 1}.Magnitude(), 1e-12)
}

func testAnalysisSection() config.AnalysisConfig {
	return config.AnalysisConfig{
		MinFrequency:    20,
		MaxFrequency:    1000,
		DBThreshold:     -40,
		MinFreqSpacing:  5,
		WindowType:      "hann",
		NumPartials:     4,
		AveragingFactor: 0.5,
	}
}
