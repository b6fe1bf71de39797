// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWindowFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"", BlackmanHarris, false},
		{"BlackmanHarris", BlackmanHarris, false},
		{"blackman-harris", BlackmanHarris, false},
		{"Hann", Hann, false},
		{"hanning", Hann, false},
		{"HAMMING", Hamming, false},
		{"bartlett_hann", BartlettHann, false},
		{"Rectangular", Rectangular, false},
		{"kaiser", BlackmanHarris, true},
	}
	for _, tt := range tests {
		got, err := ParseWindowFunc(tt.name)
		assert.Equal(t, tt.want, got, tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
		} else {
			assert.NoError(t, err, tt.name)
		}
	}
}

func TestWindowFuncString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "BlackmanHarris", WindowFunc(0).String())
	assert.Equal(t, "Nuttall", Nuttall.String())
	assert.Equal(t, "WindowFunc(42)", WindowFunc(42).String())
}

func TestBlackmanHarrisCoefficients(t *testing.T) {
	t.Parallel()

	const n = 64
	coeffs := make([]float64, n)
	applyWindow(coeffs, BlackmanHarris)

	for i, got := range coeffs {
		x := float64(i) / (n - 1)
		want := 0.35875 - 0.48829*math.Cos(2*math.Pi*x) + 0.14128*math.Cos(4*math.Pi*x) - 0.01168*math.Cos(6*math.Pi*x)
		assert.InDelta(t, want, got, 1e-12, "coefficient %d", i)
	}
	for i := 0; i < n/2; i++ {
		assert.InDelta(t, coeffs[i], coeffs[n-1-i], 1e-12, "symmetry at %d", i)
	}
}

func TestRectangularWindowIsFlat(t *testing.T) {
	t.Parallel()
	coeffs := []float64{0, 0, 0, 0}
	applyWindow(coeffs, Rectangular)
	assert.Equal(t, []float64{1, 1, 1, 1}, coeffs)
}
