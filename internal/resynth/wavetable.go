// SPDX-License-Identifier: MIT
package resynth

import (
	"math"

	"github.com/tphakala/simd/f32"

	"partialsynth/internal/analysis"
)

// RootFrequency returns the lowest non-zero partial frequency, or 0 when
// there is none.
func RootFrequency(partials []analysis.Partial) float64 {
	root := 0.0
	for _, p := range partials {
		if p.Frequency <= 0 || p.IsZero() {
			continue
		}
		if root == 0 || p.Frequency < root {
			root = p.Frequency
		}
	}
	return root
}

// BuildWavetableInto renders one period of the root frequency into dst and
// returns the root. Each partial contributes amp/100 * sin(2π*(freq/root)*i/len(dst)).
// Partials at or above Nyquist are skipped. The table is divided by its peak
// when the peak exceeds 1. dst is zeroed when there are no usable partials.
// The result depends only on the arguments and dst is never resized.
func BuildWavetableInto(dst []float32, partials []analysis.Partial, sampleRate float64) float64 {
	clear(dst)
	root := RootFrequency(partials)
	if root == 0 || len(dst) == 0 {
		return 0
	}

	nyquist := sampleRate / 2
	size := float64(len(dst))
	peak := 0.0
	for i := range dst {
		t := float64(i) / size
		sum := 0.0
		for _, p := range partials {
			if p.Frequency <= 0 || p.Frequency >= nyquist {
				continue
			}
			sum += p.Amplitude / 100 * math.Sin(2*math.Pi*(p.Frequency/root)*t)
		}
		if a := math.Abs(sum); a > peak {
			peak = a
		}
		dst[i] = float32(sum)
	}

	if peak > 1 {
		f32.Scale(dst, dst, float32(1/peak))
		// float32 rounding of 1/peak can leave a cell a hair above 1.
		for i, v := range dst {
			dst[i] = clamp(v)
		}
	}
	return root
}

// BuildWavetable allocates a table of size cells and fills it.
func BuildWavetable(partials []analysis.Partial, sampleRate float64, size int) ([]float32, float64) {
	table := make([]float32, size)
	root := BuildWavetableInto(table, partials, sampleRate)
	return table, root
}

func clamp(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
