// SPDX-License-Identifier: MIT
package analysis

import (
	"github.com/tphakala/simd/f64"
)

// Candidate is an unvalidated fundamental frequency estimate.
type Candidate struct {
	Frequency  float64
	Confidence float64 // In [0,1], 1 - normalised difference at the chosen lag.
}

// YIN estimates the fundamental of a mono frame using the cumulative mean
// normalised difference function. Buffers are sized once for windowSize
// samples; Detect does not allocate.
type YIN struct {
	sampleRate float64
	threshold  float64

	frame  []float64
	energy []float64 // prefix sums of squares
	cmndf  []float64
}

// NewYIN returns a detector for frames of up to windowSize samples.
func NewYIN(sampleRate float64, windowSize int, threshold float64) *YIN {
	windowSize = max(windowSize, 4)
	return &YIN{
		sampleRate: sampleRate,
		threshold:  threshold,
		frame:      make([]float64, 0, windowSize),
		energy:     make([]float64, windowSize+1),
		cmndf:      make([]float64, windowSize/2),
	}
}

// Detect returns the estimated fundamental of samples, using at most the
// newest windowSize samples. ok is false when no lag falls below the
// threshold.
func (y *YIN) Detect(samples []float32) (c Candidate, ok bool) {
	if len(samples) > cap(y.frame) {
		samples = samples[len(samples)-cap(y.frame):]
	}
	half := len(samples) / 2
	if half < 2 || y.sampleRate <= 0 {
		return Candidate{}, false
	}

	y.frame = y.frame[:0]
	for _, s := range samples {
		y.frame = append(y.frame, float64(s))
	}
	x := y.frame

	y.energy[0] = 0
	for i, v := range x {
		y.energy[i+1] = y.energy[i] + v*v
	}

	// d(tau) = sum (x[j] - x[j+tau])^2 over j < half, expanded into the two
	// energies and one cross term.
	cmndf := y.cmndf[:half]
	cmndf[0] = 1
	head := x[:half]
	e0 := y.energy[half]
	running := 0.0
	for tau := 1; tau < half; tau++ {
		d := e0 + y.energy[tau+half] - y.energy[tau] - 2*f64.DotProduct(head, x[tau:tau+half])
		if d < 0 {
			d = 0
		}
		running += d
		if running == 0 {
			cmndf[tau] = 1
			continue
		}
		cmndf[tau] = d * float64(tau) / running
	}

	tau := -1
	for t := 2; t < half; t++ {
		if cmndf[t] < y.threshold {
			for t+1 < half && cmndf[t+1] < cmndf[t] {
				t++
			}
			tau = t
			break
		}
	}
	if tau < 0 {
		return Candidate{}, false
	}

	period := parabolicInterpolation(cmndf, tau)
	if period <= 0 {
		return Candidate{}, false
	}
	conf := 1 - cmndf[tau]
	if conf < 0 {
		conf = 0
	}
	return Candidate{Frequency: y.sampleRate / period, Confidence: conf}, true
}

func parabolicInterpolation(data []float64, idx int) float64 {
	if idx <= 0 || idx >= len(data)-1 {
		return float64(idx)
	}
	y1, y2, y3 := data[idx-1], data[idx], data[idx+1]
	a := (y1 - 2*y2 + y3) / 2
	b := (y3 - y1) / 2
	if a == 0 {
		return float64(idx)
	}
	return float64(idx) - b/(2*a)
}
