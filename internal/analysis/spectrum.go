// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"math/cmplx"

	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/dsp/fourier"
)

// dbFloor stands in for 20*log10(0).
const dbFloor = -math.MaxFloat32

// Reusable buffers for one transform length and window type.
type fftWorkspace struct {
	input     []float64    // Gated samples, windowed in place.
	fftOutput []complex128 // N/2+1 coefficients of the real transform.
	levels    []float64    // 20*log10(|X|) per bin.
	window    []float64    // Window coefficients for the current length.
	winType   WindowFunc
	offset    float64 // 20*log10(2/sum(window)), maps a level to dBFS.
}

// Analyzer extracts partials from sample buffers. It keeps a workspace and
// FFT plan between calls, so it is not safe for concurrent use; give each
// goroutine its own Analyzer.
type Analyzer struct {
	fftCalculator *fourier.FFT
	fftSize       int
	workspace     fftWorkspace
}

// Analyze is the stateless form of Analyzer.Analyze.
func Analyze(samples []float32, sampleRate float64, cfg FFTConfig) []Partial {
	var a Analyzer
	return a.Analyze(samples, sampleRate, cfg)
}

// Analyze returns exactly cfg.NumPartials partials for a single channel of
// samples:
//
//  1. samples quieter than the linear equivalent of DBThreshold are dropped,
//     or silenced in place with GateZero
//  2. the N remaining samples are windowed and transformed, bin i is at
//     i*sampleRate/N
//  3. bins outside [MinFrequency, MaxFrequency] are discarded
//  4. local spectral peaks are accepted in ascending frequency order,
//     skipping any closer than MinFreqSpacing to the last accepted one
//  5. values are rounded to two decimals and the list is zero padded or
//     truncated
//
// Amplitude is 20*log10(|X|) of the unscaled bin, so a louder component has
// a larger amplitude. A peak is accepted when its window-corrected dBFS level
// meets DBThreshold and its amplitude is not negative.
//
// A buffer with nothing above the gate yields all zeros.
func (a *Analyzer) Analyze(samples []float32, sampleRate float64, cfg FFTConfig) []Partial {
	numPartials := max(cfg.NumPartials, 1)
	out := make([]Partial, numPartials)
	if len(samples) == 0 || sampleRate <= 0 {
		return out
	}

	// --- 1. Gate ---
	gate := math.Pow(10, cfg.DBThreshold/20)
	ws := &a.workspace
	ws.input = ws.input[:0]
	survivors := 0
	for _, s := range samples {
		v := float64(s)
		if math.Abs(v) < gate {
			if cfg.Gate == GateDrop {
				continue
			}
			v = 0
		} else {
			survivors++
		}
		ws.input = append(ws.input, v)
	}
	n := len(ws.input)
	if survivors == 0 || n < 2 {
		return out
	}

	// --- 2. Window & transform ---
	a.prepare(n, cfg.Window)
	for i := range ws.input {
		ws.input[i] *= ws.window[i]
	}
	ws.fftOutput = a.fftCalculator.Coefficients(ws.fftOutput[:n/2+1], ws.input)

	ws.levels = ws.levels[:0]
	for _, c := range ws.fftOutput {
		level := dbFloor
		if mag := cmplx.Abs(c); mag > 0 {
			level = 20 * math.Log10(mag)
		}
		ws.levels = append(ws.levels, level)
	}

	// --- 3 & 4. Band limit, peak pick, de-duplicate ---
	binWidth := sampleRate / float64(n)
	count := 0
	lastAccepted := math.Inf(-1)
	for i, level := range ws.levels {
		freq := float64(i) * binWidth
		if freq < cfg.MinFrequency {
			continue
		}
		if freq > cfg.MaxFrequency || count == numPartials {
			break
		}
		if level < 0 || level+ws.offset < cfg.DBThreshold || !isPeak(ws.levels, i) {
			continue
		}
		freq = round2(freq)
		if freq-lastAccepted < cfg.MinFreqSpacing {
			continue
		}
		out[count] = Partial{Frequency: freq, Amplitude: round2(level)}
		lastAccepted = freq
		count++
	}

	// --- 5. Padding is already in place ---
	return out
}

// prepare sizes the workspace and plan for length n.
func (a *Analyzer) prepare(n int, w WindowFunc) {
	ws := &a.workspace
	if a.fftCalculator == nil || a.fftSize != n {
		a.fftCalculator = fourier.NewFFT(n)
		a.fftSize = n
		ws.window = nil
	}
	if cap(ws.fftOutput) < n/2+1 {
		ws.fftOutput = make([]complex128, n/2+1)
		ws.levels = make([]float64, 0, n/2+1)
	}
	if len(ws.window) != n || ws.winType != w {
		if cap(ws.window) >= n {
			ws.window = ws.window[:n]
		} else {
			ws.window = make([]float64, n)
		}
		applyWindow(ws.window, w)
		ws.winType = w
		ws.offset = 0
		if sum := f64.Sum(ws.window); sum > 0 {
			ws.offset = 20 * math.Log10(2/sum)
		}
	}
}

// isPeak reports whether bin i is a local maximum. Plateaus count once, at
// their first bin.
func isPeak(levels []float64, i int) bool {
	if i > 0 && levels[i-1] >= levels[i] {
		return false
	}
	if i+1 < len(levels) && levels[i+1] > levels[i] {
		return false
	}
	return true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ExtractChannelData de-interleaves channel ch from a buffer of numChannels
// interleaved channels.
func ExtractChannelData(buffer []float32, ch, numChannels int) []float32 {
	if numChannels < 1 || ch < 0 || ch >= numChannels {
		return nil
	}
	out := make([]float32, 0, len(buffer)/numChannels+1)
	for i := ch; i < len(buffer); i += numChannels {
		out = append(out, buffer[i])
	}
	return out
}

// ExtractChannelDataInto is ExtractChannelData writing into dst's backing
// array. It returns the filled slice.
func ExtractChannelDataInto(dst, buffer []float32, ch, numChannels int) []float32 {
	dst = dst[:0]
	if numChannels < 1 || ch < 0 || ch >= numChannels {
		return dst
	}
	for i := ch; i < len(buffer); i += numChannels {
		dst = append(dst, buffer[i])
	}
	return dst
}
