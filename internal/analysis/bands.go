// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	applog "partialsynth/internal/log"
	"partialsynth/internal/transport"
)

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands covers the audible range in six display bands.
var DefaultBands = []FrequencyBand{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// BandLevels sums the display energy of the partials falling in each band and
// scales the result so the loudest band reads 1.
func BandLevels(partials []Partial, bands []FrequencyBand) []float64 {
	levels := make([]float64, len(bands))
	peak := 0.0
	for _, p := range partials {
		if p.IsZero() {
			continue
		}
		for i, b := range bands {
			if p.Frequency >= b.LowHz && p.Frequency < b.HighHz {
				m := p.Magnitude()
				levels[i] += m * m
				break
			}
		}
	}
	for i := range levels {
		levels[i] = math.Sqrt(levels[i])
		peak = max(peak, levels[i])
	}
	if peak > 0 {
		for i := range levels {
			levels[i] /= peak
		}
	}
	return levels
}

// BandEnergyProcessor publishes per-channel band levels for every analysis
// frame it receives.
type BandEnergyProcessor struct {
	transport transport.Transport
	bands     []FrequencyBand
}

var _ FrameSink = (*BandEnergyProcessor)(nil)

// NewBandEnergyProcessor creates a processor sending over t. A nil bands
// slice selects DefaultBands.
func NewBandEnergyProcessor(t transport.Transport, bands []FrequencyBand) *BandEnergyProcessor {
	if bands == nil {
		bands = DefaultBands
	}
	applog.Debugf("Analysis: Initializing BandEnergyProcessor with %d bands.", len(bands))
	return &BandEnergyProcessor{transport: t, bands: bands}
}

// OnFrame implements FrameSink.
func (p *BandEnergyProcessor) OnFrame(f *Frame) {
	if p.transport == nil || f == nil {
		return
	}
	channels := make([]map[string]float64, len(f.Partials))
	for ch, partials := range f.Partials {
		levels := BandLevels(partials, p.bands)
		m := make(map[string]float64, len(levels))
		for i, b := range p.bands {
			m[b.Name] = levels[i]
		}
		channels[ch] = m
	}
	msg := map[string]any{"type": "band_energy", "seq": f.Seq, "channels": channels}
	if err := p.transport.Send(msg); err != nil {
		applog.Warnf("BandEnergyProcessor: Error sending band energy data: %v", err)
	}
}
