// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"math"
	"sort"
	"sync/atomic"
	"time"

	applog "partialsynth/internal/log"
)

// Harmonic validation parameters.
const (
	harmonicTolerance  = 0.03 // Relative error that zeroes a harmonic match.
	maxHarmonic        = 8
	validationPartials = 3
	acceptConfidence   = 0.5
)

// PitchResult is the tracker's per-channel output.
type PitchResult struct {
	Frequency         float64 `json:"frequency"`
	Confidence        float64 `json:"confidence"` // 0 means the estimate was not updated this frame.
	PreviousFrequency float64 `json:"previous_frequency"`
}

// HarmonicConfidence scores how well candidate sits on the harmonic series of
// the three loudest partials, by stored amplitude. It checks multiples
// and sub-multiples 1..8 and returns the best match in [0,1].
func HarmonicConfidence(candidate float64, partials []Partial) float64 {
	if candidate <= 0 {
		return 0
	}

	var top [validationPartials]Partial
	n := 0
	for _, p := range partials {
		if p.IsZero() || p.Frequency <= 0 {
			continue
		}
		if n < len(top) {
			top[n] = p
			n++
			sortByAmplitude(top[:n])
			continue
		}
		if p.Amplitude > top[n-1].Amplitude {
			top[n-1] = p
			sortByAmplitude(top[:n])
		}
	}

	best := 0.0
	for _, p := range top[:n] {
		for h := 1; h <= maxHarmonic; h++ {
			for _, target := range [2]float64{p.Frequency * float64(h), p.Frequency / float64(h)} {
				err := math.Abs(candidate-target) / target
				best = max(best, math.Max(0, 1-err/harmonicTolerance))
			}
		}
	}
	return best
}

func sortByAmplitude(ps []Partial) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Amplitude > ps[j].Amplitude })
}

// Tracker holds the smoothed pitch of every channel between frames.
type Tracker struct {
	results     []PitchResult
	hasPrevious []bool
}

// NewTracker returns a Tracker for channels channels.
func NewTracker(channels int) *Tracker {
	return &Tracker{
		results:     make([]PitchResult, channels),
		hasPrevious: make([]bool, channels),
	}
}

// Update validates a detector candidate for channel ch against that
// channel's partials. The candidate is accepted only if the combined
// confidence exceeds 0.5 and the frequency lies inside the configured band;
// accepted values are smoothed with cfg.AveragingFactor. A rejected
// candidate leaves the previous frequency in place and reports confidence 0.
func (t *Tracker) Update(ch int, cand Candidate, partials []Partial, cfg FFTConfig) PitchResult {
	if ch < 0 || ch >= len(t.results) {
		return PitchResult{}
	}
	prev := t.results[ch].PreviousFrequency

	combined := cand.Confidence * HarmonicConfidence(cand.Frequency, partials)
	inBand := cand.Frequency >= cfg.MinFrequency && cand.Frequency <= cfg.MaxFrequency
	if combined <= acceptConfidence || !inBand {
		r := PitchResult{Frequency: prev, PreviousFrequency: prev}
		t.results[ch] = r
		return r
	}

	freq := cand.Frequency
	if t.hasPrevious[ch] {
		alpha := cfg.AveragingFactor
		freq = alpha*prev + (1-alpha)*cand.Frequency
	}
	t.hasPrevious[ch] = true
	r := PitchResult{Frequency: freq, Confidence: combined, PreviousFrequency: freq}
	t.results[ch] = r
	return r
}

// Reject records a frame without a usable candidate for channel ch.
func (t *Tracker) Reject(ch int) PitchResult {
	if ch < 0 || ch >= len(t.results) {
		return PitchResult{}
	}
	prev := t.results[ch].PreviousFrequency
	r := PitchResult{Frequency: prev, PreviousFrequency: prev}
	t.results[ch] = r
	return r
}

// Results returns a copy of the latest result of every channel.
func (t *Tracker) Results() []PitchResult {
	return append([]PitchResult(nil), t.results...)
}

// PitchEngine runs YIN detection and harmonic validation on its own cadence,
// reading the sample source directly and the partials from the analysis
// store.
type PitchEngine struct {
	source    SampleSource
	config    *SharedConfig
	snapshots SnapshotSource
	tracker   *Tracker
	detectors []*YIN
	interval  time.Duration

	frames  []float32
	channel []float32
	gated   []float32

	latest atomic.Pointer[[]PitchResult]
}

// NewPitchEngine builds the tracker loop. windowSize is the number of gated
// samples handed to the detector.
func NewPitchEngine(source SampleSource, cfg *SharedConfig, snapshots SnapshotSource, sampleRate float64, windowSize int, yinThreshold float64, interval time.Duration) *PitchEngine {
	channels := source.Channels()
	frames := source.Capacity()
	p := &PitchEngine{
		source:    source,
		config:    cfg,
		snapshots: snapshots,
		tracker:   NewTracker(channels),
		detectors: make([]*YIN, channels),
		interval:  interval,
		frames:    make([]float32, frames*channels),
		channel:   make([]float32, 0, frames),
		gated:     make([]float32, 0, frames),
	}
	for ch := range p.detectors {
		p.detectors[ch] = NewYIN(sampleRate, windowSize, yinThreshold)
	}
	empty := make([]PitchResult, channels)
	p.latest.Store(&empty)
	return p
}

// Step runs one detection cycle over every channel.
func (p *PitchEngine) Step() ([]PitchResult, bool) {
	cfg, ok := p.config.TryLoad()
	if !ok {
		return nil, false
	}
	frame := p.snapshots.Latest()

	channels := p.source.Channels()
	n := p.source.GetLatestInto(p.frames)
	window := p.frames[:n*channels]
	gate := float32(math.Pow(10, cfg.DBThreshold/20))

	for ch := 0; ch < channels; ch++ {
		p.channel = ExtractChannelDataInto(p.channel, window, ch, channels)
		// Silenced in place whatever cfg.Gate says; YIN needs the original
		// sample timing.
		p.gated = p.gated[:0]
		survivors := 0
		for _, s := range p.channel {
			if s < gate && -s < gate {
				s = 0
			} else {
				survivors++
			}
			p.gated = append(p.gated, s)
		}
		if survivors == 0 {
			p.tracker.Reject(ch)
			continue
		}

		cand, found := p.detectors[ch].Detect(p.gated)
		if !found {
			p.tracker.Reject(ch)
			continue
		}
		var partials []Partial
		if frame != nil {
			partials = frame.Partials.Channel(ch)
		}
		p.tracker.Update(ch, cand, partials, cfg)
	}

	results := p.tracker.Results()
	p.latest.Store(&results)
	return results, true
}

// Latest returns the most recent results, one per channel.
func (p *PitchEngine) Latest() []PitchResult {
	return *p.latest.Load()
}

// Run tracks pitch every interval until ctx is cancelled.
func (p *PitchEngine) Run(ctx context.Context) error {
	applog.Infof("Pitch: starting tracker (%d channels, every %v)", len(p.detectors), p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			applog.Infof("Pitch: tracker stopped")
			return nil
		case <-ticker.C:
			p.Step()
		}
	}
}
