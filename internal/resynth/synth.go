// SPDX-License-Identifier: MIT
package resynth

import (
	"math"
	"sync/atomic"

	"github.com/tphakala/simd/f32"

	"partialsynth/internal/config"
	"partialsynth/pkg/bitint"
)

// State is the crossfade state of the synth.
type State int

const (
	Steady State = iota
	Crossfading
)

func (s State) String() string {
	if s == Crossfading {
		return "crossfading"
	}
	return "steady"
}

// voice is one wavetable with its read position and root frequency.
type voice struct {
	table []float32
	phase float64
	root  float64
}

// read returns the interpolated sample at the current phase and advances it.
func (v *voice) read(step float64, mask int) float32 {
	if v.root == 0 {
		return 0
	}
	i0 := int(v.phase)
	frac := float32(v.phase - float64(i0))
	a := v.table[i0&mask]
	b := v.table[(i0+1)&mask]

	v.phase += step
	if size := float64(mask + 1); v.phase >= size {
		v.phase = math.Mod(v.phase, size)
	}
	return a + (b-a)*frac
}

// Synth renders stereo output from per-channel current and next wavetables.
// Process and ApplyUpdates must only be called from the output callback.
// After NewSynth neither allocates.
type Synth struct {
	slot       *UpdateSlot
	sampleRate float64
	mask       int

	current []voice
	next    []voice

	params   Params
	counter  int
	start    int
	end      int
	deferred *SynthUpdate // holds tables that arrived mid-crossfade

	left  []float32
	right []float32

	// Status for readers outside the audio thread.
	applied    atomic.Uint64
	promoted   atomic.Uint64
	lastSeq    atomic.Uint64
	lastCount  atomic.Int64
	lastWeight atomic.Uint32
}

// NewSynth allocates tables for channels analysed channels. tableSize is
// rounded up to a power of two.
func NewSynth(channels, tableSize int, sampleRate float64, params Params, slot *UpdateSlot) *Synth {
	if !bitint.IsPowerOfTwo(tableSize) {
		tableSize = bitint.NextPowerOfTwo(tableSize)
	}
	channels = max(channels, 1)
	s := &Synth{
		slot:       slot,
		sampleRate: sampleRate,
		mask:       bitint.Mask(tableSize),
		current:    make([]voice, channels),
		next:       make([]voice, channels),
		left:       make([]float32, config.MaxBufferFrames),
		right:      make([]float32, config.MaxBufferFrames),
	}
	for ch := range s.current {
		s.current[ch].table = make([]float32, tableSize)
		s.next[ch].table = make([]float32, tableSize)
	}
	s.setParams(params)
	return s
}

// SetSampleRate retunes the synth. It must not be called while an output
// stream is running.
func (s *Synth) SetSampleRate(rate float64) {
	s.sampleRate = rate
	s.setParams(s.params)
}

func (s *Synth) setParams(p Params) {
	s.params = p
	period := p.UpdateRate * s.sampleRate
	s.end = max(int(math.Round(period)), 1)
	s.start = int(math.Round(period * 2 / 3))
}

// ApplyUpdates takes the pending update, if any. Parameters apply at once.
// New tables are rendered into next and restart the cycle from sample 0,
// unless a crossfade is in progress; then they wait for it to finish.
// It reports whether new tables were installed.
func (s *Synth) ApplyUpdates() bool {
	if u := s.slot.Take(); u != nil {
		s.setParams(u.Params)
		s.lastSeq.Store(u.Seq)
		if u.HasPartials() {
			s.deferred = u
		}
	}
	if s.deferred == nil || s.State() == Crossfading {
		return false
	}

	u := s.deferred
	s.deferred = nil
	for ch := range s.next {
		v := &s.next[ch]
		v.root = BuildWavetableInto(v.table, u.Partials.Channel(ch), s.sampleRate)
		v.phase = 0
	}
	s.counter = 0
	s.applied.Add(1)
	return true
}

// State returns the crossfade state at the current sample.
func (s *Synth) State() State {
	if s.counter >= s.start {
		return Crossfading
	}
	return Steady
}

// Weight is the share of next in the output: 0 while steady, then a linear
// ramp from 0 at the crossfade start towards 1 at its end.
func (s *Synth) Weight() float64 {
	switch {
	case s.counter < s.start:
		return 0
	case s.counter >= s.end:
		return 1
	}
	return float64(s.counter-s.start) / float64(s.end-s.start)
}

// Counter returns the sample position within the current cycle.
func (s *Synth) Counter() int { return s.counter }

// Bounds returns the crossfade start and end sample.
func (s *Synth) Bounds() (start, end int) { return s.start, s.end }

// CurrentTable returns the live table of channel ch. Callers outside the
// audio thread must not read it while the synth runs.
func (s *Synth) CurrentTable(ch int) []float32 { return s.current[ch].table }

// NextTable returns the pending table of channel ch.
func (s *Synth) NextTable(ch int) []float32 { return s.next[ch].table }

// Roots returns the root frequencies of both tables of channel ch.
func (s *Synth) Roots(ch int) (current, next float64) {
	return s.current[ch].root, s.next[ch].root
}

func (s *Synth) promote() {
	for ch := range s.current {
		cur, nxt := &s.current[ch], &s.next[ch]
		cur.table, nxt.table = nxt.table, cur.table
		cur.phase, cur.root = nxt.phase, nxt.root
		copy(nxt.table, cur.table)
	}
	s.counter = 0
	s.promoted.Add(1)
}

// Process fills out with interleaved stereo frames. With one analysed
// channel both sides carry it; otherwise even channels sum to the left and
// odd channels to the right.
func (s *Synth) Process(out []float32) {
	s.ApplyUpdates()

	frames := len(out) / config.OutputChannels
	for done := 0; done < frames; {
		n := min(frames-done, len(s.left))
		s.render(s.left[:n], s.right[:n])
		f32.Interleave2(out[done*2:(done+n)*2], s.left[:n], s.right[:n])
		done += n
	}

	s.lastCount.Store(int64(s.counter))
	s.lastWeight.Store(math.Float32bits(float32(s.Weight())))
}

func (s *Synth) render(left, right []float32) {
	size := float64(s.mask + 1)
	scale := s.params.FreqScale * size / s.sampleRate
	mono := len(s.current) == 1

	for i := range left {
		w := float32(s.Weight())
		var l, r float32
		for ch := range s.current {
			cur, nxt := &s.current[ch], &s.next[ch]
			v := cur.read(cur.root*scale, s.mask)
			if w > 0 {
				v += (nxt.read(nxt.root*scale, s.mask) - v) * w
			} else {
				// Keep next running so its phase is continuous when the fade starts.
				nxt.read(nxt.root*scale, s.mask)
			}
			switch {
			case mono:
				l, r = v, v
			case ch%2 == 0:
				l += v
			default:
				r += v
			}
		}
		left[i], right[i] = l, r

		s.counter++
		if s.counter >= s.end {
			s.promote()
		}
	}

	gain := float32(s.params.Gain)
	f32.Scale(left, left, gain)
	f32.Scale(right, right, gain)
	for i := range left {
		left[i] = clamp(left[i])
		right[i] = clamp(right[i])
	}
}

// Status is a snapshot of the synth for monitors.
type Status struct {
	Applied  uint64
	Promoted uint64
	LastSeq  uint64
	Counter  int64
	Weight   float32
}

// Status may be called from any goroutine.
func (s *Synth) Status() Status {
	return Status{
		Applied:  s.applied.Load(),
		Promoted: s.promoted.Load(),
		LastSeq:  s.lastSeq.Load(),
		Counter:  s.lastCount.Load(),
		Weight:   math.Float32frombits(s.lastWeight.Load()),
	}
}
