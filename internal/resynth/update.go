// SPDX-License-Identifier: MIT
/*
Package resynth renders audio from analysis partials with a dual wavetable
oscillator per channel.

Three roles share the package:

  - Producer runs on its own goroutine. It samples the latest analysis frame
    at most once per update period and publishes an immutable SynthUpdate.
  - UpdateSlot hands updates to the audio thread. Push and Take are single
    atomic operations; only the newest pending update survives.
  - Synth runs inside the output callback. It never locks and never
    allocates after construction.
*/
package resynth

import (
	"errors"
	"fmt"
	"sync"

	"partialsynth/internal/analysis"
	"partialsynth/internal/config"
)

// ErrInvalidParams is returned when a parameter change is out of range.
var ErrInvalidParams = errors.New("invalid resynth parameters")

// Params are the externally controlled synthesis parameters.
type Params struct {
	Gain       float64 // Output gain in [0,1].
	FreqScale  float64 // Playback frequency multiplier, > 0.
	Smoothing  float64 // Carried with every update for downstream consumers.
	UpdateRate float64 // Seconds per update period.
}

// ParamsFromConfig converts the resynth section of the file configuration.
func ParamsFromConfig(c config.ResynthConfig) Params {
	return Params{
		Gain:       c.Gain,
		FreqScale:  c.FreqScale,
		Smoothing:  c.Smoothing,
		UpdateRate: c.UpdateRate,
	}
}

// Validate checks the ranges the synth relies on.
func (p Params) Validate() error {
	switch {
	case p.Gain < 0 || p.Gain > 1:
		return fmt.Errorf("%w: gain %.3f outside [0, 1]", ErrInvalidParams, p.Gain)
	case p.FreqScale <= 0:
		return fmt.Errorf("%w: freq_scale must be positive", ErrInvalidParams)
	case p.UpdateRate < 0.01:
		return fmt.Errorf("%w: update_rate %.3f below 0.01s", ErrInvalidParams, p.UpdateRate)
	}
	return nil
}

// SynthUpdate is an immutable message from the producer to the synth. An
// update with no partials changes parameters only.
type SynthUpdate struct {
	Seq      uint64
	Partials analysis.Snapshot
	Params
}

// HasPartials reports whether the update carries wavetable data.
func (u *SynthUpdate) HasPartials() bool {
	return len(u.Partials) > 0
}

// ParamStore guards the parameters for one writer and the producer.
type ParamStore struct {
	mu      sync.RWMutex
	params  Params
	version uint64 // bumped when gain or freq_scale change
}

// NewParamStore wraps validated initial parameters.
func NewParamStore(p Params) *ParamStore {
	return &ParamStore{params: p}
}

// Load returns the current parameters and their version.
func (s *ParamStore) Load() (Params, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params, s.version
}

// TryLoad is Load without waiting on a writer.
func (s *ParamStore) TryLoad() (Params, uint64, bool) {
	if !s.mu.TryRLock() {
		return Params{}, 0, false
	}
	defer s.mu.RUnlock()
	return s.params, s.version, true
}

// Update applies fn to a copy and stores it if valid. Gain and freq_scale
// changes bump the version so the producer sends them without waiting for
// the next period.
func (s *ParamStore) Update(fn func(*Params)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.params
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	if next.Gain != s.params.Gain || next.FreqScale != s.params.FreqScale {
		s.version++
	}
	s.params = next
	return nil
}
