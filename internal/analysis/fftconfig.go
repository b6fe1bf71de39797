// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"sync"

	"partialsynth/internal/config"
)

// ErrInvalidFFTConfig is returned when an update would break the invariants
// the analysis relies on.
var ErrInvalidFFTConfig = errors.New("invalid fft config")

// FFTConfig holds the process-wide analysis parameters.
type FFTConfig struct {
	MinFrequency    float64
	MaxFrequency    float64
	DBThreshold     float64
	MinFreqSpacing  float64
	Window          WindowFunc
	Gate            GateMode
	NumPartials     int
	AveragingFactor float64
	FramesPerBuffer int
}

// NewFFTConfig builds an FFTConfig from the analysis section of the file
// configuration.
func NewFFTConfig(c config.AnalysisConfig, framesPerBuffer int) (FFTConfig, error) {
	w, err := ParseWindowFunc(c.WindowType)
	if err != nil {
		return FFTConfig{}, fmt.Errorf("%w: %v", ErrInvalidFFTConfig, err)
	}
	gate, err := ParseGateMode(c.GateMode)
	if err != nil {
		return FFTConfig{}, fmt.Errorf("%w: %v", ErrInvalidFFTConfig, err)
	}
	cfg := FFTConfig{
		MinFrequency:    c.MinFrequency,
		MaxFrequency:    c.MaxFrequency,
		DBThreshold:     c.DBThreshold,
		MinFreqSpacing:  c.MinFreqSpacing,
		Window:          w,
		Gate:            gate,
		NumPartials:     c.NumPartials,
		AveragingFactor: c.AveragingFactor,
		FramesPerBuffer: framesPerBuffer,
	}
	return cfg, cfg.Validate()
}

// Validate checks min < max and at least one partial.
func (c FFTConfig) Validate() error {
	if c.MinFrequency >= c.MaxFrequency {
		return fmt.Errorf("%w: min_frequency %.2f must be below max_frequency %.2f", ErrInvalidFFTConfig, c.MinFrequency, c.MaxFrequency)
	}
	if c.NumPartials < 1 {
		return fmt.Errorf("%w: num_partials must be >= 1, got %d", ErrInvalidFFTConfig, c.NumPartials)
	}
	if c.MinFreqSpacing < 0 {
		return fmt.Errorf("%w: min_freq_spacing must not be negative", ErrInvalidFFTConfig)
	}
	if c.AveragingFactor < 0 || c.AveragingFactor >= 1 {
		return fmt.Errorf("%w: averaging_factor %.3f outside [0, 1)", ErrInvalidFFTConfig, c.AveragingFactor)
	}
	return nil
}

// GateMode selects what the analysis gate does with samples below the
// threshold.
type GateMode int

const (
	// GateDrop removes them; the transform length is the surviving count.
	GateDrop GateMode = iota
	// GateZero silences them in place; the transform length is the buffer
	// length.
	GateZero
)

func (g GateMode) String() string {
	switch g {
	case GateDrop:
		return config.GateDrop
	case GateZero:
		return config.GateZero
	}
	return fmt.Sprintf("GateMode(%d)", int(g))
}

// ParseGateMode converts a configured name. An empty name selects GateDrop.
func ParseGateMode(name string) (GateMode, error) {
	switch name {
	case "", config.GateDrop:
		return GateDrop, nil
	case config.GateZero:
		return GateZero, nil
	}
	return GateDrop, fmt.Errorf("unknown gate mode: '%s'", name)
}

// SharedConfig guards an FFTConfig for one writer (the control surface) and
// many readers (analysis and pitch goroutines).
type SharedConfig struct {
	mu  sync.RWMutex
	cfg FFTConfig
}

// NewSharedConfig wraps an already validated configuration.
func NewSharedConfig(cfg FFTConfig) *SharedConfig {
	return &SharedConfig{cfg: cfg}
}

// Load returns a copy of the current configuration.
func (s *SharedConfig) Load() FFTConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// TryLoad returns a copy without waiting when a writer holds the lock. A
// false result means the caller should skip its cycle.
func (s *SharedConfig) TryLoad() (FFTConfig, bool) {
	if !s.mu.TryRLock() {
		return FFTConfig{}, false
	}
	defer s.mu.RUnlock()
	return s.cfg, true
}

// Update applies fn to a copy and stores it if the result is valid.
func (s *SharedConfig) Update(fn func(*FFTConfig)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	s.cfg = next
	return nil
}
