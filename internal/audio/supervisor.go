// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"partialsynth/internal/config"
	applog "partialsynth/internal/log"
)

// State is the supervisor's view of its stream.
type State int32

const (
	NoStream State = iota
	Healthy
	Restarting
)

func (s State) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Restarting:
		return "restarting"
	}
	return "no stream"
}

// Stopper is signalled on shutdown. *resynth.Producer implements it.
type Stopper interface {
	Stop()
}

// Supervisor keeps one stream open. It retries failed opens with a linear
// backoff capped at the configured maximum, tears the stream down when its
// liveness check fails, and reopens it after a settle delay.
//
// Step and Shutdown must be called from one goroutine. State, Rate,
// Failures and RequestRestart are safe from any goroutine.
type Supervisor struct {
	opener     Opener
	cfg        config.SupervisorConfig
	preferred  float64
	candidates []float64
	stoppers   []Stopper
	sleep      func(time.Duration)

	stream      Stream
	nextAttempt time.Time

	state        atomic.Int32
	rate         atomic.Uint64 // math.Float64bits
	failures     atomic.Int32
	restarts     atomic.Uint64
	needsRestart atomic.Bool
	closed       atomic.Bool
	shutdownOnce sync.Once
}

// NewSupervisor supervises streams from opener. stoppers are signalled on
// shutdown, after the stream is stopped.
func NewSupervisor(opener Opener, cfg config.SupervisorConfig, preferred float64, candidates []float64, stoppers ...Stopper) *Supervisor {
	return &Supervisor{
		opener:     opener,
		cfg:        cfg,
		preferred:  preferred,
		candidates: candidates,
		stoppers:   stoppers,
		sleep:      time.Sleep,
	}
}

// State returns the current state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Rate returns the sample rate of the last successful open, or 0.
func (s *Supervisor) Rate() float64 { return math.Float64frombits(s.rate.Load()) }

// Failures returns the consecutive failure count.
func (s *Supervisor) Failures() int { return int(s.failures.Load()) }

// Restarts returns how many times a healthy stream was torn down.
func (s *Supervisor) Restarts() uint64 { return s.restarts.Load() }

// RequestRestart asks for the stream to be reopened on the next Step.
func (s *Supervisor) RequestRestart() { s.needsRestart.Store(true) }

// Backoff returns the wait before the next open attempt.
func (s *Supervisor) Backoff() time.Duration {
	return min(s.cfg.BackoffStep*time.Duration(s.failures.Load()), s.cfg.BackoffMax)
}

// Start makes the first open attempt. A missing sample rate is fatal here;
// any other failure is left to Run to retry.
func (s *Supervisor) Start(now time.Time) error {
	if _, err := ChooseRate(s.preferred, s.candidates, s.opener.Supports); err != nil {
		return fmt.Errorf("%s: %w", s.opener.Name(), err)
	}
	s.Step(now)
	return nil
}

// Step advances the state machine once. It does nothing after Shutdown.
func (s *Supervisor) Step(now time.Time) {
	if s.closed.Load() {
		return
	}
	switch s.State() {
	case NoStream, Restarting:
		if s.failures.Load() > 0 && now.Before(s.nextAttempt) {
			return
		}
		s.needsRestart.Store(false)
		s.attempt(now)
	case Healthy:
		switch {
		case s.needsRestart.Swap(false):
			applog.Infof("Supervisor: %s restart requested", s.opener.Name())
			s.fail(now)
		case !s.stream.Alive(now):
			applog.Warnf("Supervisor: %s stream stalled", s.opener.Name())
			s.fail(now)
		}
	}
}

func (s *Supervisor) attempt(now time.Time) {
	name := s.opener.Name()
	rate, err := ChooseRate(s.preferred, s.candidates, s.opener.Supports)
	if err != nil {
		s.retryLater(now, err)
		return
	}
	stream, err := s.opener.Open(rate)
	if err != nil {
		s.retryLater(now, err)
		return
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		s.retryLater(now, fmt.Errorf("starting %s stream: %w", name, err))
		return
	}

	s.stream = stream
	s.rate.Store(math.Float64bits(rate))
	s.failures.Store(0)
	s.state.Store(int32(Healthy))
	if rate != s.preferred {
		applog.Warnf("Supervisor: %s running at fallback rate %.0f Hz (preferred %.0f Hz)", name, rate, s.preferred)
	} else {
		applog.Infof("Supervisor: %s running at %.0f Hz", name, rate)
	}
}

func (s *Supervisor) retryLater(now time.Time, err error) {
	n := s.failures.Add(1)
	s.nextAttempt = now.Add(s.Backoff())
	applog.Warnf("Supervisor: %s open failed (attempt %d, retry in %v): %v", s.opener.Name(), n, s.Backoff(), err)
}

// fail tears down a healthy stream and schedules a reopen.
func (s *Supervisor) fail(now time.Time) {
	s.state.Store(int32(Restarting))
	s.restarts.Add(1)
	if err := s.teardown(); err != nil {
		applog.Warnf("Supervisor: %s teardown: %v", s.opener.Name(), err)
	}
	s.sleep(s.cfg.SettleDelay)
	s.failures.Add(1)
	s.nextAttempt = now.Add(s.Backoff())
}

func (s *Supervisor) teardown() error {
	if s.stream == nil {
		return nil
	}
	err := errors.Join(s.stream.Stop(), s.stream.Close())
	s.stream = nil
	return err
}

// Run polls the stream every health interval until ctx is cancelled, then
// shuts down.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.Shutdown()
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Shutdown stops any active stream and then the stoppers. Later calls do
// nothing.
func (s *Supervisor) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		s.closed.Store(true)
		err = s.teardown()
		s.state.Store(int32(NoStream))
		for _, st := range s.stoppers {
			st.Stop()
		}
		applog.Infof("Supervisor: %s shut down after %d restarts", s.opener.Name(), s.restarts.Load())
	})
	return err
}
