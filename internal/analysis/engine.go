// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"sync/atomic"
	"time"

	applog "partialsynth/internal/log"
)

// Engine periodically analyses the newest window of the sample source and
// publishes one Snapshot per cycle.
type Engine struct {
	source     SampleSource
	config     *SharedConfig
	store      *Store
	history    *History
	sinks      []FrameSink
	sampleRate float64
	interval   time.Duration

	analyzer Analyzer
	frames   []float32 // interleaved copy of the source
	channel  []float32 // de-interleaved scratch

	cycles  atomic.Uint64
	skipped atomic.Uint64
}

// NewEngine wires an analysis loop. history may be nil.
func NewEngine(source SampleSource, cfg *SharedConfig, store *Store, history *History, sampleRate float64, interval time.Duration) *Engine {
	capacity := source.Capacity()
	return &Engine{
		source:     source,
		config:     cfg,
		store:      store,
		history:    history,
		sampleRate: sampleRate,
		interval:   interval,
		frames:     make([]float32, capacity*source.Channels()),
		channel:    make([]float32, 0, capacity),
	}
}

// AddSink registers a sink. It must be called before Run.
func (e *Engine) AddSink(s FrameSink) {
	e.sinks = append(e.sinks, s)
}

// Step runs one analysis cycle. It returns false when the cycle was skipped
// because the configuration was being written.
func (e *Engine) Step() (*Frame, bool) {
	cfg, ok := e.config.TryLoad()
	if !ok {
		e.skipped.Add(1)
		return nil, false
	}

	channels := e.source.Channels()
	n := e.source.GetLatestInto(e.frames)
	window := e.frames[:n*channels]

	snap := NewSnapshot(channels, cfg.NumPartials)
	for ch := 0; ch < channels; ch++ {
		e.channel = ExtractChannelDataInto(e.channel, window, ch, channels)
		if silent(e.channel) {
			continue
		}
		snap[ch] = e.analyzer.Analyze(e.channel, e.sampleRate, cfg)
	}

	f := e.store.Publish(snap)
	if e.history != nil {
		e.history.Record(snap)
	}
	for _, s := range e.sinks {
		s.OnFrame(f)
	}
	e.cycles.Add(1)
	return f, true
}

// Run analyses every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	applog.Infof("Analysis: starting (%d channels, %d frame window, every %v)",
		e.source.Channels(), e.source.Capacity(), e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			applog.Infof("Analysis: stopped after %d cycles (%d skipped)", e.cycles.Load(), e.skipped.Load())
			return nil
		case <-ticker.C:
			e.Step()
		}
	}
}

// Cycles returns the number of completed cycles.
func (e *Engine) Cycles() uint64 { return e.cycles.Load() }

// Skipped returns the number of cycles skipped on lock contention.
func (e *Engine) Skipped() uint64 { return e.skipped.Load() }

func silent(samples []float32) bool {
	for _, s := range samples {
		if s != 0 {
			return false
		}
	}
	return true
}
