// SPDX-License-Identifier: MIT
package resynth

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"partialsynth/internal/analysis"
	applog "partialsynth/internal/log"
)

// pollInterval bounds how late the producer observes shutdown and
// parameter changes.
const pollInterval = 10 * time.Millisecond

// TelemetrySink receives the partials of every update sent to the synth.
// udp.TelemetryPublisher implements it.
type TelemetrySink interface {
	Publish(snap analysis.Snapshot)
}

// Producer turns published analysis frames into SynthUpdates. It sends at
// most once per update period, and at once when gain or freq_scale change.
type Producer struct {
	snapshots analysis.SnapshotSource
	params    *ParamStore
	slot      *UpdateSlot
	telemetry TelemetrySink

	lastSent    time.Time
	lastVersion uint64
	cache       analysis.Snapshot // partials of the last update that had any
	seq         uint64

	stopped atomic.Bool
	sent    atomic.Uint64
	dropped atomic.Uint64
	skipped atomic.Uint64
}

// NewProducer wires a producer. telemetry may be nil.
func NewProducer(snapshots analysis.SnapshotSource, params *ParamStore, slot *UpdateSlot, telemetry TelemetrySink) *Producer {
	_, version := params.Load()
	return &Producer{
		snapshots:   snapshots,
		params:      params,
		slot:        slot,
		telemetry:   telemetry,
		lastVersion: version,
	}
}

// Step decides whether an update is due at now and pushes it. It returns
// the update it pushed, or nil.
//
// Partials come from the latest published frame, falling back to the last
// ones sent, and only go out on the update period. A gain or freq_scale
// change between periods is sent at once as an update without partials, so
// it neither restarts the crossfade nor moves the period.
func (p *Producer) Step(now time.Time) *SynthUpdate {
	if p.stopped.Load() {
		return nil
	}
	params, version, ok := p.params.TryLoad()
	if !ok {
		p.skipped.Add(1)
		return nil
	}

	forced := version != p.lastVersion
	period := time.Duration(params.UpdateRate * float64(time.Second))
	due := p.lastSent.IsZero() || now.Sub(p.lastSent) >= period
	if !forced && !due {
		return nil
	}

	var partials analysis.Snapshot
	if due {
		partials = p.cache
		if f := p.snapshots.Latest(); f != nil && f.Seq > 0 {
			partials = f.Partials
		}
	}
	if partials == nil && !forced {
		return nil
	}

	p.seq++
	u := &SynthUpdate{Seq: p.seq, Partials: partials, Params: params}
	if p.slot.Push(u) {
		p.dropped.Add(1)
	}
	p.sent.Add(1)
	p.lastVersion = version
	if partials != nil {
		p.lastSent = now
		p.cache = partials
		if p.telemetry != nil {
			p.telemetry.Publish(partials)
		}
		applog.Debugf("Resynth: update %d %s", u.Seq, FormatPartials(partials))
	} else {
		applog.Debugf("Resynth: update %d parameters only (gain %.2f, freq_scale %.2f)", u.Seq, params.Gain, params.FreqScale)
	}
	return u
}

// Run polls until ctx is cancelled or Stop is called.
func (p *Producer) Run(ctx context.Context) error {
	applog.Infof("Resynth: update producer started")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			applog.Infof("Resynth: update producer stopped after %d updates (%d overwritten)", p.sent.Load(), p.dropped.Load())
			return nil
		case now := <-ticker.C:
			if p.stopped.Load() {
				applog.Infof("Resynth: update producer stopped by supervisor after %d updates", p.sent.Load())
				return nil
			}
			p.Step(now)
		}
	}
}

// Stop prevents any further pushes. Run returns on its next poll.
func (p *Producer) Stop() {
	p.stopped.Store(true)
}

// Sent returns how many updates were pushed.
func (p *Producer) Sent() uint64 { return p.sent.Load() }

// Dropped returns how many pushed updates replaced one the synth had not taken.
func (p *Producer) Dropped() uint64 { return p.dropped.Load() }

// FormatPartials renders the active partials of every channel on one line.
func FormatPartials(snap analysis.Snapshot) string {
	var b strings.Builder
	for ch := range snap {
		if ch > 0 {
			b.WriteString(" | ")
		}
		fmt.Fprintf(&b, "ch%d:", ch)
		active := snap.Active(ch)
		if len(active) == 0 {
			b.WriteString(" -")
			continue
		}
		for _, pt := range active {
			fmt.Fprintf(&b, " %.1fHz@%.1f", pt.Frequency, pt.Amplitude)
		}
	}
	return b.String()
}
