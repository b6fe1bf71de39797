// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"time"

	"partialsynth/internal/analysis"
	applog "partialsynth/internal/log"
	"partialsynth/internal/transport"
)

// PitchSource provides the latest pitch estimates.
type PitchSource interface {
	Latest() []analysis.PitchResult
}

// DisplayMessage is the JSON frame sent to display clients.
type DisplayMessage struct {
	Type       string                 `json:"type"`
	Seq        uint64                 `json:"seq"`
	Partials   analysis.Snapshot      `json:"partials"`
	Magnitudes [][]float64            `json:"magnitudes"`
	Pitch      []analysis.PitchResult `json:"pitch,omitempty"`
	History    *analysis.HistoryEntry `json:"history,omitempty"`
}

// Display sends the latest partials, pitch and newest history row to a
// transport whenever a new analysis frame is available.
type Display struct {
	store     analysis.SnapshotSource
	pitch     PitchSource
	history   *analysis.History
	transport transport.Transport
	interval  time.Duration

	lastSeq uint64
}

// NewDisplay wires a display publisher. pitch and history may be nil.
func NewDisplay(store analysis.SnapshotSource, pitch PitchSource, history *analysis.History, t transport.Transport, interval time.Duration) *Display {
	return &Display{store: store, pitch: pitch, history: history, transport: t, interval: interval}
}

// Message builds the display frame for f.
func (d *Display) Message(f *analysis.Frame) DisplayMessage {
	msg := DisplayMessage{
		Type:       "partials",
		Seq:        f.Seq,
		Partials:   f.Partials,
		Magnitudes: make([][]float64, len(f.Partials)),
	}
	for ch, partials := range f.Partials {
		mags := make([]float64, len(partials))
		for i, p := range partials {
			mags[i] = p.Magnitude()
		}
		msg.Magnitudes[ch] = mags
	}
	if d.pitch != nil {
		msg.Pitch = d.pitch.Latest()
	}
	if d.history != nil {
		if e, ok := d.history.Latest(); ok {
			msg.History = &e
		}
	}
	return msg
}

// Step sends the latest frame if it has not been sent yet.
func (d *Display) Step() bool {
	f := d.store.Latest()
	if f == nil || f.Seq == d.lastSeq {
		return false
	}
	d.lastSeq = f.Seq
	if err := d.transport.Send(d.Message(f)); err != nil {
		applog.Warnf("Display: send failed: %v", err)
		return false
	}
	return true
}

// Run publishes every interval until ctx is cancelled.
func (d *Display) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.Step()
		}
	}
}
