// SPDX-License-Identifier: MIT
/*
Package pipeline builds the processing graph from a Config and owns the
lifetime of every goroutine in it.

	capture cb ─▶ ring ─▶ analysis ─▶ store ─▶ producer ─▶ slot ─▶ output cb
	                  └──▶ pitch ◀───────┘ └─▶ display, band energy

A single context cancels all loops; the supervisors then stop their
streams and the output supervisor stops the producer.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"partialsynth/internal/analysis"
	"partialsynth/internal/audio"
	"partialsynth/internal/config"
	applog "partialsynth/internal/log"
	"partialsynth/internal/resynth"
	"partialsynth/internal/ringbuffer"
	"partialsynth/internal/transport"
	"partialsynth/internal/transport/udp"
	"partialsynth/internal/tui"
)

const telemetryQueue = 8

// Pipeline is the assembled system.
type Pipeline struct {
	cfg        *config.Config
	sampleRate float64

	ring      *ringbuffer.Buffer
	fftConfig *analysis.SharedConfig
	store     *analysis.Store
	history   *analysis.History
	analysis  *analysis.Engine
	pitch     *analysis.PitchEngine
	params    *resynth.ParamStore
	slot      *resynth.UpdateSlot
	synth     *resynth.Synth
	producer  *resynth.Producer
	display   *Display

	transport transport.Transport
	telemetry *udp.TelemetryPublisher

	capture          *audio.Capture
	output           *audio.Output
	inputSupervisor  *audio.Supervisor
	outputSupervisor *audio.Supervisor
	recorder         *audio.Recorder
	recordingFile    string

	closeOnce sync.Once
}

// New looks up the devices and builds every component. PortAudio must be
// initialised. The analysis rate is the preferred rate if the input device
// supports it, else the first supported candidate.
func New(cfg *config.Config, policy config.BufferPolicy) (*Pipeline, error) {
	ring := ringbuffer.New(cfg.Audio.RingFrames, len(cfg.Audio.InputChannels))
	capture, err := audio.NewCapture(cfg.Audio, policy, cfg.Supervisor.StallTimeout, ring)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	rate, err := audio.ChooseRate(cfg.Audio.SampleRate, cfg.Audio.CandidateRates, capture.Supports)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	if rate != cfg.Audio.SampleRate {
		applog.Warnf("Pipeline: input does not support %.0f Hz, analysing at %.0f Hz", cfg.Audio.SampleRate, rate)
	}

	p, err := newCore(cfg, policy, ring, rate)
	if err != nil {
		return nil, err
	}

	output, err := audio.NewOutput(cfg.Audio, policy, cfg.Supervisor.StallTimeout, p.synth)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("output: %w", err), p.close())
	}
	p.capture = capture
	p.output = output
	// The analysis rate is fixed, so the input has no fallback.
	p.inputSupervisor = audio.NewSupervisor(capture, cfg.Supervisor, rate, nil)
	p.outputSupervisor = audio.NewSupervisor(output, cfg.Supervisor, rate, cfg.Audio.CandidateRates, p.producer)
	return p, nil
}

// newCore builds everything that does not touch a device.
func newCore(cfg *config.Config, policy config.BufferPolicy, ring *ringbuffer.Buffer, rate float64) (*Pipeline, error) {
	fftCfg, err := analysis.NewFFTConfig(cfg.Analysis, policy.FramesPerBuffer)
	if err != nil {
		return nil, err
	}
	params := resynth.ParamsFromConfig(cfg.Resynth)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	channels := ring.Channels()
	p := &Pipeline{
		cfg:        cfg,
		sampleRate: rate,
		ring:       ring,
		fftConfig:  analysis.NewSharedConfig(fftCfg),
		store:      analysis.NewStore(channels, fftCfg.NumPartials),
		history:    analysis.NewHistory(cfg.Analysis.HistoryCapacity),
		params:     resynth.NewParamStore(params),
		slot:       &resynth.UpdateSlot{},
	}
	p.analysis = analysis.NewEngine(ring, p.fftConfig, p.store, p.history, rate, cfg.Analysis.Interval)
	p.synth = resynth.NewSynth(channels, cfg.Resynth.WavetableSize, rate, params, p.slot)

	var pitch PitchSource
	if cfg.Pitch.Enabled {
		p.pitch = analysis.NewPitchEngine(ring, p.fftConfig, p.store, rate, cfg.Pitch.WindowSize, cfg.Pitch.YinThreshold, cfg.Pitch.Interval)
		pitch = p.pitch
	}

	transports := transport.Multi{transport.NewLoggingTransport()}
	if cfg.Transport.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("display: %w", err), transports.Close())
		}
		transports = append(transports, ws)
	}
	p.transport = transports
	p.analysis.AddSink(analysis.NewBandEnergyProcessor(p.transport, nil))
	p.display = NewDisplay(p.store, pitch, p.history, p.transport, cfg.Transport.DisplayInterval)

	var telemetry resynth.TelemetrySink
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("telemetry: %w", err), p.close())
		}
		if p.telemetry, err = udp.NewTelemetryPublisher(sender, telemetryQueue); err != nil {
			return nil, errors.Join(err, sender.Close(), p.close())
		}
		telemetry = p.telemetry
	}
	p.producer = resynth.NewProducer(p.store, p.params, p.slot, telemetry)
	return p, nil
}

// SampleRate returns the analysis sample rate.
func (p *Pipeline) SampleRate() float64 { return p.sampleRate }

// Run opens the streams and blocks until ctx is cancelled or a loop fails.
// A missing sample rate on either stream is returned at once.
func (p *Pipeline) Run(ctx context.Context) error {
	now := time.Now()
	if err := p.inputSupervisor.Start(now); err != nil {
		return errors.Join(err, p.close())
	}
	if err := p.outputSupervisor.Start(now); err != nil {
		return errors.Join(err, p.inputSupervisor.Shutdown(), p.close())
	}
	if p.cfg.Recording.Enabled {
		if err := p.startRecording(); err != nil {
			applog.Errorf("Pipeline: recording disabled: %v", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	p.startWorkers(gctx, g)
	g.Go(func() error { return p.inputSupervisor.Run(gctx) })
	g.Go(func() error { return p.outputSupervisor.Run(gctx) })

	err := g.Wait()
	return errors.Join(err, p.close())
}

// startWorkers launches the device independent loops.
func (p *Pipeline) startWorkers(ctx context.Context, g *errgroup.Group) {
	if p.telemetry != nil {
		p.telemetry.Start()
	}
	g.Go(func() error { return p.analysis.Run(ctx) })
	if p.pitch != nil {
		g.Go(func() error { return p.pitch.Run(ctx) })
	}
	g.Go(func() error { return p.producer.Run(ctx) })
	g.Go(func() error { return p.display.Run(ctx) })
}

func (p *Pipeline) startRecording() error {
	name := p.cfg.Recording.OutputFile
	if name == "" {
		name = audio.DefaultRecordingName(time.Now())
	}
	rate := p.outputSupervisor.Rate()
	if rate == 0 {
		rate = p.sampleRate
	}
	r, err := audio.NewRecorder(name, rate, p.cfg.Recording.BitDepth)
	if err != nil {
		return err
	}
	p.recorder = r
	p.recordingFile = name
	p.output.SetTap(r)
	return nil
}

// RecordingFile returns the WAV file being written, or "" when not recording.
func (p *Pipeline) RecordingFile() string { return p.recordingFile }

// close releases sinks after every stream has stopped.
func (p *Pipeline) close() error {
	var err error
	p.closeOnce.Do(func() {
		var errs []error
		if p.recorder != nil {
			p.output.SetTap(nil)
			errs = append(errs, p.recorder.Close())
		}
		if p.telemetry != nil {
			errs = append(errs, p.telemetry.Close())
		}
		if p.transport != nil {
			errs = append(errs, p.transport.Close())
		}
		err = errors.Join(errs...)
	})
	return err
}

// Status implements tui.Source.
func (p *Pipeline) Status() tui.Status {
	params, _ := p.params.Load()
	s := tui.Status{
		Frame:        p.store.Latest(),
		Synth:        p.synth.Status(),
		Params:       params,
		Window:       p.fftConfig.Load().Window,
		InputIdle:    p.ring.IdleFor(time.Now()),
		StallTimeout: p.cfg.Supervisor.StallTimeout,
	}
	if p.cfg.TUI.ShowHistory {
		s.HistoryRows = p.history.Len()
	}
	if p.pitch != nil {
		s.Pitch = p.pitch.Latest()
	}
	if p.outputSupervisor != nil {
		s.Output = p.outputSupervisor.State()
		s.OutputRate = p.outputSupervisor.Rate()
		s.Failures = p.outputSupervisor.Failures()
	}
	return s
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// AdjustGain implements tui.Controls.
func (p *Pipeline) AdjustGain(delta float64) error {
	return p.params.Update(func(r *resynth.Params) { r.Gain = round2(r.Gain + delta) })
}

// AdjustFreqScale implements tui.Controls.
func (p *Pipeline) AdjustFreqScale(delta float64) error {
	return p.params.Update(func(r *resynth.Params) { r.FreqScale = round2(r.FreqScale + delta) })
}

// CycleWindow implements tui.Controls.
func (p *Pipeline) CycleWindow() error {
	return p.fftConfig.Update(func(c *analysis.FFTConfig) {
		c.Window = (c.Window + 1) % (analysis.Rectangular + 1)
	})
}

// RequestRestart implements tui.Controls.
func (p *Pipeline) RequestRestart() {
	if p.outputSupervisor != nil {
		p.outputSupervisor.RequestRestart()
	}
}

var (
	_ tui.Source   = (*Pipeline)(nil)
	_ tui.Controls = (*Pipeline)(nil)
)
