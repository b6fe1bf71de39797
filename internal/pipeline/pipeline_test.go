// SPDX-License-Identifier: MIT
package pipeline

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"partialsynth/internal/analysis"
	"partialsynth/internal/config"
	"partialsynth/internal/ringbuffer"
	"partialsynth/internal/transport/udp"
	"partialsynth/pkg/utils"
)

const (
	testRate = 48000.0
	testFreq = 427.5 // lands on a bin of the gated -6 dB window
	binWidth = testRate / 2048
)

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Audio.RingFrames = 2048
	cfg.Analysis.MinFrequency = 20
	cfg.Analysis.MaxFrequency = 1000
	cfg.Analysis.DBThreshold = -40
	cfg.Analysis.MinFreqSpacing = 5
	cfg.Analysis.NumPartials = 4
	cfg.Resynth.Gain = 1
	cfg.Resynth.UpdateRate = 0.1
	return cfg
}

func newTestCore(t *testing.T, cfg *config.Config) *Pipeline {
	t.Helper()
	ring := ringbuffer.New(cfg.Audio.RingFrames, len(cfg.Audio.InputChannels))
	p, err := newCore(cfg, config.BufferPolicy{FramesPerBuffer: 1024}, ring, testRate)
	require.NoError(t, err)
	t.Cleanup(func() { p.close() })
	return p
}

func feedSine(p *Pipeline, freq float64) {
	amp := utils.DBToLinear(-6)
	p.ring.PushBatch(utils.GenerateSineWave(p.ring.Capacity(), testRate, freq, amp))
}

func TestCoreSineToSynthOutput(t *testing.T) {
	p := newTestCore(t, testConfig())
	feedSine(p, testFreq)

	f, ok := p.analysis.Step()
	require.True(t, ok)
	partials := f.Partials.Channel(0)
	require.Len(t, partials, 4)
	assert.InDelta(t, testFreq, partials[0].Frequency, binWidth)
	assert.Greater(t, partials[0].Amplitude, 40.0)
	for _, z := range partials[1:] {
		assert.True(t, z.IsZero())
	}

	u := p.producer.Step(time.Now())
	require.NotNil(t, u)
	assert.True(t, u.HasPartials())

	// One full update period completes the first crossfade.
	out := make([]float32, 4800*config.OutputChannels)
	p.synth.Process(out)
	cur, _ := p.synth.Roots(0)
	assert.Equal(t, partials[0].Frequency, cur)

	p.synth.Process(out)
	peak := float32(0)
	for _, v := range out {
		peak = max(peak, v, -v)
	}
	assert.Greater(t, peak, float32(0.01))
	assert.LessOrEqual(t, peak, float32(1))
}

func TestCoreAnalysesA440(t *testing.T) {
	p := newTestCore(t, testConfig())
	feedSine(p, 440)

	f, ok := p.analysis.Step()
	require.True(t, ok)
	partials := f.Partials.Channel(0)
	require.Len(t, partials, 4)
	assert.InDelta(t, 440, partials[0].Frequency, binWidth)
	assert.Positive(t, partials[0].Amplitude)
	for _, z := range partials[1:] {
		assert.True(t, z.IsZero())
	}
}

func TestCorePitchTracksSine(t *testing.T) {
	p := newTestCore(t, testConfig())
	require.NotNil(t, p.pitch)
	feedSine(p, testFreq)

	_, ok := p.analysis.Step()
	require.True(t, ok)
	results, ok := p.pitch.Step()
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.InDelta(t, testFreq, results[0].Frequency, 2)
	assert.Greater(t, results[0].Confidence, 0.5)
}

func TestCorePitchDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Pitch.Enabled = false
	p := newTestCore(t, cfg)
	assert.Nil(t, p.pitch)
	assert.Nil(t, p.Status().Pitch)
}

func TestCoreControls(t *testing.T) {
	p := newTestCore(t, testConfig())

	require.NoError(t, p.AdjustGain(-0.05))
	assert.Equal(t, 0.95, p.Status().Params.Gain)
	assert.Error(t, p.AdjustGain(0.1), "gain above 1")
	assert.Equal(t, 0.95, p.Status().Params.Gain)

	require.NoError(t, p.AdjustFreqScale(0.05))
	assert.Equal(t, 1.05, p.Status().Params.FreqScale)

	assert.Equal(t, analysis.BlackmanHarris, p.Status().Window)
	require.NoError(t, p.CycleWindow())
	assert.Equal(t, analysis.BartlettHann, p.Status().Window)
	for i := 0; i < int(analysis.Rectangular); i++ {
		require.NoError(t, p.CycleWindow())
	}
	assert.Equal(t, analysis.BlackmanHarris, p.Status().Window)

	// No supervisor without devices.
	p.RequestRestart()
}

func TestCoreForcedParameterUpdate(t *testing.T) {
	p := newTestCore(t, testConfig())
	now := time.Now()

	assert.Nil(t, p.producer.Step(now), "nothing to send before analysis")
	require.NoError(t, p.AdjustGain(-0.5))
	u := p.producer.Step(now)
	require.NotNil(t, u)
	assert.False(t, u.HasPartials())
	assert.Equal(t, 0.5, u.Gain)
}

func TestDisplaySendsEachFrameOnce(t *testing.T) {
	p := newTestCore(t, testConfig())
	mock := &utils.MockTransport{}
	d := NewDisplay(p.store, p.pitch, p.history, mock, time.Millisecond)

	assert.False(t, d.Step(), "nothing analysed yet")

	feedSine(p, testFreq)
	p.analysis.Step()
	p.pitch.Step()
	require.True(t, d.Step())
	assert.False(t, d.Step(), "same frame twice")

	sent := mock.Sent()
	require.Len(t, sent, 1)
	msg, ok := sent[0].(DisplayMessage)
	require.True(t, ok)
	assert.Equal(t, "partials", msg.Type)
	assert.Equal(t, uint64(1), msg.Seq)
	require.Len(t, msg.Magnitudes, 1)
	assert.Equal(t, msg.Partials[0][0].Magnitude(), msg.Magnitudes[0][0])
	require.NotNil(t, msg.History)
	assert.Equal(t, msg.Partials, msg.History.Partials)
	require.Len(t, msg.Pitch, 1)
}

func TestBandEnergySinkReceivesFrames(t *testing.T) {
	p := newTestCore(t, testConfig())
	mock := &utils.MockTransport{}
	p.analysis.AddSink(analysis.NewBandEnergyProcessor(mock, nil))

	feedSine(p, testFreq)
	p.analysis.Step()

	sent := mock.Sent()
	require.Len(t, sent, 1)
	msg := sent[0].(map[string]any)
	assert.Equal(t, "band_energy", msg["type"])
	channels := msg["channels"].([]map[string]float64)
	assert.Equal(t, 1.0, channels[0]["lowMid"])
}

func TestCoreTelemetryOverUDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	cfg := testConfig()
	cfg.Transport.UDPEnabled = true
	cfg.Transport.UDPTargetAddress = conn.LocalAddr().String()
	p := newTestCore(t, cfg)
	require.NotNil(t, p.telemetry)
	p.telemetry.Start()

	feedSine(p, testFreq)
	p.analysis.Step()
	require.NotNil(t, p.producer.Step(time.Now()))

	buf := make([]byte, 2048)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)

	rec, err := udp.ReadRecord(bytes.NewReader(buf[:n]))
	require.NoError(t, err)
	require.Len(t, rec.Channels, 1)
	require.Len(t, rec.Channels[0], 1, "active partials only")
	assert.InDelta(t, testFreq, rec.Channels[0][0].Frequency, binWidth)
}

func TestStartWorkersStopOnCancel(t *testing.T) {
	p := newTestCore(t, testConfig())
	feedSine(p, testFreq)

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	p.startWorkers(gctx, g)

	require.Eventually(t, func() bool { return p.analysis.Cycles() > 0 && p.producer.Sent() > 0 },
		2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, g.Wait())
	assert.NotNil(t, p.slot.Take())
}
