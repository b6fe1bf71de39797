// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	applog "partialsynth/internal/log"
	"partialsynth/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Hardware and processing limits.
const (
	MinDeviceID      = -1     // -1 represents the system default device
	MinSampleRate    = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate    = 192000 // Maximum supported sample rate (Hz)
	MinRingFrames    = 512
	MaxRingFrames    = 65536
	MaxBufferFrames  = 8192
	MaxNumPartials   = 64
	OutputChannels   = 2 // Stereo output regardless of analysed channel count
	DefaultTableSize = 2048
)

// Gate modes accepted by analysis.gate_mode.
const (
	GateDrop = "drop"
	GateZero = "zero"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug      bool             `yaml:"debug"`     // Enable debug logging.
	LogLevel   string           `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Command    string           `yaml:"-"`         // One-off command selected on the command line (e.g., "list").
	Monitor    bool             `yaml:"-"`         // Run the terminal monitor alongside the pipeline.
	Pick       bool             `yaml:"-"`         // Choose devices interactively before starting.
	Audio      AudioConfig      `yaml:"audio"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Pitch      PitchConfig      `yaml:"pitch"`
	Resynth    ResynthConfig    `yaml:"resynth"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Transport  TransportConfig  `yaml:"transport"`
	Recording  RecordingConfig  `yaml:"recording"`
	TUI        TUIConfig        `yaml:"tui"`
}

// AudioConfig holds device and buffering settings.
type AudioConfig struct {
	InputDevice     int       `yaml:"input_device"`      // PortAudio device index for capture (-1 for default).
	OutputDevice    int       `yaml:"output_device"`     // PortAudio device index for playback (-1 for default).
	SampleRate      float64   `yaml:"sample_rate"`       // Preferred sample rate in Hz.
	CandidateRates  []float64 `yaml:"candidate_rates"`   // Fallback rates tried in order when the preferred one fails.
	FramesPerBuffer int       `yaml:"frames_per_buffer"` // 0 resolves from the platform buffer policy.
	LowLatency      bool      `yaml:"low_latency"`       // Request low latency device parameters.
	InputChannels   []int     `yaml:"input_channels"`    // Device channel indices to analyse.
	RingFrames      int       `yaml:"ring_frames"`       // Ring capacity in frames, 0 derives it from the sample rate.
}

// AnalysisConfig holds the spectral analysis parameters.
type AnalysisConfig struct {
	MinFrequency    float64       `yaml:"min_frequency"`    // Lower pass-band edge (Hz).
	MaxFrequency    float64       `yaml:"max_frequency"`    // Upper pass-band edge (Hz).
	DBThreshold     float64       `yaml:"db_threshold"`     // Gate and partial threshold (dBFS).
	MinFreqSpacing  float64       `yaml:"min_freq_spacing"` // Minimum distance between accepted partials (Hz).
	WindowType      string        `yaml:"window_type"`      // Window function name.
	GateMode        string        `yaml:"gate_mode"`        // "drop" removes gated samples, "zero" silences them in place.
	NumPartials     int           `yaml:"num_partials"`     // Fixed partial count per channel.
	AveragingFactor float64       `yaml:"averaging_factor"` // Pitch smoothing factor in [0,1).
	Interval        time.Duration `yaml:"interval"`         // Analysis cadence.
	HistoryCapacity int           `yaml:"history_capacity"` // Spectrogram rows kept for display.
}

// PitchConfig holds the pitch tracker settings.
type PitchConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`      // Tracker cadence, independent of analysis.
	WindowSize   int           `yaml:"window_size"`   // Samples fed to the detector.
	YinThreshold float64       `yaml:"yin_threshold"` // Absolute threshold on the normalised difference.
}

// ResynthConfig holds the resynthesis parameters.
type ResynthConfig struct {
	Gain          float64 `yaml:"gain"`           // Output gain in [0,1].
	FreqScale     float64 `yaml:"freq_scale"`     // Playback frequency multiplier.
	UpdateRate    float64 `yaml:"update_rate"`    // Seconds between synth updates.
	Smoothing     float64 `yaml:"smoothing"`      // Passed through with each update for consumers.
	WavetableSize int     `yaml:"wavetable_size"` // Samples per one-period table (power of two).
}

// SupervisorConfig holds output stream supervision timings.
type SupervisorConfig struct {
	HealthInterval time.Duration `yaml:"health_interval"` // Liveness poll period.
	BackoffStep    time.Duration `yaml:"backoff_step"`    // Added per consecutive failure.
	BackoffMax     time.Duration `yaml:"backoff_max"`     // Backoff cap.
	SettleDelay    time.Duration `yaml:"settle_delay"`    // Pause between stop and reopen.
	StallTimeout   time.Duration `yaml:"stall_timeout"`   // Callback silence treated as failure.
}

// TransportConfig holds settings related to sending processed data over the network.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable telemetry over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets.
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Enable the display websocket.
	WebSocketAddress string        `yaml:"websocket_address"`  // Listen address, e.g. ":8080".
	DisplayInterval  time.Duration `yaml:"display_interval"`   // Interval between display frames.
}

// RecordingConfig holds settings for recording the resynthesised output.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"` // Empty generates recording-DD-MM-YYYY-HHMMSS.wav.
	BitDepth   int    `yaml:"bit_depth"`
}

// TUIConfig holds settings for the terminal monitor.
type TUIConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ShowHistory     bool          `yaml:"show_history"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:    MinDeviceID,
			OutputDevice:   MinDeviceID,
			SampleRate:     48000,
			CandidateRates: []float64{48000, 44100, 96000, 88200, 32000, 22050, 16000},
			InputChannels:  []int{0},
		},
		Analysis: AnalysisConfig{
			MinFrequency:    20,
			MaxFrequency:    20000,
			DBThreshold:     -32,
			MinFreqSpacing:  20,
			WindowType:      "BlackmanHarris",
			GateMode:        GateDrop,
			NumPartials:     12,
			AveragingFactor: 0.8,
			Interval:        100 * time.Millisecond,
			HistoryCapacity: 256,
		},
		Pitch: PitchConfig{
			Enabled:      true,
			Interval:     50 * time.Millisecond,
			WindowSize:   2048,
			YinThreshold: 0.15,
		},
		Resynth: ResynthConfig{
			Gain:          0.5,
			FreqScale:     1.0,
			UpdateRate:    1.0,
			Smoothing:     0.0,
			WavetableSize: DefaultTableSize,
		},
		Supervisor: SupervisorConfig{
			HealthInterval: 100 * time.Millisecond,
			BackoffStep:    500 * time.Millisecond,
			BackoffMax:     5 * time.Second,
			SettleDelay:    100 * time.Millisecond,
			StallTimeout:   time.Second,
		},
		Transport: TransportConfig{
			UDPTargetAddress: "127.0.0.1:9090",
			WebSocketAddress: ":8080",
			DisplayInterval:  33 * time.Millisecond,
		},
		Recording: RecordingConfig{
			BitDepth: 16,
		},
		TUI: TUIConfig{
			RefreshInterval: 100 * time.Millisecond,
			ShowHistory:     true,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "partialsynth.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the core relies on. Everything beyond this
// boundary assumes a validated configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	a := c.Audio
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return invalid("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		return invalid("device ids must be >= %d", MinDeviceID)
	}
	if a.FramesPerBuffer < 0 || a.FramesPerBuffer > MaxBufferFrames {
		return invalid("audio.frames_per_buffer %d outside [0, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}
	if len(a.InputChannels) == 0 {
		return invalid("audio.input_channels must select at least one channel")
	}
	seen := make(map[int]bool, len(a.InputChannels))
	for _, ch := range a.InputChannels {
		if ch < 0 || seen[ch] {
			return invalid("audio.input_channels contains invalid or duplicate channel %d", ch)
		}
		seen[ch] = true
	}
	if a.RingFrames != 0 && (a.RingFrames < MinRingFrames || a.RingFrames > MaxRingFrames) {
		return invalid("audio.ring_frames %d outside [%d, %d]", a.RingFrames, MinRingFrames, MaxRingFrames)
	}

	an := c.Analysis
	if an.MinFrequency < 0 || an.MinFrequency >= an.MaxFrequency {
		return invalid("analysis.min_frequency (%.2f) must be >= 0 and below max_frequency (%.2f)", an.MinFrequency, an.MaxFrequency)
	}
	if an.NumPartials < 1 || an.NumPartials > MaxNumPartials {
		return invalid("analysis.num_partials %d outside [1, %d]", an.NumPartials, MaxNumPartials)
	}
	if an.MinFreqSpacing < 0 {
		return invalid("analysis.min_freq_spacing must not be negative")
	}
	if an.AveragingFactor < 0 || an.AveragingFactor >= 1 {
		return invalid("analysis.averaging_factor %.3f outside [0, 1)", an.AveragingFactor)
	}
	if an.GateMode != "" && an.GateMode != GateDrop && an.GateMode != GateZero {
		return invalid("analysis.gate_mode %q must be %q or %q", an.GateMode, GateDrop, GateZero)
	}
	if an.Interval <= 0 {
		return invalid("analysis.interval must be positive")
	}
	if an.HistoryCapacity < 0 {
		return invalid("analysis.history_capacity must not be negative")
	}
	if _, ok := windowNames[normaliseWindowName(an.WindowType)]; !ok {
		return invalid("analysis.window_type %q is not supported", an.WindowType)
	}

	if c.Pitch.Enabled {
		if c.Pitch.Interval <= 0 || c.Pitch.WindowSize < 64 {
			return invalid("pitch.interval must be positive and pitch.window_size >= 64")
		}
		if c.Pitch.YinThreshold <= 0 || c.Pitch.YinThreshold >= 1 {
			return invalid("pitch.yin_threshold %.3f outside (0, 1)", c.Pitch.YinThreshold)
		}
	}

	r := c.Resynth
	if r.Gain < 0 || r.Gain > 1 {
		return invalid("resynth.gain %.3f outside [0, 1]", r.Gain)
	}
	if r.FreqScale <= 0 {
		return invalid("resynth.freq_scale must be positive")
	}
	if r.UpdateRate < 0.01 || r.UpdateRate > 60 {
		return invalid("resynth.update_rate %.3f outside [0.01, 60] seconds", r.UpdateRate)
	}
	if r.WavetableSize < 64 || !bitint.IsPowerOfTwo(r.WavetableSize) {
		return invalid("resynth.wavetable_size %d must be a power of two >= 64", r.WavetableSize)
	}

	s := c.Supervisor
	if s.HealthInterval <= 0 || s.BackoffStep <= 0 || s.BackoffMax < s.BackoffStep || s.StallTimeout <= 0 || s.SettleDelay < 0 {
		return invalid("supervisor timings must be positive and backoff_max >= backoff_step")
	}

	t := c.Transport
	if t.UDPEnabled && t.UDPTargetAddress == "" {
		return invalid("transport.udp_target_address must be set when UDP is enabled")
	}
	if t.WebSocketEnabled && (t.WebSocketAddress == "" || t.DisplayInterval <= 0) {
		return invalid("transport.websocket_address and display_interval must be set when the websocket is enabled")
	}

	if c.Recording.Enabled && c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 && c.Recording.BitDepth != 32 {
		return invalid("recording.bit_depth %d must be 16, 24 or 32", c.Recording.BitDepth)
	}
	if c.Monitor && c.TUI.RefreshInterval <= 0 {
		return invalid("tui.refresh_interval must be positive")
	}
	return nil
}

// applyEnvOverrides applies ENV_* variables on top of file and default values.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			applog.Infof("configuration: overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Infof("configuration: overriding log_level from env: %s", val)
	}
	// ENV_SAMPLE_RATE
	if val, ok := os.LookupEnv("ENV_SAMPLE_RATE"); ok {
		if fVal, err := strconv.ParseFloat(val, 64); err == nil {
			c.Audio.SampleRate = fVal
			applog.Infof("configuration: overriding audio.sample_rate from env: %.0f", fVal)
		}
	}

	// ENV_UDP_{...} are specific to the telemetry transport.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			applog.Infof("configuration: overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Infof("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
		c.Transport.WebSocketEnabled = val != ""
		applog.Infof("configuration: overriding transport.websocket_address from env: %s", val)
	}
}
