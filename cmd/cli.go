// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"partialsynth/internal/config"
	"partialsynth/pkg/build"

	"github.com/spf13/cobra"
)

// flags holds the command line values. Only flags set by the user override
// the configuration file.
type flags struct {
	configPath      string
	inputDevice     int
	outputDevice    int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	channels        []int
	record          bool
	outputFile      string
	monitor         bool
	pick            bool
	logLevel        string
	debug           bool
}

// ParseArgs loads the configuration and applies the command line on top of
// it. args excludes the program name.
func ParseArgs(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()
	var f flags
	var options *config.Config

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(f.configPath)
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			options = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} %s (commit %s, built %s)\n",
		buildInfo.Version, buildInfo.Commit, buildInfo.Time))

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = "list"
			return nil
		},
	}
	rootCmd.AddCommand(listCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "",
		"Configuration file. Defaults to config.yaml in the working directory")

	// Audio Device Configuration
	pf.IntVarP(&f.inputDevice, "input-device", "d", config.MinDeviceID,
		"Input device ID. Use 'list' command to see available devices")
	pf.IntVar(&f.outputDevice, "output-device", config.MinDeviceID,
		"Output device ID. Use 'list' command to see available devices")
	pf.IntSliceVarP(&f.channels, "channels", "c", nil,
		"Input device channels to analyse, e.g. 0,1")
	pf.Float64VarP(&f.sampleRate, "sample-rate", "s", 0,
		"Preferred sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&f.framesPerBuffer, "frames-per-buffer", "b", 0,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&f.lowLatency, "low-latency", "l", false,
		"Use low latency mode for real-time processing")
	pf.BoolVar(&f.pick, "pick", false,
		"Choose input, output and sample rate interactively")

	// Recording Configuration
	pf.BoolVarP(&f.record, "record", "r", false,
		"Record the resynthesised output")
	pf.StringVarP(&f.outputFile, "output", "o", "",
		"Output file name. Default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Monitor and Debug Configuration
	pf.BoolVarP(&f.monitor, "monitor", "m", false,
		"Show the terminal monitor")
	pf.StringVar(&f.logLevel, "log-level", "",
		"Logging level (debug, info, warn, error)")
	pf.BoolVarP(&f.debug, "debug", "v", false,
		"Show debug output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	// nil after --help and --version, which skip the pre-run hook.
	return options, nil
}

func (f *flags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("input-device") {
		cfg.Audio.InputDevice = f.inputDevice
	}
	if changed("output-device") {
		cfg.Audio.OutputDevice = f.outputDevice
	}
	if changed("channels") {
		cfg.Audio.InputChannels = f.channels
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if changed("record") {
		cfg.Recording.Enabled = f.record
	}
	if changed("output") {
		cfg.Recording.OutputFile = f.outputFile
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("debug") {
		cfg.Debug = f.debug
	}
	cfg.Monitor = f.monitor
	cfg.Pick = f.pick
}
