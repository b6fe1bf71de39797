// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"partialsynth/cmd"
	"partialsynth/internal/audio"
	"partialsynth/internal/config"
	applog "partialsynth/internal/log"
	"partialsynth/internal/pipeline"
	"partialsynth/internal/tui"
	"partialsynth/pkg/build"
)

// main is the entry point for the resynthesis application.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//   - Resolve the platform buffer policy and build the pipeline
//
// 2. Concurrent Phase (Hot Path):
//   - Open the input and output streams under supervision
//   - Run analysis, pitch tracking and the update producer
//   - Show the monitor if requested
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or monitor exit
//   - Stop streams, then the producer, then close sinks
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v", err)
	}

	cfg, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if cfg == nil {
		return
	}
	applog.Configure(cfg.LogLevel, cfg.Debug)

	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer audio.Terminate()

	if err := run(cfg); err != nil {
		applog.Errorf("%v", err)
		audio.Terminate()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	// One-off commands don't need the pipeline.
	if cfg.Command == "list" {
		return audio.ListDevices(os.Stdout)
	}

	if cfg.Pick {
		sel, ok, err := tui.PickDevices(cfg.Audio.CandidateRates)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cfg.Audio.InputDevice = sel.InputDevice
		cfg.Audio.OutputDevice = sel.OutputDevice
		cfg.Audio.SampleRate = sel.SampleRate
	}

	policy := cfg.Resolve(runtime.GOOS)
	p, err := pipeline.New(cfg, policy)
	if err != nil {
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	if cfg.Monitor {
		if err := tui.RunMonitor(p, p, cfg.TUI.RefreshInterval); err != nil {
			applog.Errorf("Monitor: %v", err)
		}
		stop()
	} else {
		fmt.Printf("Resynthesising at %.0f Hz. '%s --help' for usage information.\n",
			p.SampleRate(), build.GetBuildFlags().Name)
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	err = <-done
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil && cfg.Recording.Enabled {
		fmt.Printf("\nRecording saved to: %s\n", p.RecordingFile())
	}
	return err
}
