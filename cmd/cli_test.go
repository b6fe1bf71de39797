// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestParseArgsDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := ParseArgs(nil)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.Command)
	assert.Equal(t, 48000.0, cfg.Audio.SampleRate)
	assert.Equal(t, []int{0}, cfg.Audio.InputChannels)
	assert.False(t, cfg.Monitor)
}

func TestParseArgsFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "audio:\n  sample_rate: 44100\n  input_device: 3\nresynth:\n  gain: 0.25\n")

	cfg, err := ParseArgs([]string{"--config", path, "-s", "96000", "-c", "0,1", "--monitor", "-r", "-o", "out.wav"})
	require.NoError(t, err)
	assert.Equal(t, 96000.0, cfg.Audio.SampleRate, "flag wins")
	assert.Equal(t, 3, cfg.Audio.InputDevice, "file value kept")
	assert.Equal(t, 0.25, cfg.Resynth.Gain)
	assert.Equal(t, []int{0, 1}, cfg.Audio.InputChannels)
	assert.True(t, cfg.Monitor)
	assert.True(t, cfg.Recording.Enabled)
	assert.Equal(t, "out.wav", cfg.Recording.OutputFile)
}

func TestParseArgsListCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := ParseArgs([]string{"list"})
	require.NoError(t, err)
	assert.Equal(t, "list", cfg.Command)
}

func TestParseArgsRejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := ParseArgs([]string{"-s", "100"})
	assert.Error(t, err)

	_, err = ParseArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}
