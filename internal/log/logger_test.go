package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	prev := GetLevel()
	t.Cleanup(func() {
		SetLevel(prev)
		SetOutput(nopWriter{})
	})
	return &buf
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  LogLevel
		valid bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"Warning", LevelWarn, true},
		{"error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
		{"", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.valid, ok)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(LevelWarn)

	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("visible %d", 3)
	Errorf("visible %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible 3")
	assert.Contains(t, out, "visible 4")
	assert.Contains(t, out, "level=WARN")
}

func TestConfigure(t *testing.T) {
	buf := captureOutput(t)

	Configure("error", true)
	assert.Equal(t, LevelDebug, GetLevel(), "debug flag forces DEBUG")

	Configure("error", false)
	assert.Equal(t, LevelError, GetLevel())

	Configure("loud", false)
	assert.Equal(t, LevelInfo, GetLevel())
	assert.True(t, strings.Contains(buf.String(), "unknown level"))
}

func TestFatalfExits(t *testing.T) {
	buf := captureOutput(t)
	code := -1
	prevExit := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = prevExit })

	Fatalf("boom %s", "now")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "level=FATAL")
	assert.Contains(t, buf.String(), "boom now")
}
