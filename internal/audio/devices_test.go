// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

func fakeDevices(t *testing.T, infos []*portaudio.DeviceInfo, err error) {
	t.Helper()
	orig := paDevicesFunc
	t.Cleanup(func() { paDevicesFunc = orig })
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return infos, err
	}
}

func testInfos() []*portaudio.DeviceInfo {
	return []*portaudio.DeviceInfo{
		{
			Name:                   "Mic",
			MaxInputChannels:       2,
			DefaultSampleRate:      48000,
			DefaultLowInputLatency: 5 * time.Millisecond,
			HostApi:                &portaudio.HostApiInfo{Name: "ALSA"},
		},
		{
			Name:                     "Speakers",
			MaxOutputChannels:        2,
			DefaultSampleRate:        44100,
			DefaultHighOutputLatency: 40 * time.Millisecond,
		},
	}
}

func TestHostDevices(t *testing.T) {
	fakeDevices(t, testInfos(), nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
	}
	if devices[0].Kind() != "Input" || devices[1].Kind() != "Output" {
		t.Errorf("unexpected kinds %q, %q", devices[0].Kind(), devices[1].Kind())
	}
	if devices[0].HostAPI != "ALSA" {
		t.Errorf("HostAPI = %q, want ALSA", devices[0].HostAPI)
	}
}

func TestHostDevicesError(t *testing.T) {
	fakeDevices(t, nil, fmt.Errorf("mock error"))

	_, err := HostDevices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestDeviceLookup(t *testing.T) {
	fakeDevices(t, testInfos(), nil)

	tests := []struct {
		desc    string
		lookup  func(int) (*portaudio.DeviceInfo, error)
		id      int
		want    string
		wantErr bool
	}{
		{"input by id", InputDevice, 0, "Mic", false},
		{"output by id", OutputDevice, 1, "Speakers", false},
		{"input without inputs", InputDevice, 1, "", true},
		{"output without outputs", OutputDevice, 0, "", true},
		{"out of range", InputDevice, 7, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			d, err := tt.lookup(tt.id)
			if tt.wantErr {
				if !errors.Is(err, ErrNoDevice) {
					t.Errorf("expected ErrNoDevice, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Name != tt.want {
				t.Errorf("got %q, want %q", d.Name, tt.want)
			}
		})
	}
}

func TestWriteDeviceList(t *testing.T) {
	fakeDevices(t, testInfos(), nil)
	devices, err := HostDevices()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	WriteDeviceList(&buf, devices)
	out := buf.String()

	for _, want := range []string{
		"[0] Mic (Input)",
		"Host API: ALSA",
		"Input latency: Low=5.00ms",
		"[1] Speakers (Output)",
		"Default sample rate: 44100 Hz",
		"Output latency: Low=0.00ms, High=40.00ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	WriteDeviceList(&buf, nil)
	if !strings.Contains(buf.String(), "No audio devices found") {
		t.Errorf("empty list not reported: %q", buf.String())
	}
}
