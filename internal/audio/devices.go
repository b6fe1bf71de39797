// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gordonklaus/portaudio"

	"partialsynth/internal/config"
)

// ErrNoDevice is returned when a requested device does not exist.
var ErrNoDevice = errors.New("no such audio device")

// paDevicesFunc is replaced in tests.
var paDevicesFunc = portaudio.Devices

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// Device is the host-independent view of an audio device.
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowInputLatency   time.Duration
	HighInputLatency  time.Duration
	LowOutputLatency  time.Duration
	HighOutputLatency time.Duration
}

// Kind describes which directions the device supports.
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	}
	return "Unknown"
}

func fromInfo(id int, info *portaudio.DeviceInfo) Device {
	d := Device{
		ID:                id,
		Name:              info.Name,
		MaxInputChannels:  info.MaxInputChannels,
		MaxOutputChannels: info.MaxOutputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
		LowInputLatency:   info.DefaultLowInputLatency,
		HighInputLatency:  info.DefaultHighInputLatency,
		LowOutputLatency:  info.DefaultLowOutputLatency,
		HighOutputLatency: info.DefaultHighOutputLatency,
	}
	if info.HostApi != nil {
		d.HostAPI = info.HostApi.Name
	}
	return d
}

// HostDevices returns every device PortAudio reports, indexed by ID.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = fromInfo(i, info)
	}
	return devices, nil
}

// InputDevice retrieves the input device for deviceID. MinDeviceID (-1)
// selects the system default.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	return lookup(deviceID, true, portaudio.DefaultInputDevice)
}

// OutputDevice retrieves the output device for deviceID. MinDeviceID (-1)
// selects the system default.
func OutputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	return lookup(deviceID, false, portaudio.DefaultOutputDevice)
}

func lookup(deviceID int, input bool, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if deviceID == config.MinDeviceID {
		device, err := fallback()
		if err != nil {
			return nil, fmt.Errorf("%w: default device: %v", ErrNoDevice, err)
		}
		return device, nil
	}

	devices, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("%w: invalid device ID %d", ErrNoDevice, deviceID)
	}
	device := devices[deviceID]
	if input && device.MaxInputChannels == 0 {
		return nil, fmt.Errorf("%w: device %d (%s) has no inputs", ErrNoDevice, deviceID, device.Name)
	}
	if !input && device.MaxOutputChannels == 0 {
		return nil, fmt.Errorf("%w: device %d (%s) has no outputs", ErrNoDevice, deviceID, device.Name)
	}
	return device, nil
}

// ListDevices writes the device table of the host to w.
func ListDevices(w io.Writer) error {
	devices, err := HostDevices()
	if err != nil {
		return err
	}
	WriteDeviceList(w, devices)
	return nil
}

// WriteDeviceList formats devices the way the list command prints them.
func WriteDeviceList(w io.Writer, devices []Device) {
	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")
	if len(devices) == 0 {
		fmt.Fprintln(w, "No audio devices found")
		return
	}

	for _, d := range devices {
		fmt.Fprintf(w, "[%d] %s (%s)\n", d.ID, d.Name, d.Kind())
		if d.HostAPI != "" {
			fmt.Fprintf(w, "    Host API: %s\n", d.HostAPI)
		}
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		if d.MaxInputChannels > 0 {
			fmt.Fprintf(w, "    Input latency: Low=%.2fms, High=%.2fms\n",
				d.LowInputLatency.Seconds()*1000, d.HighInputLatency.Seconds()*1000)
		}
		if d.MaxOutputChannels > 0 {
			fmt.Fprintf(w, "    Output latency: Low=%.2fms, High=%.2fms\n",
				d.LowOutputLatency.Seconds()*1000, d.HighOutputLatency.Seconds()*1000)
		}
		fmt.Fprintln(w)
	}
}
