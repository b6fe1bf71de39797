// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"partialsynth/internal/config"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the taper applied before the transform.
type WindowFunc int

// Available window functions. The zero value is Blackman-Harris.
const (
	BlackmanHarris WindowFunc = iota
	BartlettHann
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
	Rectangular
)

var windowNames = [...]string{
	BlackmanHarris:  "BlackmanHarris",
	BartlettHann:    "BartlettHann",
	Blackman:        "Blackman",
	BlackmanNuttall: "BlackmanNuttall",
	Hann:            "Hann",
	Hamming:         "Hamming",
	Lanczos:         "Lanczos",
	Nuttall:         "Nuttall",
	Rectangular:     "Rectangular",
}

func (w WindowFunc) String() string {
	if w < 0 || int(w) >= len(windowNames) {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// ParseWindowFunc converts a configured name (case, '-', '_' and spaces are
// ignored) to a WindowFunc. An empty name selects Blackman-Harris. Unknown
// names return Blackman-Harris and an error.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch config.WindowName(name) {
	case "blackmanharris":
		return BlackmanHarris, nil
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	case "rectangular":
		return Rectangular, nil
	default:
		return BlackmanHarris, fmt.Errorf("unknown window function name: '%s'", name)
	}
}

// applyWindow fills coeffs with the selected symmetric window.
func applyWindow(coeffs []float64, windowType WindowFunc) {
	// The gonum window functions scale in place, so start from ones.
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hann:
		window.Hann(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	case Rectangular:
		window.Rectangular(coeffs)
	default:
		window.BlackmanHarris(coeffs)
	}
}
