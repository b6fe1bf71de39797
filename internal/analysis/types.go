// SPDX-License-Identifier: MIT
package analysis

import "math"

// Partial is a single spectral component. Amplitude is the level of the
// unscaled transform bin in dB, 20*log10(|X|), never negative and larger for
// louder components. A zero Partial marks an empty slot.
type Partial struct {
	Frequency float64 `json:"frequency"`
	Amplitude float64 `json:"amplitude"`
}

// IsZero reports whether p is padding.
func (p Partial) IsZero() bool {
	return p.Frequency == 0 && p.Amplitude == 0
}

// Magnitude converts the stored amplitude back to the linear bin magnitude.
func (p Partial) Magnitude() float64 {
	if p.IsZero() {
		return 0
	}
	return math.Sqrt(math.Pow(10, p.Amplitude/10))
}

// Snapshot holds exactly NumPartials partials per analysed channel. Non-zero
// entries are in ascending frequency order and padding follows them.
// Snapshots are treated as immutable once published.
type Snapshot [][]Partial

// NewSnapshot returns an all-zero snapshot.
func NewSnapshot(channels, numPartials int) Snapshot {
	s := make(Snapshot, channels)
	for ch := range s {
		s[ch] = make([]Partial, numPartials)
	}
	return s
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for ch, partials := range s {
		out[ch] = append([]Partial(nil), partials...)
	}
	return out
}

// Channel returns the partials of channel ch, or nil when out of range.
func (s Snapshot) Channel(ch int) []Partial {
	if ch < 0 || ch >= len(s) {
		return nil
	}
	return s[ch]
}

// Active returns the non-zero partials of channel ch.
func (s Snapshot) Active(ch int) []Partial {
	var out []Partial
	for _, p := range s.Channel(ch) {
		if !p.IsZero() {
			out = append(out, p)
		}
	}
	return out
}

// Empty reports whether every slot of every channel is padding.
func (s Snapshot) Empty() bool {
	for _, partials := range s {
		for _, p := range partials {
			if !p.IsZero() {
				return false
			}
		}
	}
	return true
}

// Equal reports whether two snapshots hold identical values.
func (s Snapshot) Equal(o Snapshot) bool {
	if len(s) != len(o) {
		return false
	}
	for ch := range s {
		if len(s[ch]) != len(o[ch]) {
			return false
		}
		for i := range s[ch] {
			if s[ch][i] != o[ch][i] {
				return false
			}
		}
	}
	return true
}
