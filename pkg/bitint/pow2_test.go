// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{-10, 1},
		{0, 1},
		{1, 1},
		{3, 4},
		{8, 8},
		{2047, 2048},
		{2049, 4096},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.want), func(t *testing.T) {
			if got := NextPowerOfTwo(tt.n); got != tt.want {
				t.Errorf("NextPowerOfTwo(%d) = %d, want %d", tt.n, got, tt.want)
			}
		})
	}
}

func TestIsPowerOfTwoAndMask(t *testing.T) {
	tests := []struct {
		n    int
		pow  bool
		mask int
	}{
		{-2, false, -1},
		{0, false, -1},
		{1, true, 0},
		{2048, true, 2047},
		{3000, false, -1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			if got := IsPowerOfTwo(tt.n); got != tt.pow {
				t.Errorf("IsPowerOfTwo(%d) = %v, want %v", tt.n, got, tt.pow)
			}
			if got := Mask(tt.n); got != tt.mask {
				t.Errorf("Mask(%d) = %d, want %d", tt.n, got, tt.mask)
			}
		})
	}
}

// Ring capacities derived from common sample rates.
func TestClampPowerOfTwo(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{100, 512},
		{1201, 2048},
		{4096, 4096},
		{100000, 65536},
	}

	for _, tt := range tests {
		if got := ClampPowerOfTwo(tt.n, 512, 65536); got != tt.want {
			t.Errorf("ClampPowerOfTwo(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		NextPowerOfTwo(i % 10000)
		i++
	}
}
