// SPDX-License-Identifier: MIT
/*
Package bitint provides the power-of-two helpers used to size ring buffers
and wavetables. Everything here is allocation free and safe to call from
an audio callback.

	frames := bitint.ClampPowerOfTwo(1201, 512, 65536) // 2048
	mask := bitint.Mask(2048)                          // 2047, index & mask wraps

NextPowerOfTwo takes the bit length of size-1 so exact powers are kept:

	size = 8, size-1 = 7 (0111), bits.Len(7) = 3, 1<<3 = 8
	size = 9, size-1 = 8 (1000), bits.Len(8) = 4, 1<<4 = 16
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size. Sizes below 2
// return 1.
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n has exactly one bit set.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// ClampPowerOfTwo rounds size up to a power of two and clamps the result to
// [lo, hi]. Both bounds must be powers of two.
func ClampPowerOfTwo(size, lo, hi int) int {
	return min(max(NextPowerOfTwo(size), lo), hi)
}

// Mask returns the index mask for a power-of-two length n, or -1 when n is
// not one.
func Mask(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return n - 1
}
