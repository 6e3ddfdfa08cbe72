package math

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Pad rounds value up to the next multiple of align. align must be a power
// of two; zero means no alignment is requested.
func Pad[T constraints.Unsigned](value, align T) T {
	if align > 0 {
		return (value + align - 1) &^ (align - 1)
	}
	return value
}

// MipLevels is the length of the full mip chain of a width x height image,
// floor(log2(max(width, height))) + 1.
func MipLevels(width, height uint32) uint32 {
	largest := max(width, height)
	if largest == 0 {
		return 1
	}
	return uint32(bits.Len32(largest))
}

// HalveExtent returns the next mip level size, never smaller than 1.
func HalveExtent(v uint32) uint32 {
	return max(v/2, 1)
}
