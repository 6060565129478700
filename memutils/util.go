package memutils

import (
	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer
}

// AlignUp returns the smallest multiple of alignment that is >= value. Unlike a mask-based
// alignment, any non-zero alignment is accepted.
func AlignUp(value int, alignment uint) int {
	if alignment <= 1 {
		return value
	}

	rem := value % int(alignment)
	if rem == 0 {
		return value
	}

	return value + int(alignment) - rem
}

// AlignDown returns the largest multiple of alignment that is <= value.
func AlignDown(value int, alignment uint) int {
	if alignment <= 1 {
		return value
	}

	return value - value%int(alignment)
}

// IsAligned reports whether value is a multiple of alignment
func IsAligned(value int, alignment uint) bool {
	return alignment <= 1 || value%int(alignment) == 0
}

// RoundUp rounds size up to the next multiple of granularity
func RoundUp[T Number](size T, granularity T) T {
	if granularity <= 1 {
		return size
	}

	return size + (granularity-size%granularity)%granularity
}
