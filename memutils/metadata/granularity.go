package metadata

import "github.com/vkngwrapper/memmap/memutils"

// alignedStart returns the first address in [startAddr, endAddr] that satisfies alignment, or
// endAddr+1 if there is none
func alignedStart(startAddr, endAddr int, alignment uint) int {
	aligned := memutils.AlignUp(startAddr, alignment)
	if aligned > endAddr {
		return endAddr + 1
	}

	return aligned
}

// usableSize is the number of bytes available in [startAddr, endAddr] once the start address
// has been aligned
func usableSize(startAddr, endAddr int, alignment uint) int {
	return endAddr - alignedStart(startAddr, endAddr, alignment) + 1
}

// snapToAligned returns the aligned address in [lo, hi] closest to candidate, preferring the
// lower address on ties. lo and hi must both be aligned with lo <= hi.
func snapToAligned(candidate, lo, hi int, alignment uint) int {
	if candidate <= lo {
		return lo
	}
	if candidate >= hi {
		return hi
	}

	down := memutils.AlignDown(candidate, alignment)
	if down == candidate {
		return candidate
	}

	up := memutils.AlignUp(candidate, alignment)
	if down < lo {
		return up
	}
	if up > hi || candidate-down <= up-candidate {
		return down
	}

	return up
}

// roundToGranularity rounds size up to a multiple of granularity
func roundToGranularity(size int, granularity uint) int {
	return memutils.RoundUp(size, int(granularity))
}
