package metadata

import "github.com/vkngwrapper/memmap/memutils"

// ensureLevel materializes a level that has never been split as one free region spanning it
func (t *Tree) ensureLevel(level int32) {
	lvl := t.nodes[level]
	if lvl.first != noNode {
		return
	}

	region := t.allocateNode()
	r := t.nodes[region]
	r.free = true
	r.parent = level
	r.setExtent(lvl.startAddr, lvl.endAddr)

	lvl.first = region
	lvl.firstFree = region
	lvl.freeCount = 1
}

func (t *Tree) fits(region int32, size int, alignment uint) bool {
	r := t.nodes[region]
	return usableSize(r.startAddr, r.endAddr, alignment) >= size
}

// findSuitableRegion walks the free list of level for a region that can hold size bytes at
// the provided alignment. It returns noNode when no region qualifies.
func (t *Tree) findSuitableRegion(level int32, size int, alignment uint, mode AllocationMode) int32 {
	t.ensureLevel(level)
	lvl := t.nodes[level]

	switch mode.searchMode() {
	case AllocationModeFirstFit:
		for region := lvl.firstFree; region != noNode; region = t.nodes[region].nextFree {
			if t.fits(region, size, alignment) {
				return region
			}
		}
	case AllocationModeBestFit:
		best := noNode
		for region := lvl.firstFree; region != noNode; region = t.nodes[region].nextFree {
			if t.fits(region, size, alignment) && (best == noNode || t.nodes[region].size < t.nodes[best].size) {
				best = region
			}
		}
		return best
	case AllocationModeUniformFit:
		largest := noNode
		for region := lvl.firstFree; region != noNode; region = t.nodes[region].nextFree {
			if t.fits(region, size, alignment) && (largest == noNode || t.nodes[region].size > t.nodes[largest].size) {
				largest = region
			}
		}
		return largest
	case AllocationModeRandomFit:
		return t.findRandomRegion(lvl, size, alignment)
	}

	return noNode
}

// findRandomRegion starts at a uniformly chosen free region and widens the search one free
// neighbor at a time, alternating right and left
func (t *Tree) findRandomRegion(lvl *node, size int, alignment uint) int32 {
	if lvl.freeCount < 1 {
		return noNode
	}

	start := lvl.firstFree
	for steps := t.random.Uint64n(uint64(lvl.freeCount)); steps > 0 && start != noNode; steps-- {
		start = t.nodes[start].nextFree
	}
	if start == noNode {
		panic("free region count is larger than the free list")
	}

	if t.fits(start, size, alignment) {
		return start
	}

	left := t.nodes[start].prevFree
	right := t.nodes[start].nextFree
	for left != noNode || right != noNode {
		if right != noNode {
			if t.fits(right, size, alignment) {
				return right
			}
			right = t.nodes[right].nextFree
		}
		if left != noNode {
			if t.fits(left, size, alignment) {
				return left
			}
			left = t.nodes[left].prevFree
		}
	}

	return noNode
}

// computeStartAddr applies the placement rule of mode to the chosen region. It returns false
// if no aligned start address keeps the buffer inside the region.
func (t *Tree) computeStartAddr(region int32, size int, alignment uint, mode AllocationMode) (int, bool) {
	r := t.nodes[region]

	lo := alignedStart(r.startAddr, r.endAddr, alignment)
	hi := memutils.AlignDown(r.endAddr-size+1, alignment)
	if size < 1 || size > r.size || lo > hi {
		return 0, false
	}

	var startAddr int
	switch {
	case mode.randomPlacement():
		candidate := r.startAddr + int(t.random.Uint64n(uint64(r.size-size+1)))
		startAddr = snapToAligned(candidate, lo, hi, alignment)
	case mode == AllocationModeUniformFit:
		candidate := r.startAddr + (r.size-size)/2
		startAddr = snapToAligned(candidate, lo, hi, alignment)
	default:
		startAddr = lo
	}

	if startAddr < r.startAddr || startAddr+size-1 > r.endAddr {
		return 0, false
	}

	return startAddr, true
}
