package metadata

// linkBefore inserts idx into the full list of level immediately before at
func (t *Tree) linkBefore(level, at, idx int32) {
	n := t.nodes[idx]
	atNode := t.nodes[at]

	n.parent = level
	n.next = at
	n.prev = atNode.prev
	if atNode.prev != noNode {
		t.nodes[atNode.prev].next = idx
	} else {
		t.nodes[level].first = idx
	}
	atNode.prev = idx
}

// linkAfter inserts idx into the full list of level immediately after at
func (t *Tree) linkAfter(level, at, idx int32) {
	n := t.nodes[idx]
	atNode := t.nodes[at]

	n.parent = level
	n.prev = at
	n.next = atNode.next
	if atNode.next != noNode {
		t.nodes[atNode.next].prev = idx
	}
	atNode.next = idx
}

// unlinkFull removes idx from the full list of its level
func (t *Tree) unlinkFull(idx int32) {
	n := t.nodes[idx]
	if n.parent == noNode {
		panic("attempted to unlink a buffer that is not part of a level")
	}

	if n.prev != noNode {
		t.nodes[n.prev].next = n.next
	} else {
		t.nodes[n.parent].first = n.next
	}
	if n.next != noNode {
		t.nodes[n.next].prev = n.prev
	}

	n.parent = noNode
	n.prev = noNode
	n.next = noNode
}

// replaceInList puts idx into the full list slot held by old. The free list is not touched.
func (t *Tree) replaceInList(old, idx int32) {
	oldNode := t.nodes[old]
	n := t.nodes[idx]

	n.parent = oldNode.parent
	n.prev = oldNode.prev
	n.next = oldNode.next
	if n.prev != noNode {
		t.nodes[n.prev].next = idx
	} else {
		t.nodes[n.parent].first = idx
	}
	if n.next != noNode {
		t.nodes[n.next].prev = idx
	}

	oldNode.parent = noNode
	oldNode.prev = noNode
	oldNode.next = noNode
}

// linkFreeBefore inserts the free node idx into the free list immediately before at
func (t *Tree) linkFreeBefore(level, at, idx int32) {
	n := t.nodes[idx]
	atNode := t.nodes[at]
	if !n.free || !atNode.free {
		panic("attempted to link an occupied buffer into the free list")
	}

	n.nextFree = at
	n.prevFree = atNode.prevFree
	if atNode.prevFree != noNode {
		t.nodes[atNode.prevFree].nextFree = idx
	} else {
		t.nodes[level].firstFree = idx
	}
	atNode.prevFree = idx
}

// unlinkFree removes idx from the free list of its level
func (t *Tree) unlinkFree(idx int32) {
	n := t.nodes[idx]
	if !n.free {
		panic("attempted to remove an occupied buffer from the free list")
	}

	if n.prevFree != noNode {
		t.nodes[n.prevFree].nextFree = n.nextFree
	} else {
		t.nodes[n.parent].firstFree = n.nextFree
	}
	if n.nextFree != noNode {
		t.nodes[n.nextFree].prevFree = n.prevFree
	}

	n.prevFree = noNode
	n.nextFree = noNode
}

// add carves the free region so that the positioned buffer idx occupies its part of it. The
// parts of region left of and right of idx stay behind as free remainders.
func (t *Tree) add(level, region, idx int32) {
	r := t.nodes[region]
	n := t.nodes[idx]
	if !r.free || r.parent != level {
		panic("attempted to split a region that is not a free region of the level")
	}
	if n.startAddr < r.startAddr || n.endAddr > r.endAddr {
		panic("attempted to place a buffer outside of the region that holds it")
	}

	lvl := t.nodes[level]
	n.free = false
	hasLeft := n.startAddr > r.startAddr
	hasRight := n.endAddr < r.endAddr

	switch {
	case !hasLeft && !hasRight:
		// The buffer takes the whole region
		t.unlinkFree(region)
		t.replaceInList(region, idx)
		t.releaseNode(region)
		lvl.freeCount--
	case !hasLeft:
		r.setExtent(n.endAddr+1, r.endAddr)
		t.linkBefore(level, region, idx)
	case !hasRight:
		r.setExtent(r.startAddr, n.startAddr-1)
		t.linkAfter(level, region, idx)
	default:
		left := t.allocateNode()
		leftNode := t.nodes[left]
		leftNode.free = true
		leftNode.setExtent(r.startAddr, n.startAddr-1)
		r.setExtent(n.endAddr+1, r.endAddr)

		t.linkBefore(level, region, left)
		t.linkBefore(level, region, idx)
		t.linkFreeBefore(level, region, left)
		lvl.freeCount++
	}

	lvl.usedCount++
}

// merge absorbs the free neighbors of the free node idx into it and rebuilds its free list
// links. It returns idx.
func (t *Tree) merge(idx int32) int32 {
	n := t.nodes[idx]
	lvl := t.nodes[n.parent]

	if prev := n.prev; prev != noNode && t.nodes[prev].free {
		n.setExtent(t.nodes[prev].startAddr, n.endAddr)
		t.unlinkFree(prev)
		t.unlinkFull(prev)
		t.releaseNode(prev)
		lvl.freeCount--
	}

	if next := n.next; next != noNode && t.nodes[next].free {
		n.setExtent(n.startAddr, t.nodes[next].endAddr)
		t.unlinkFree(next)
		t.unlinkFull(next)
		t.releaseNode(next)
		lvl.freeCount--
	}

	t.rethreadFree(idx)
	return idx
}

// rethreadFree links the free node idx between the nearest free siblings on either side
func (t *Tree) rethreadFree(idx int32) {
	n := t.nodes[idx]

	prevFree := n.prev
	for prevFree != noNode && !t.nodes[prevFree].free {
		prevFree = t.nodes[prevFree].prev
	}

	nextFree := n.next
	for nextFree != noNode && !t.nodes[nextFree].free {
		nextFree = t.nodes[nextFree].next
	}

	n.prevFree = prevFree
	n.nextFree = nextFree
	if prevFree != noNode {
		t.nodes[prevFree].nextFree = idx
	} else {
		t.nodes[n.parent].firstFree = idx
	}
	if nextFree != noNode {
		t.nodes[nextFree].prevFree = idx
	}
}
