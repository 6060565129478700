package metadata

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memmap/memutils"
	"golang.org/x/exp/slog"
)

func (t *Tree) hasStaticDescendant(index int32) bool {
	for child := t.nodes[index].first; child != noNode; child = t.nodes[child].next {
		c := t.nodes[child]
		if c.static || t.hasStaticDescendant(child) {
			return true
		}
	}

	return false
}

// occupiedChildren snapshots the occupied regions of level in address order
func (t *Tree) occupiedChildren(level int32) []int32 {
	var children []int32
	for child := t.nodes[level].first; child != noNode; child = t.nodes[child].next {
		if !t.nodes[child].free {
			children = append(children, child)
		}
	}

	return children
}

// free swaps the occupied node idx for a free region of the same extent, releases idx along
// with its subtree, and coalesces the new region with its free neighbors
func (t *Tree) free(idx int32) int32 {
	n := t.nodes[idx]
	lvl := t.nodes[n.parent]

	region := t.allocateNode()
	r := t.nodes[region]
	r.free = true
	r.setExtent(n.startAddr, n.endAddr)

	t.replaceInList(idx, region)
	lvl.usedCount--
	lvl.freeCount++

	t.releaseSubtree(idx)
	return t.merge(region)
}

// Deallocate returns buf's region in level to the free list. Any buffers allocated inside buf are
// destroyed with it. buf's handle, and the handles of its descendants, are stale afterward.
func (t *Tree) Deallocate(level, buf BufferHandle) error {
	levelIndex, err := t.resolve(level)
	if err != nil {
		return t.warn(err)
	}

	index, err := t.resolve(buf)
	if err != nil {
		return t.warn(err)
	}

	n := t.nodes[index]
	switch {
	case n.static:
		return t.warn(cerrors.Wrapf(memutils.ErrStatic, "buffer %q", n.name), addrAttrs(n)...)
	case n.size < 1:
		return t.warn(cerrors.Wrapf(memutils.ErrInvalidSize, "buffer %q has size %d", n.name, n.size))
	case n.free:
		return t.warn(memutils.ErrAlreadyFree, addrAttrs(n)...)
	case !n.linked():
		return t.warn(memutils.ErrNotLinked, addrAttrs(n)...)
	case n.parent != levelIndex:
		return t.warn(memutils.ErrNotInLevel, addrAttrs(n)...)
	}

	if t.hasStaticDescendant(index) {
		return t.warn(cerrors.Wrapf(memutils.ErrStaticDescendant, "buffer %q", n.name), addrAttrs(n)...)
	}

	if n.usedCount > 0 {
		t.info("deallocating buffer along with its children",
			slog.String("name", n.name),
			slog.Int("children", n.usedCount),
			slog.Int("startAddr", n.startAddr))
	}

	t.free(index)
	return nil
}

// DeallocateByAddr deallocates the occupied buffer of level that covers addr. An address outside
// of the level is a fatal error.
func (t *Tree) DeallocateByAddr(level BufferHandle, addr int) error {
	levelIndex, err := t.resolveLevel(level)
	if err != nil {
		return t.warn(err)
	}

	lvl := t.nodes[levelIndex]
	if !lvl.contains(addr) {
		return t.fatal(cerrors.Wrapf(memutils.ErrAddressOutOfRange, "address %#x is outside [%#x, %#x]",
			addr, lvl.startAddr, lvl.endAddr))
	}

	region := t.findRegion(levelIndex, addr)
	if region == noNode {
		return t.warn(cerrors.Wrapf(memutils.ErrNotFound, "address %#x", addr))
	}
	if t.nodes[region].free {
		return t.warn(cerrors.Wrapf(memutils.ErrAlreadyFree, "address %#x", addr))
	}

	return t.Deallocate(level, t.handle(region))
}

// SoftReset deallocates every buffer in level and its nested levels, except for static buffers.
// Static buffers keep their subtrees, and a buffer that holds a static buffer somewhere below it
// is kept too.
func (t *Tree) SoftReset(level BufferHandle) error {
	levelIndex, err := t.resolve(level)
	if err != nil {
		return t.warn(err)
	}

	t.softReset(levelIndex)
	return nil
}

func (t *Tree) softReset(level int32) {
	for _, child := range t.occupiedChildren(level) {
		if t.nodes[child].static {
			continue
		}

		t.softReset(child)
		if !t.hasStaticDescendant(child) {
			t.free(child)
		}
	}
}

// HardReset deallocates every buffer in level, static buffers included
func (t *Tree) HardReset(level BufferHandle) error {
	levelIndex, err := t.resolve(level)
	if err != nil {
		return t.warn(err)
	}

	for _, child := range t.occupiedChildren(levelIndex) {
		t.clearStatic(child)
		t.free(child)
	}

	return nil
}

func (t *Tree) clearStatic(index int32) {
	t.nodes[index].static = false
	for child := t.nodes[index].first; child != noNode; child = t.nodes[child].next {
		t.clearStatic(child)
	}
}
