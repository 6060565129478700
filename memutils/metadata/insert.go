package metadata

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memmap/memutils"
	"golang.org/x/exp/slog"
)

// findRegion returns the region of level that contains addr, or noNode
func (t *Tree) findRegion(level int32, addr int) int32 {
	for region := t.nodes[level].first; region != noNode; region = t.nodes[region].next {
		r := t.nodes[region]
		if r.contains(addr) {
			return region
		}
		if r.startAddr > addr {
			break
		}
	}

	return noNode
}

// childrenSpan reports whether the regions of index cover exactly its extent. A buffer without
// regions always does.
func (t *Tree) childrenSpan(index int32) bool {
	n := t.nodes[index]
	if !n.hasChildren() {
		return true
	}

	last := n.first
	for t.nodes[last].next != noNode {
		last = t.nodes[last].next
	}

	return t.nodes[n.first].startAddr == n.startAddr && t.nodes[last].endAddr == n.endAddr
}

// Insert places the unlinked buffer buf in level at the start address it already carries.
// A start address that violates the buffer's alignment, or a size that is not a multiple of its
// granularity, is reported but does not prevent the insertion.
func (t *Tree) Insert(level, buf BufferHandle) error {
	levelIndex, err := t.resolveLevel(level)
	if err != nil {
		return t.warn(err)
	}

	bufIndex, err := t.resolve(buf)
	if err != nil {
		return t.warn(err)
	}

	n := t.nodes[bufIndex]
	lvl := t.nodes[levelIndex]
	if t.isAncestor(bufIndex, levelIndex) {
		return t.warn(memutils.ErrSelfAllocation, addrAttrs(n)...)
	}
	if n.linked() {
		return t.warn(memutils.ErrAlreadyLinked, addrAttrs(n)...)
	}
	err = t.checkConstraints(n)
	if err != nil {
		return err
	}
	if !t.childrenSpan(bufIndex) {
		return t.warn(cerrors.Wrapf(memutils.ErrHasChildren, "buffer %q no longer spans its own regions", n.name), addrAttrs(n)...)
	}
	if n.size < 1 {
		return t.warn(cerrors.Wrapf(memutils.ErrInvalidSize, "buffer %q has size %d", n.name, n.size))
	}
	if !lvl.contains(n.startAddr) {
		return t.warn(cerrors.Wrapf(memutils.ErrAddressOutOfRange, "start address %#x is outside [%#x, %#x]",
			n.startAddr, lvl.startAddr, lvl.endAddr))
	}

	t.ensureLevel(levelIndex)
	region := t.findRegion(levelIndex, n.startAddr)
	if region == noNode {
		panic("level regions do not cover the level")
	}

	r := t.nodes[region]
	if !r.free {
		return t.warn(cerrors.Wrapf(memutils.ErrAddressInUse, "start address %#x", n.startAddr),
			slog.Int("occupiedStart", r.startAddr),
			slog.Int("occupiedEnd", r.endAddr),
			slog.String("occupiedName", r.name))
	}
	if n.endAddr > r.endAddr {
		return t.warn(cerrors.Wrapf(memutils.ErrNoSpace, "buffer [%#x, %#x] overruns free region [%#x, %#x]",
			n.startAddr, n.endAddr, r.startAddr, r.endAddr))
	}

	if !memutils.IsAligned(n.startAddr, n.alignment) {
		t.warnMsg("inserted buffer start address violates its alignment", addrAttrs(n)...)
		t.info("inserting misaligned buffer", slog.Uint64("alignment", uint64(n.alignment)), slog.String("name", n.name))
	}
	if n.size%int(n.granularity) != 0 {
		t.warnMsg("inserted buffer size is not a multiple of its granularity", addrAttrs(n)...)
		t.info("inserting buffer with partial granule", slog.Uint64("granularity", uint64(n.granularity)), slog.String("name", n.name))
	}

	t.add(levelIndex, region, bufIndex)
	return nil
}

// InsertAccess creates a buffer covering access and inserts it into level
func (t *Tree) InsertAccess(level BufferHandle, access Access) (BufferHandle, error) {
	buf := t.NewBufferAt(access.StartAddr, access.Size)

	err := t.Insert(level, buf)
	if err != nil {
		t.releaseSubtree(buf.index())
		return NoBuffer, err
	}

	return buf, nil
}

// AllocateStatic marks buf static and inserts it into level. Static buffers survive SoftReset.
// If the insertion fails, the buffer is not left marked static.
func (t *Tree) AllocateStatic(level, buf BufferHandle) error {
	bufIndex, err := t.resolve(buf)
	if err != nil {
		return t.warn(err)
	}

	n := t.nodes[bufIndex]
	wasStatic := n.static
	n.static = true

	err = t.Insert(level, buf)
	if err != nil {
		n.static = wasStatic
		return err
	}

	return nil
}
