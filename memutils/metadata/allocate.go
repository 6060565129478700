package metadata

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memmap/memutils"
	"golang.org/x/exp/slog"
)

// Build materializes level as a single free region spanning its whole extent. Levels are also
// materialized on first use, so calling Build is only needed to make the initial free region
// visible to queries and dumps.
func (t *Tree) Build(level BufferHandle) error {
	index, err := t.resolveLevel(level)
	if err != nil {
		return t.warn(err)
	}

	if t.nodes[index].hasChildren() {
		return t.warn(memutils.ErrAlreadyBuilt, addrAttrs(t.nodes[index])...)
	}

	t.ensureLevel(index)
	return nil
}

// CreateAllocationRequest searches level for a place to put a buffer of the provided size and
// constraints. If no region can hold it, false is returned along with a nil error. The request
// can be committed with Alloc as long as the level has not been mutated in the meantime.
func (t *Tree) CreateAllocationRequest(
	level BufferHandle,
	size int,
	alignment, granularity uint,
	mode AllocationMode,
) (bool, AllocationRequest, error) {
	var req AllocationRequest

	levelIndex, err := t.resolveLevel(level)
	if err != nil {
		return false, req, err
	}

	if size < 1 {
		return false, req, cerrors.Wrapf(memutils.ErrInvalidSize, "requested size %d", size)
	}

	if alignment == 0 {
		return false, req, t.fatal(memutils.ErrZeroAlignment, slog.Int("size", size))
	}
	if granularity == 0 {
		return false, req, t.fatal(memutils.ErrZeroGranularity, slog.Int("size", size))
	}

	if !mode.IsValid() {
		return false, req, cerrors.Wrapf(memutils.ErrInvalidMode, "mode %d", uint32(mode))
	}

	size = roundToGranularity(size, granularity)

	region := t.findSuitableRegion(levelIndex, size, alignment, mode)
	if region == noNode {
		return false, req, nil
	}

	startAddr, ok := t.computeStartAddr(region, size, alignment, mode)
	if !ok {
		return false, req, nil
	}

	req.Region = t.handle(region)
	req.StartAddr = startAddr
	req.Size = size
	req.Mode = mode

	return true, req, nil
}

// Alloc commits a request produced by CreateAllocationRequest, placing the unlinked buffer
// buf at the requested address in level
func (t *Tree) Alloc(level, buf BufferHandle, req AllocationRequest) error {
	levelIndex, err := t.resolveLevel(level)
	if err != nil {
		return err
	}

	bufIndex, err := t.resolve(buf)
	if err != nil {
		return err
	}

	n := t.nodes[bufIndex]
	if n.linked() {
		return memutils.ErrAlreadyLinked
	}
	if t.isAncestor(bufIndex, levelIndex) {
		return memutils.ErrSelfAllocation
	}

	region, err := t.resolve(req.Region)
	if err != nil {
		return cerrors.Wrap(err, "allocation request refers to a region that no longer exists")
	}

	r := t.nodes[region]
	if !r.free || r.parent != levelIndex {
		return cerrors.Newf("allocation request refers to a region that is not free in this level")
	}
	if req.Size < 1 || req.StartAddr < r.startAddr || req.EndAddr() > r.endAddr {
		return cerrors.Newf("allocation request [%d, %d] does not fit in region [%d, %d]",
			req.StartAddr, req.EndAddr(), r.startAddr, r.endAddr)
	}

	n.startAddr = req.StartAddr
	n.setSize(req.Size)
	t.add(levelIndex, region, bufIndex)

	return nil
}

// Allocate places the unlinked buffer buf in level, choosing the region and the address within
// it according to mode. The buffer's size is rounded up to its granularity. On failure the buffer
// is left unlinked and unchanged.
func (t *Tree) Allocate(level, buf BufferHandle, mode AllocationMode) error {
	levelIndex, err := t.resolveLevel(level)
	if err != nil {
		return t.warn(err)
	}

	bufIndex, err := t.resolve(buf)
	if err != nil {
		return t.warn(err)
	}

	n := t.nodes[bufIndex]
	if t.isAncestor(bufIndex, levelIndex) {
		return t.warn(memutils.ErrSelfAllocation, addrAttrs(n)...)
	}
	if n.linked() {
		return t.warn(memutils.ErrAlreadyLinked, addrAttrs(n)...)
	}
	if n.size < 1 {
		return t.warn(cerrors.Wrapf(memutils.ErrInvalidSize, "buffer %q has size %d", n.name, n.size))
	}
	if n.hasChildren() {
		return t.warn(cerrors.Wrapf(memutils.ErrHasChildren, "buffer %q", n.name), addrAttrs(n)...)
	}
	err = t.checkConstraints(n)
	if err != nil {
		return err
	}
	if !mode.IsValid() {
		return t.warn(cerrors.Wrapf(memutils.ErrInvalidMode, "mode %d", uint32(mode)))
	}

	success, req, err := t.CreateAllocationRequest(level, n.size, n.alignment, n.granularity, mode)
	if err != nil {
		return t.warn(err)
	}
	if !success {
		return t.warn(cerrors.Wrapf(memutils.ErrNoSpace, "%s could not place %d bytes", mode, roundToGranularity(n.size, n.granularity)),
			slog.String("name", n.name),
			slog.Int("size", n.size),
			slog.Uint64("alignment", uint64(n.alignment)))
	}

	return t.Alloc(level, buf, req)
}

// AllocateBySize creates a buffer of the provided size with default constraints and allocates
// it in level. On failure the temporary buffer is destroyed and NoBuffer is returned.
func (t *Tree) AllocateBySize(level BufferHandle, size int, mode AllocationMode) (BufferHandle, error) {
	buf := t.NewBuffer(size)

	err := t.Allocate(level, buf, mode)
	if err != nil {
		t.releaseSubtree(buf.index())
		return NoBuffer, err
	}

	return buf, nil
}
