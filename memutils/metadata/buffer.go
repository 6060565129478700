package metadata

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memmap/memutils"
	"golang.org/x/exp/slog"
)

// NewBuffer creates an unlinked buffer of the provided size at address 0, with alignment and
// granularity 1. The buffer can be placed with Allocate, or its start address set and placed
// with Insert.
func (t *Tree) NewBuffer(size int) BufferHandle {
	return t.NewBufferAt(0, size)
}

// NewBufferAt creates an unlinked buffer with the provided start address and size
func (t *Tree) NewBufferAt(startAddr, size int) BufferHandle {
	index := t.allocateNode()
	n := t.nodes[index]
	n.startAddr = startAddr
	n.setSize(size)

	return t.handle(index)
}

// Release destroys an unlinked buffer along with any buffers allocated inside it
func (t *Tree) Release(handle BufferHandle) error {
	index, err := t.resolve(handle)
	if err != nil {
		return t.warn(err)
	}

	if t.nodes[index].linked() {
		return t.warn(cerrors.Wrap(memutils.ErrAlreadyLinked, "release it with Deallocate"), addrAttrs(t.nodes[index])...)
	}

	t.releaseSubtree(index)
	return nil
}

// IsValid reports whether handle refers to a live buffer of this tree
func (t *Tree) IsValid(handle BufferHandle) bool {
	_, err := t.resolve(handle)
	return err == nil
}

// Info retrieves a snapshot of the buffer's properties
func (t *Tree) Info(handle BufferHandle) (BufferInfo, error) {
	index, err := t.resolve(handle)
	if err != nil {
		return BufferInfo{}, err
	}

	return t.bufferInfo(index), nil
}

func (t *Tree) bufferInfo(index int32) BufferInfo {
	n := t.nodes[index]
	return BufferInfo{
		Handle:      t.handle(index),
		StartAddr:   n.startAddr,
		EndAddr:     n.endAddr,
		Size:        n.size,
		Alignment:   n.alignment,
		Granularity: n.granularity,
		Free:        n.free,
		Static:      n.static,
		Name:        n.name,
		Children:    n.usedCount + n.freeCount,
	}
}

// Parent returns the level that owns the buffer, or NoBuffer if it is unlinked
func (t *Tree) Parent(handle BufferHandle) (BufferHandle, error) {
	index, err := t.resolve(handle)
	if err != nil {
		return NoBuffer, err
	}

	parent := t.nodes[index].parent
	if parent == noNode {
		return NoBuffer, nil
	}

	return t.handle(parent), nil
}

// IsLinked reports whether the buffer has been placed in a level
func (t *Tree) IsLinked(handle BufferHandle) bool {
	index, err := t.resolve(handle)
	return err == nil && t.nodes[index].linked()
}

// SetName changes the label of the buffer. Names are not unique.
func (t *Tree) SetName(handle BufferHandle, name string) error {
	index, err := t.resolve(handle)
	if err != nil {
		return t.warn(err)
	}

	t.nodes[index].name = name
	return nil
}

func (t *Tree) modifiable(handle BufferHandle) (*node, error) {
	index, err := t.resolve(handle)
	if err != nil {
		return nil, t.warn(err)
	}

	n := t.nodes[index]
	if n.linked() {
		return nil, t.warn(cerrors.Wrap(memutils.ErrAlreadyLinked, "can't modify a linked buffer"), addrAttrs(n)...)
	}

	return n, nil
}

// resizable resolves a buffer whose extent is about to change. Its child regions span the
// current extent, so a buffer with children keeps it.
func (t *Tree) resizable(handle BufferHandle) (*node, error) {
	n, err := t.modifiable(handle)
	if err != nil {
		return nil, err
	}

	if n.hasChildren() {
		return nil, t.warn(cerrors.Wrapf(memutils.ErrHasChildren, "can't change the extent of buffer %q", n.name), addrAttrs(n)...)
	}

	return n, nil
}

// SetStartAddr moves an unlinked buffer. A buffer that already contains buffers can't be moved.
func (t *Tree) SetStartAddr(handle BufferHandle, startAddr int) error {
	n, err := t.resizable(handle)
	if err != nil {
		return err
	}

	n.startAddr = startAddr
	n.endAddr = startAddr + n.size - 1
	return nil
}

// SetSize resizes an unlinked buffer. A buffer that already contains buffers can't be resized.
func (t *Tree) SetSize(handle BufferHandle, size int) error {
	n, err := t.resizable(handle)
	if err != nil {
		return err
	}

	n.setSize(size)
	return nil
}

// SetAlignment changes the start address alignment of an unlinked buffer. An alignment of 0 is
// accepted here but makes any later placement attempt fail fatally.
func (t *Tree) SetAlignment(handle BufferHandle, alignment uint) error {
	n, err := t.modifiable(handle)
	if err != nil {
		return err
	}

	n.alignment = alignment
	return nil
}

// SetGranularity changes the size quantum of an unlinked buffer. A granularity of 0 is accepted
// here but makes any later placement attempt fail fatally.
func (t *Tree) SetGranularity(handle BufferHandle, granularity uint) error {
	n, err := t.modifiable(handle)
	if err != nil {
		return err
	}

	n.granularity = granularity
	return nil
}

// Children returns the handles of every region of the level, free and occupied, in address order
func (t *Tree) Children(level BufferHandle) ([]BufferHandle, error) {
	index, err := t.resolve(level)
	if err != nil {
		return nil, err
	}

	var children []BufferHandle
	for child := t.nodes[index].first; child != noNode; child = t.nodes[child].next {
		children = append(children, t.handle(child))
	}

	return children, nil
}

// VisitLevel calls visit for every region of the level in address order. Iteration stops at the
// first error, which is returned.
func (t *Tree) VisitLevel(level BufferHandle, visit func(info BufferInfo) error) error {
	index, err := t.resolve(level)
	if err != nil {
		return err
	}

	for child := t.nodes[index].first; child != noNode; child = t.nodes[child].next {
		err = visit(t.bufferInfo(child))
		if err != nil {
			return err
		}
	}

	return nil
}

func (t *Tree) logAttrs(handle BufferHandle) []slog.Attr {
	index, err := t.resolve(handle)
	if err != nil {
		return nil
	}

	return addrAttrs(t.nodes[index])
}
