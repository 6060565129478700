package space

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memmap/memutils"
	"github.com/vkngwrapper/memmap/memutils/metadata"
)

// Buffer is a view of one buffer of an AddressSpace. Every buffer can act as a level that other
// buffers are placed into, so the same operations are available on the root and on any nested
// buffer. Buffer values are cheap to copy and become invalid once their buffer is deallocated.
// Lookups that find nothing return a Buffer holding metadata.NoBuffer, whose methods fail with
// memutils.ErrInvalidHandle. The zero Buffer belongs to no space and only IsValid and Handle may be
// called on it.
type Buffer struct {
	space  *AddressSpace
	handle metadata.BufferHandle
}

// levelValidator validates one level without taking the space's lock
type levelValidator struct {
	tree  *metadata.Tree
	level metadata.BufferHandle
}

func (v levelValidator) Validate() error {
	return v.tree.Validate(v.level)
}

func (s *AddressSpace) debugValidate() {
	memutils.DebugValidate(levelValidator{tree: s.tree, level: s.root})
}

func (b Buffer) checkChild(child Buffer) error {
	if child.space != b.space {
		return errors.Wrap(memutils.ErrInvalidHandle, "buffer belongs to a different address space")
	}

	return nil
}

// Handle is the tree handle of the buffer
func (b Buffer) Handle() metadata.BufferHandle {
	return b.handle
}

// IsValid reports whether the buffer still exists
func (b Buffer) IsValid() bool {
	if b.space == nil {
		return false
	}

	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	return b.space.tree.IsValid(b.handle)
}

// Info returns a snapshot of the buffer's properties
func (b Buffer) Info() (metadata.BufferInfo, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	return b.space.tree.Info(b.handle)
}

// SetName changes the buffer's label
func (b Buffer) SetName(name string) error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	return b.space.tree.SetName(b.handle, name)
}

// SetStartAddr moves the buffer before it is inserted
func (b Buffer) SetStartAddr(startAddr int) error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	return b.space.tree.SetStartAddr(b.handle, startAddr)
}

// SetSize resizes the buffer before it is placed
func (b Buffer) SetSize(size int) error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	return b.space.tree.SetSize(b.handle, size)
}

// SetAlignment sets the required start address multiple before the buffer is placed
func (b Buffer) SetAlignment(alignment uint) error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	return b.space.tree.SetAlignment(b.handle, alignment)
}

// SetGranularity sets the size quantum before the buffer is placed
func (b Buffer) SetGranularity(granularity uint) error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	return b.space.tree.SetGranularity(b.handle, granularity)
}

// Parent returns the level holding the buffer. The boolean is false for the root and for
// buffers that were never placed.
func (b Buffer) Parent() (Buffer, bool, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	parent, err := b.space.tree.Parent(b.handle)
	if err != nil || parent == metadata.NoBuffer {
		return b.space.buffer(metadata.NoBuffer), false, err
	}

	return b.space.buffer(parent), true, nil
}

// Children returns every region of the buffer's level, free regions included, in address order
func (b Buffer) Children() ([]Buffer, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	children, err := b.space.tree.Children(b.handle)
	if err != nil {
		return nil, err
	}

	return b.space.buffers(children), nil
}

// Release destroys a buffer that was never placed, or was built up as a detached level
func (b Buffer) Release() error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	err := b.space.tree.Release(b.handle)
	if err != nil {
		return err
	}

	b.space.pruneStatics()
	return nil
}

// Allocate places child in this buffer according to mode
func (b Buffer) Allocate(child Buffer, mode metadata.AllocationMode) error {
	err := b.checkChild(child)
	if err != nil {
		return err
	}

	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	err = b.space.tree.Allocate(b.handle, child.handle, mode)
	if err != nil {
		return err
	}

	b.space.debugValidate()
	return nil
}

// AllocateBySize creates a buffer of the provided size with default constraints and places it in
// this buffer according to mode
func (b Buffer) AllocateBySize(size int, mode metadata.AllocationMode) (Buffer, error) {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	handle, err := b.space.tree.AllocateBySize(b.handle, size, mode)
	if err != nil {
		return b.space.buffer(metadata.NoBuffer), err
	}

	b.space.debugValidate()
	return b.space.buffer(handle), nil
}

// Insert places child in this buffer at the child's own start address
func (b Buffer) Insert(child Buffer) error {
	err := b.checkChild(child)
	if err != nil {
		return err
	}

	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	err = b.space.tree.Insert(b.handle, child.handle)
	if err != nil {
		return err
	}

	b.space.debugValidate()
	return nil
}

// InsertAccess creates a buffer covering access and places it in this buffer
func (b Buffer) InsertAccess(access metadata.Access) (Buffer, error) {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	handle, err := b.space.tree.InsertAccess(b.handle, access)
	if err != nil {
		return b.space.buffer(metadata.NoBuffer), err
	}

	b.space.debugValidate()
	return b.space.buffer(handle), nil
}

// AllocateStatic inserts child into this buffer as a static buffer and records it in the address
// space's static registry
func (b Buffer) AllocateStatic(child Buffer) error {
	err := b.checkChild(child)
	if err != nil {
		return err
	}

	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	err = b.space.tree.AllocateStatic(b.handle, child.handle)
	if err != nil {
		return err
	}

	b.space.registerStatic(child.handle)
	b.space.debugValidate()
	return nil
}

// Deallocate frees child, which must be placed directly in this buffer. Buffers nested in child
// are freed along with it.
func (b Buffer) Deallocate(child Buffer) error {
	err := b.checkChild(child)
	if err != nil {
		return err
	}

	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	err = b.space.tree.Deallocate(b.handle, child.handle)
	if err != nil {
		return err
	}

	b.space.debugValidate()
	return nil
}

// DeallocateByAddr frees the buffer covering addr in this buffer
func (b Buffer) DeallocateByAddr(addr int) error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	err := b.space.tree.DeallocateByAddr(b.handle, addr)
	if err != nil {
		return err
	}

	b.space.debugValidate()
	return nil
}

// SoftReset frees every non-static buffer nested in this buffer
func (b Buffer) SoftReset() error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	err := b.space.tree.SoftReset(b.handle)
	if err != nil {
		return err
	}

	b.space.debugValidate()
	return nil
}

// HardReset frees every buffer nested in this buffer, static buffers included
func (b Buffer) HardReset() error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	err := b.space.tree.HardReset(b.handle)
	if err != nil {
		return err
	}

	b.space.pruneStatics()
	b.space.debugValidate()
	return nil
}

// Buffer returns the buffer of this level covering addr. The boolean is false if addr is free.
// An address outside of this buffer is a fatal error.
func (b Buffer) Buffer(addr int) (Buffer, bool, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	handle, err := b.space.tree.Buffer(b.handle, addr)
	if err != nil || handle == metadata.NoBuffer {
		return b.space.buffer(metadata.NoBuffer), false, err
	}

	return b.space.buffer(handle), true, nil
}

// BuffersInRange returns the buffers of this level overlapping [lo, hi]
func (b Buffer) BuffersInRange(lo, hi int) ([]Buffer, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	handles, err := b.space.tree.BuffersInRange(b.handle, lo, hi)
	if err != nil {
		return nil, err
	}

	return b.space.buffers(handles), nil
}

// BuffersByAccess returns the buffers of this level overlapping access
func (b Buffer) BuffersByAccess(access metadata.Access) ([]Buffer, error) {
	return b.BuffersInRange(access.StartAddr, access.EndAddr())
}

// BuffersByName returns the buffers of this level called name
func (b Buffer) BuffersByName(name string) ([]Buffer, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	handles, err := b.space.tree.BuffersByName(b.handle, name)
	if err != nil {
		return nil, err
	}

	return b.space.buffers(handles), nil
}

// AccessOverlaps reports whether any buffer of this level intersects access
func (b Buffer) AccessOverlaps(access metadata.Access) (bool, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	return b.space.tree.AccessOverlaps(b.handle, access)
}

// Fragmentation is the percentage of this level's regions that are free
func (b Buffer) Fragmentation() (float64, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	return b.space.tree.Fragmentation(b.handle)
}

// UsageStatistics is the percentage of this level's bytes held by buffers
func (b Buffer) UsageStatistics() (float64, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	return b.space.tree.UsageStatistics(b.handle)
}

// SetContents copies data into the buffer's payload, truncated to the buffer's size
func (b Buffer) SetContents(data []byte) error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	return b.space.tree.SetContents(b.handle, data)
}

// Contents returns a copy of the buffer's payload, generating random contents on first read
func (b Buffer) Contents() ([]byte, error) {
	// Contents may generate the payload, so this is a write
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	contents, err := b.space.tree.Contents(b.handle)
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), contents...), nil
}

// CompareContents reports whether the buffer's payload starts with reference
func (b Buffer) CompareContents(reference []byte) (bool, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	return b.space.tree.CompareContents(b.handle, reference)
}

// ResetContents drops the buffer's payload
func (b Buffer) ResetContents() error {
	b.space.mutex.Lock()
	defer b.space.mutex.Unlock()

	return b.space.tree.ResetContents(b.handle)
}

// Sprint renders the buffer as a dump line, followed by its nested buffers if recursive is set
func (b Buffer) Sprint(recursive bool) (string, error) {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	return b.space.tree.Sprint(b.handle, recursive)
}

// Validate audits this buffer's level and every level nested in it
func (b Buffer) Validate() error {
	b.space.mutex.RLock()
	defer b.space.mutex.RUnlock()

	return b.space.tree.Validate(b.handle)
}
