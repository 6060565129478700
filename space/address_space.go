package space

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/memmap/memutils"
	"github.com/vkngwrapper/memmap/memutils/metadata"
	"github.com/vkngwrapper/memmap/space/internal/utils"
	"golang.org/x/exp/slog"
)

// AddressSpace is the top-level memory map. It owns the root level and a registry of the static
// buffers placed anywhere in the map, and forwards every buffer operation to the root level.
type AddressSpace struct {
	logger      *slog.Logger
	mutex       utils.OptionalRWMutex
	createFlags CreateFlags

	tree *metadata.Tree
	root metadata.BufferHandle

	statics   []metadata.BufferHandle
	staticSet *swiss.Map[metadata.BufferHandle, struct{}]
}

var _ memutils.Validatable = &AddressSpace{}

func (s *AddressSpace) buffer(handle metadata.BufferHandle) Buffer {
	return Buffer{space: s, handle: handle}
}

func (s *AddressSpace) buffers(handles []metadata.BufferHandle) []Buffer {
	if handles == nil {
		return nil
	}

	buffers := make([]Buffer, 0, len(handles))
	for _, handle := range handles {
		buffers = append(buffers, s.buffer(handle))
	}
	return buffers
}

// Build sets the size of a space created without one and materializes its root level
func (s *AddressSpace) Build(size int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if size < 1 {
		return errors.Wrapf(memutils.ErrInvalidSize, "address space size %d", size)
	}

	info, err := s.tree.Info(s.root)
	if err != nil {
		return err
	}
	if info.Size > 0 {
		return memutils.ErrAlreadyBuilt
	}

	err = s.tree.SetSize(s.root, size)
	if err != nil {
		return err
	}

	err = s.tree.Build(s.root)
	if err != nil {
		return err
	}

	s.debugValidate()
	return nil
}

// Size is the number of addressable bytes, 0 until the space is built
func (s *AddressSpace) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	info, err := s.tree.Info(s.root)
	if err != nil {
		return 0
	}
	return info.Size
}

// Flags returns the flags the space was created with
func (s *AddressSpace) Flags() CreateFlags {
	return s.createFlags
}

// Root returns the root level as a Buffer
func (s *AddressSpace) Root() Buffer {
	return s.buffer(s.root)
}

// NewBuffer creates an unlinked buffer of the provided size, ready to be allocated
func (s *AddressSpace) NewBuffer(size int) Buffer {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.buffer(s.tree.NewBuffer(size))
}

// NewBufferAt creates an unlinked buffer with the provided start address, ready to be inserted
func (s *AddressSpace) NewBufferAt(startAddr, size int) Buffer {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.buffer(s.tree.NewBufferAt(startAddr, size))
}

// Allocate places buf in the root level using mode
func (s *AddressSpace) Allocate(buf Buffer, mode metadata.AllocationMode) error {
	return s.Root().Allocate(buf, mode)
}

// AllocateBySize creates a buffer of the provided size and places it in the root level
func (s *AddressSpace) AllocateBySize(size int, mode metadata.AllocationMode) (Buffer, error) {
	return s.Root().AllocateBySize(size, mode)
}

// Insert places buf in the root level at its own start address
func (s *AddressSpace) Insert(buf Buffer) error {
	return s.Root().Insert(buf)
}

// InsertAccess creates a buffer covering access and places it in the root level
func (s *AddressSpace) InsertAccess(access metadata.Access) (Buffer, error) {
	return s.Root().InsertAccess(access)
}

// AllocateStatic inserts buf into the root level as a static buffer
func (s *AddressSpace) AllocateStatic(buf Buffer) error {
	return s.Root().AllocateStatic(buf)
}

func (s *AddressSpace) registerStatic(handle metadata.BufferHandle) {
	if s.staticSet.Has(handle) {
		return
	}

	s.staticSet.Put(handle, struct{}{})
	s.statics = append(s.statics, handle)
}

// pruneStatics drops registry entries whose buffers were freed or are no longer static
func (s *AddressSpace) pruneStatics() {
	kept := s.statics[:0]
	for _, handle := range s.statics {
		info, err := s.tree.Info(handle)
		if err == nil && info.Static {
			kept = append(kept, handle)
			continue
		}

		s.staticSet.Delete(handle)
	}

	s.statics = kept
}

// StaticBuffers returns every static buffer of the map in the order they were placed
func (s *AddressSpace) StaticBuffers() []Buffer {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.buffers(s.statics)
}

// IsStatic reports whether buf was placed with AllocateStatic and is still live
func (s *AddressSpace) IsStatic(buf Buffer) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.staticSet.Has(buf.handle)
}

// Deallocate frees buf, which must belong to the root level
func (s *AddressSpace) Deallocate(buf Buffer) error {
	return s.Root().Deallocate(buf)
}

// DeallocateByAddr frees the root level buffer covering addr
func (s *AddressSpace) DeallocateByAddr(addr int) error {
	return s.Root().DeallocateByAddr(addr)
}

// SoftReset frees every buffer in the map except static buffers
func (s *AddressSpace) SoftReset() error {
	return s.Root().SoftReset()
}

// HardReset frees every buffer in the map and empties the static registry
func (s *AddressSpace) HardReset() error {
	return s.Root().HardReset()
}

// Buffer returns the root level buffer covering addr. The boolean is false if addr is free.
func (s *AddressSpace) Buffer(addr int) (Buffer, bool, error) {
	return s.Root().Buffer(addr)
}

// BuffersInRange returns the root level buffers overlapping [lo, hi]
func (s *AddressSpace) BuffersInRange(lo, hi int) ([]Buffer, error) {
	return s.Root().BuffersInRange(lo, hi)
}

// BuffersByAccess returns the root level buffers overlapping access
func (s *AddressSpace) BuffersByAccess(access metadata.Access) ([]Buffer, error) {
	return s.Root().BuffersByAccess(access)
}

// BuffersByName returns the root level buffers called name
func (s *AddressSpace) BuffersByName(name string) ([]Buffer, error) {
	return s.Root().BuffersByName(name)
}

// AccessOverlaps reports whether any root level buffer intersects access
func (s *AddressSpace) AccessOverlaps(access metadata.Access) (bool, error) {
	return s.Root().AccessOverlaps(access)
}

// Fragmentation is the percentage of root level regions that are free
func (s *AddressSpace) Fragmentation() (float64, error) {
	return s.Root().Fragmentation()
}

// UsageStatistics is the percentage of root level bytes held by buffers
func (s *AddressSpace) UsageStatistics() (float64, error) {
	return s.Root().UsageStatistics()
}

// CalculateStatistics fills stats with the counts and extremes of every level of the map
func (s *AddressSpace) CalculateStatistics(stats *memutils.DetailedStatistics) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats.Clear()
	return s.tree.CalculateStatistics(s.root, stats)
}

// CheckConsistency audits the whole map and returns every broken structural rule
func (s *AddressSpace) CheckConsistency() ([]metadata.Violation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.tree.CheckConsistency(s.root)
}

// Validate audits the whole map and returns a fatal error describing every broken rule
func (s *AddressSpace) Validate() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.tree.Validate(s.root)
}

// Destroy tears the map down. It fails, logging each buffer still placed in the root level, unless
// the map was emptied with HardReset or by deallocating every buffer first.
func (s *AddressSpace) Destroy() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	unreleased := 0
	err := s.tree.VisitLevel(s.root, func(info metadata.BufferInfo) error {
		if info.Free {
			return nil
		}

		unreleased++
		s.logUnreleasedMemory(info)
		return nil
	})
	if err != nil {
		s.logger.LogAttrs(context.Background(),
			slog.LevelError,
			"[UNRELEASED MEMORY] error while iterating unreleased memory",
			slog.Any("error", err))
		return err
	}

	if unreleased > 0 {
		return errors.Newf("%d buffers were not freed before the destruction of this address space!", unreleased)
	}

	err = s.tree.Release(s.root)
	if err != nil {
		return err
	}

	s.statics = nil
	s.staticSet = swiss.NewMap[metadata.BufferHandle, struct{}](16)
	s.root = metadata.NoBuffer
	return nil
}

func (s *AddressSpace) logUnreleasedMemory(info metadata.BufferInfo) {
	name := info.Name
	if name == "" {
		name = "empty"
	}

	s.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed buffer",
		slog.Int("startAddr", info.StartAddr),
		slog.Int("size", info.Size),
		slog.Bool("static", info.Static),
		slog.Int("children", info.Children),
		slog.String("name", name),
	)
}
