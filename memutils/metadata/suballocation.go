package metadata

import "math"

// BufferHandle identifies a buffer node inside a Tree. The low 32 bits are the slot index, the
// high 32 bits the slot generation, so handles to released buffers are detected instead of
// aliasing whatever buffer reuses the slot.
type BufferHandle uint64

const (
	NoBuffer BufferHandle = math.MaxUint64
)

func newBufferHandle(index int32, generation uint32) BufferHandle {
	return BufferHandle(uint64(generation)<<32 | uint64(uint32(index)))
}

func (h BufferHandle) index() int32 {
	return int32(uint32(h))
}

func (h BufferHandle) generation() uint32 {
	return uint32(h >> 32)
}

// Access describes an address range by start address and size. It carries no ownership.
type Access struct {
	StartAddr int
	Size      int
}

// EndAddr is the inclusive last address of the access
func (a Access) EndAddr() int {
	return a.StartAddr + a.Size - 1
}

// BufferInfo is a read-only snapshot of a buffer node
type BufferInfo struct {
	Handle      BufferHandle
	StartAddr   int
	EndAddr     int
	Size        int
	Alignment   uint
	Granularity uint
	Free        bool
	Static      bool
	Name        string
	Children    int
}
