package metadata

// AllocationRequest is returned from Tree.CreateAllocationRequest and indicates where the tree
// intends to place a new buffer. The request can be inspected, then committed with Tree.Alloc.
// A request is only valid until the next mutation of its level.
type AllocationRequest struct {
	// Region is the free region that will be split to hold the buffer
	Region BufferHandle
	// StartAddr is the aligned start address chosen for the buffer
	StartAddr int
	// Size is the buffer size after rounding up to its granularity
	Size int
	// Mode is the allocation mode that produced this request
	Mode AllocationMode
}

// EndAddr is the inclusive last address the buffer will occupy
func (r AllocationRequest) EndAddr() int {
	return r.StartAddr + r.Size - 1
}
