// Package space simulates a linear address space carved into nested buffers.
//
// An AddressSpace owns a single root level spanning [0, size-1]. Buffers are placed into a level
// either by searching its free regions with one of the metadata.AllocationMode strategies, or by
// inserting them at a fixed address. Every placed buffer is itself a level that further buffers can
// be placed into, to any depth. Freed regions are coalesced with their free neighbors, so the
// regions of each level always partition it exactly.
//
// Static buffers, placed with AllocateStatic, survive SoftReset and are tracked so they can be
// enumerated later. HardReset frees everything.
//
// Nothing in this package backs real memory. Errors come in two tiers: recoverable misuse, which
// leaves the map untouched, and unrecoverable errors for which memutils.IsFatal returns true.
// Consumers that want the classic behavior can exit with memutils.FatalExitCode on the latter.
package space
