package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
)

// FatalExitCode is the process exit code a consumer should use when it decides to abort on an
// error for which IsFatal returns true
const FatalExitCode = 19420

// ErrFatal marks errors that indicate misuse which makes continued simulation meaningless, or a
// memory map that can no longer be trusted. Use IsFatal to test for it.
var ErrFatal error = errors.New("unrecoverable memory map error")

var (
	// ErrNotBuilt is returned when an operation is attempted on a level that has no size
	ErrNotBuilt error = errors.New("memory map was not built")
	// ErrAlreadyBuilt is returned when a memory map is built more than once
	ErrAlreadyBuilt error = errors.New("memory map is already built")
	// ErrInvalidHandle is returned for NoBuffer or handles whose buffer has been released
	ErrInvalidHandle error = errors.New("buffer handle is invalid, the buffer was probably already deallocated")
	// ErrInvalidLevel is returned when a free region is used as the container of an operation
	ErrInvalidLevel error = errors.New("a free region cannot contain buffers")
	// ErrSelfAllocation is returned when a buffer would be placed inside its own subtree
	ErrSelfAllocation error = errors.New("buffer cannot be placed inside itself")
	// ErrAlreadyLinked is returned when a buffer that is already in a memory map is allocated,
	// inserted or modified
	ErrAlreadyLinked error = errors.New("buffer is already linked in memory")
	// ErrNotLinked is returned when deallocating a buffer that was never placed
	ErrNotLinked error = errors.New("buffer is not linked anywhere")
	// ErrNotInLevel is returned when deallocating a buffer through a level that does not own it
	ErrNotInLevel error = errors.New("buffer does not belong to this level")
	// ErrInvalidSize is returned for buffers with a size below 1
	ErrInvalidSize error = errors.New("buffer size has to be > 0")
	// ErrHasChildren is returned when allocating, moving or resizing a buffer that already contains
	// buffers
	ErrHasChildren error = errors.New("operation is not allowed on buffers with children")
	// ErrInvalidMode is returned for unknown allocation modes
	ErrInvalidMode error = errors.New("unknown allocation mode")
	// ErrNoSpace is returned when no free region can hold the requested buffer
	ErrNoSpace error = errors.New("not enough contiguous free space")
	// ErrAddressInUse is returned when inserting at an address that is already occupied
	ErrAddressInUse error = errors.New("address is already used")
	// ErrAddressOutOfRange is returned for addresses outside of a level. Lookups mark it fatal,
	// insertions return it as a plain failure.
	ErrAddressOutOfRange error = errors.New("address is outside of the memory map")
	// ErrStatic is returned when deallocating a static buffer
	ErrStatic error = errors.New("can't deallocate a static buffer")
	// ErrStaticDescendant is returned when deallocating a buffer whose subtree holds a static buffer
	ErrStaticDescendant error = errors.New("buffer contains a static buffer")
	// ErrAlreadyFree is returned when deallocating a free region
	ErrAlreadyFree error = errors.New("can't deallocate a free buffer")
	// ErrNotFound is returned when no buffer lives at the requested address
	ErrNotFound error = errors.New("no buffer found")
	// ErrZeroAlignment is always returned marked with ErrFatal
	ErrZeroAlignment error = errors.New("alignment can't be 0")
	// ErrZeroGranularity is always returned marked with ErrFatal
	ErrZeroGranularity error = errors.New("granularity can't be 0")
	// ErrNilPayload is returned when setting nil contents
	ErrNilPayload error = errors.New("payload is nil")
	// ErrInconsistent is the base error of a failed consistency check, always marked with ErrFatal
	ErrInconsistent error = errors.New("address space is inconsistent")
)

// Fatal marks err as unrecoverable
func Fatal(err error) error {
	return cerrors.Mark(err, ErrFatal)
}

// IsFatal reports whether err, or any error it wraps, was marked with Fatal
func IsFatal(err error) bool {
	return cerrors.Is(err, ErrFatal)
}
