package metadata

import (
	"bytes"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memmap/memutils"
	"golang.org/x/exp/slog"
)

// SetContents copies data into the buffer's payload. Only the first Size bytes are kept; longer
// data is truncated with a warning.
func (t *Tree) SetContents(handle BufferHandle, data []byte) error {
	index, err := t.resolve(handle)
	if err != nil {
		return t.warn(err)
	}
	if data == nil {
		return t.warn(memutils.ErrNilPayload)
	}

	n := t.nodes[index]
	if n.size < 1 {
		return t.warn(cerrors.Wrapf(memutils.ErrInvalidSize, "buffer %q has size %d", n.name, n.size))
	}

	length := len(data)
	if length > n.size {
		t.warnMsg("payload is larger than the buffer and was truncated",
			slog.Int("payloadSize", length),
			slog.Int("size", n.size))
		length = n.size
	}

	n.contents = make([]byte, length)
	copy(n.contents, data)
	return nil
}

// Contents returns the buffer's payload. A buffer whose payload was never set is filled with
// Size pseudo-random bytes on first read. The returned slice is owned by the tree.
func (t *Tree) Contents(handle BufferHandle) ([]byte, error) {
	index, err := t.resolve(handle)
	if err != nil {
		return nil, t.warn(err)
	}

	n := t.nodes[index]
	if n.contents == nil && n.size > 0 {
		n.contents = make([]byte, n.size)
		for i := range n.contents {
			n.contents[i] = byte(t.random.Uint64n(256))
		}
	}

	return n.contents, nil
}

// CompareContents reports whether the buffer's payload starts with reference, comparing at most
// Size bytes. An unset payload only matches a nil reference.
func (t *Tree) CompareContents(handle BufferHandle, reference []byte) (bool, error) {
	index, err := t.resolve(handle)
	if err != nil {
		return false, t.warn(err)
	}

	n := t.nodes[index]
	if n.contents == nil || reference == nil {
		return n.contents == nil && reference == nil, nil
	}

	length := len(reference)
	if length > n.size {
		length = n.size
	}
	if length > len(n.contents) {
		return false, nil
	}

	return bytes.Equal(n.contents[:length], reference[:length]), nil
}

// ResetContents drops the buffer's payload
func (t *Tree) ResetContents(handle BufferHandle) error {
	index, err := t.resolve(handle)
	if err != nil {
		return t.warn(err)
	}

	t.nodes[index].contents = nil
	return nil
}
