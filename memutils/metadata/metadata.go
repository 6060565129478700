package metadata

import (
	"context"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memmap/memutils"
	"golang.org/x/exp/slog"
)

const noNode int32 = -1

// node is one contiguous region of the address space. Every node is owned by exactly one level:
// the child list of its parent node. A node may itself own a child list covering its own span.
type node struct {
	generation uint32
	live       bool

	startAddr int
	endAddr   int
	size      int

	alignment   uint
	granularity uint

	free     bool
	static   bool
	name     string
	contents []byte

	// Links in the level that owns this node
	parent   int32
	prev     int32
	next     int32
	prevFree int32
	nextFree int32

	// Child level owned by this node
	first     int32
	firstFree int32
	usedCount int
	freeCount int
}

func (n *node) linked() bool {
	return n.parent != noNode
}

func (n *node) hasChildren() bool {
	return n.first != noNode
}

func (n *node) setSize(size int) {
	n.size = size
	n.endAddr = n.startAddr + size - 1
}

func (n *node) setExtent(startAddr, endAddr int) {
	n.startAddr = startAddr
	n.endAddr = endAddr
	n.size = endAddr - startAddr + 1
}

func (n *node) contains(addr int) bool {
	return addr >= n.startAddr && addr <= n.endAddr
}

// Tree is an arena of buffer nodes. Any node can act as a level: the container whose child list
// is carved up by Allocate, Insert and Deallocate. Nodes are addressed through BufferHandle values
// and all links between nodes are arena indices.
//
// Tree is not safe for concurrent use. All operations on one Tree must be serialized by the caller.
type Tree struct {
	logger *slog.Logger
	random RandomSource

	nodes     []*node
	freeSlots []int32
	liveCount int

	// DisableWarnings suppresses diagnostics for recoverable failures
	DisableWarnings bool
	// DisableInfo suppresses informational diagnostics
	DisableInfo bool
}

// NewTree creates an empty Tree. The random source drives the randomized allocation modes and
// payload generation; pass a seeded source for reproducible runs.
func NewTree(logger *slog.Logger, random RandomSource) *Tree {
	if random == nil {
		random = NewRandomSource(0)
	}

	return &Tree{
		logger: logger,
		random: random,
	}
}

// LiveCount returns the number of buffer nodes currently held by the arena, free regions included
func (t *Tree) LiveCount() int {
	return t.liveCount
}

func (t *Tree) allocateNode() int32 {
	var index int32
	if len(t.freeSlots) > 0 {
		index = t.freeSlots[len(t.freeSlots)-1]
		t.freeSlots = t.freeSlots[:len(t.freeSlots)-1]
	} else {
		index = int32(len(t.nodes))
		t.nodes = append(t.nodes, &node{})
	}

	n := t.nodes[index]
	*n = node{
		generation:  n.generation,
		live:        true,
		alignment:   1,
		granularity: 1,
		parent:      noNode,
		prev:        noNode,
		next:        noNode,
		prevFree:    noNode,
		nextFree:    noNode,
		first:       noNode,
		firstFree:   noNode,
	}
	t.liveCount++

	return index
}

func (t *Tree) releaseNode(index int32) {
	n := t.nodes[index]
	if !n.live {
		panic("attempted to release a buffer node twice")
	}

	*n = node{generation: n.generation + 1}
	t.freeSlots = append(t.freeSlots, index)
	t.liveCount--
}

// releaseSubtree releases every node below index depth-first, then index itself
func (t *Tree) releaseSubtree(index int32) {
	for child := t.nodes[index].first; child != noNode; {
		next := t.nodes[child].next
		t.releaseSubtree(child)
		child = next
	}

	t.releaseNode(index)
}

func (t *Tree) handle(index int32) BufferHandle {
	return newBufferHandle(index, t.nodes[index].generation)
}

func (t *Tree) resolve(handle BufferHandle) (int32, error) {
	if handle == NoBuffer {
		return noNode, cerrors.Wrap(memutils.ErrInvalidHandle, "received NoBuffer")
	}

	index := handle.index()
	if index < 0 || int(index) >= len(t.nodes) {
		return noNode, cerrors.Wrapf(memutils.ErrInvalidHandle, "handle %#x is not part of this tree", uint64(handle))
	}

	n := t.nodes[index]
	if !n.live || n.generation != handle.generation() {
		return noNode, cerrors.Wrapf(memutils.ErrInvalidHandle, "handle %#x refers to a released buffer", uint64(handle))
	}

	return index, nil
}

// resolveLevel resolves a handle that is about to be used as a container
func (t *Tree) resolveLevel(level BufferHandle) (int32, error) {
	index, err := t.resolve(level)
	if err != nil {
		return noNode, err
	}

	n := t.nodes[index]
	if n.size < 1 {
		return noNode, memutils.ErrNotBuilt
	}
	if n.free {
		return noNode, cerrors.Wrapf(memutils.ErrInvalidLevel, "region [%d, %d]", n.startAddr, n.endAddr)
	}

	return index, nil
}

// isAncestor reports whether candidate is index or one of its ancestors
func (t *Tree) isAncestor(candidate, index int32) bool {
	for current := index; current != noNode; current = t.nodes[current].parent {
		if current == candidate {
			return true
		}
	}

	return false
}

func (t *Tree) warn(err error, attrs ...slog.Attr) error {
	t.warnMsg(err.Error(), attrs...)
	return err
}

func (t *Tree) warnMsg(msg string, attrs ...slog.Attr) {
	if !t.DisableWarnings {
		t.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
	}
}

func (t *Tree) info(msg string, attrs ...slog.Attr) {
	if !t.DisableInfo {
		t.logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
	}
}

func (t *Tree) fatal(err error, attrs ...slog.Attr) error {
	t.logger.LogAttrs(context.Background(), slog.LevelError, err.Error(), attrs...)
	return memutils.Fatal(err)
}

func (t *Tree) checkConstraints(n *node) error {
	if n.alignment == 0 {
		return t.fatal(cerrors.Wrapf(memutils.ErrZeroAlignment, "buffer %q", n.name))
	}
	if n.granularity == 0 {
		return t.fatal(cerrors.Wrapf(memutils.ErrZeroGranularity, "buffer %q", n.name))
	}

	return nil
}

func addrAttrs(n *node) []slog.Attr {
	return []slog.Attr{
		slog.Int("startAddr", n.startAddr),
		slog.Int("endAddr", n.endAddr),
		slog.Int("size", n.size),
	}
}
