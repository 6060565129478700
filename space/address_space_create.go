package space

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/memmap/memutils"
	"github.com/vkngwrapper/memmap/memutils/metadata"
	"github.com/vkngwrapper/memmap/space/internal/utils"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific address space behaviors to activate
type CreateFlags int32

const (
	// CreateSynchronized guards the address space and all Buffer values obtained from it with a
	// read-write mutex. Without it, the consumer must guarantee the address space is used from only
	// one goroutine at a time. Set it when a Collector scrapes the space from another goroutine.
	CreateSynchronized CreateFlags = 1 << iota
)

var createFlagsMapping = map[CreateFlags]string{
	CreateSynchronized: "CreateSynchronized",
}

func (f CreateFlags) String() string {
	var names []string
	for flag, name := range createFlagsMapping {
		if f&flag != 0 {
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// CreateOptions contains optional settings when creating an address space
type CreateOptions struct {
	// Flags indicates specific address space behaviors to activate
	Flags CreateFlags
	// Size is the number of addressable bytes. If it is left 0, the space must be built with
	// AddressSpace.Build before buffers can be placed in it.
	Size int

	// Random drives the randomized allocation modes and payload generation. If it is nil, a
	// generator seeded with Seed is used.
	Random metadata.RandomSource
	// Seed seeds the default generator when Random is nil
	Seed uint64

	// DisableWarnings suppresses diagnostics for recoverable failures
	DisableWarnings bool
	// DisableInfo suppresses informational diagnostics
	DisableInfo bool
}

// New creates a new AddressSpace
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*AddressSpace, error) {
	if options.Size < 0 {
		return nil, errors.Wrapf(memutils.ErrInvalidSize, "address space size %d", options.Size)
	}

	random := options.Random
	if random == nil {
		random = metadata.NewRandomSource(options.Seed)
	}

	tree := metadata.NewTree(logger, random)
	tree.DisableWarnings = options.DisableWarnings
	tree.DisableInfo = options.DisableInfo

	space := &AddressSpace{
		logger:      logger,
		mutex:       utils.OptionalRWMutex{UseMutex: options.Flags&CreateSynchronized != 0},
		createFlags: options.Flags,
		tree:        tree,
		root:        tree.NewBuffer(options.Size),
		staticSet:   swiss.NewMap[metadata.BufferHandle, struct{}](16),
	}

	err := tree.SetName(space.root, "root")
	if err != nil {
		return nil, err
	}

	if options.Size > 0 {
		err = tree.Build(space.root)
		if err != nil {
			return nil, err
		}
	}

	return space, nil
}
