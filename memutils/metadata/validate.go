package metadata

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/vkngwrapper/memmap/memutils"
	"golang.org/x/exp/slog"
)

// ViolationKind identifies the structural rule that a Violation breaks
type ViolationKind uint32

const (
	// ViolationGap means two consecutive regions of a level are not contiguous
	ViolationGap ViolationKind = iota
	// ViolationAdjacentFree means two neighboring regions are both free and were never merged
	ViolationAdjacentFree
	// ViolationSizeMismatch means a region's size disagrees with its start and end address
	ViolationSizeMismatch
	// ViolationEmptyBuffer means a region has a size below 1
	ViolationEmptyBuffer
	// ViolationChildSpan means a level's regions do not start and end where the level does
	ViolationChildSpan
	// ViolationFreeList means the free list is not exactly the free regions in address order
	ViolationFreeList
	// ViolationCount means the level's occupied or free counters disagree with its regions
	ViolationCount
	// ViolationLink means a region's parent or sibling links are broken
	ViolationLink
)

var violationKindMapping = map[ViolationKind]string{
	ViolationGap:          "Gap",
	ViolationAdjacentFree: "AdjacentFree",
	ViolationSizeMismatch: "SizeMismatch",
	ViolationEmptyBuffer:  "EmptyBuffer",
	ViolationChildSpan:    "ChildSpan",
	ViolationFreeList:     "FreeList",
	ViolationCount:        "Count",
	ViolationLink:         "Link",
}

func (k ViolationKind) String() string {
	return violationKindMapping[k]
}

// Violation is a single broken structural rule found by CheckConsistency
type Violation struct {
	Kind ViolationKind
	// Level is the container whose regions break the rule
	Level BufferHandle
	// StartAddr and EndAddr locate the offending region, or the level for level-wide violations
	StartAddr int
	EndAddr   int
	Message   string
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s violation at [%#x, %#x]: %s", v.Kind, v.StartAddr, v.EndAddr, v.Message)
}

// CheckConsistency audits level and every level nested in it, returning each structural rule
// that is broken. An empty result means the map is consistent. A level that was never split is
// consistent by definition.
func (t *Tree) CheckConsistency(level BufferHandle) ([]Violation, error) {
	levelIndex, err := t.resolve(level)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	t.checkLevel(levelIndex, &violations)
	return violations, nil
}

// Validate runs CheckConsistency and folds any violations into a single fatal error
func (t *Tree) Validate(level BufferHandle) error {
	violations, err := t.CheckConsistency(level)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		return nil
	}

	var result *multierror.Error
	for _, violation := range violations {
		result = multierror.Append(result, violation)
	}

	err = cerrors.Mark(cerrors.Wrapf(result, "%d consistency violations", len(violations)), memutils.ErrInconsistent)
	return t.fatal(err, slog.Int("violations", len(violations)))
}

func (t *Tree) checkLevel(level int32, violations *[]Violation) {
	lvl := t.nodes[level]
	if lvl.first == noNode {
		return
	}

	levelHandle := t.handle(level)
	report := func(kind ViolationKind, n *node, format string, args ...any) {
		*violations = append(*violations, Violation{
			Kind:      kind,
			Level:     levelHandle,
			StartAddr: n.startAddr,
			EndAddr:   n.endAddr,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	// Bound every walk so a corrupted list cannot loop forever
	limit := len(t.nodes)

	usedCount := 0
	freeCount := 0
	var freeRegions []int32

	prev := noNode
	expectedStart := lvl.startAddr
	child := lvl.first
	for steps := 0; child != noNode; steps++ {
		if steps > limit {
			report(ViolationLink, lvl, "region list does not terminate")
			return
		}

		c := t.nodes[child]
		if !c.live {
			report(ViolationLink, lvl, "region list contains a released buffer")
			return
		}
		if c.parent != level {
			report(ViolationLink, c, "region's parent link does not point at its level")
		}
		if c.prev != prev {
			report(ViolationLink, c, "region's previous link is broken")
		}

		if c.size < 1 {
			report(ViolationEmptyBuffer, c, "size is %d", c.size)
		}
		if c.size != c.endAddr-c.startAddr+1 {
			report(ViolationSizeMismatch, c, "size is %d", c.size)
		}

		if c.startAddr != expectedStart {
			if prev == noNode {
				report(ViolationChildSpan, c, "first region should start at %#x", lvl.startAddr)
			} else {
				report(ViolationGap, c, "region should start at %#x", expectedStart)
			}
		}

		if prev != noNode && c.free && t.nodes[prev].free {
			report(ViolationAdjacentFree, c, "region and its predecessor [%#x, %#x] are both free",
				t.nodes[prev].startAddr, t.nodes[prev].endAddr)
		}

		if c.free {
			freeCount++
			freeRegions = append(freeRegions, child)
		} else {
			usedCount++
		}

		if c.first != noNode {
			if c.free {
				report(ViolationLink, c, "free region owns buffers")
			}
			t.checkLevel(child, violations)
		}

		expectedStart = c.endAddr + 1
		prev = child
		child = c.next
	}

	if prev != noNode && t.nodes[prev].endAddr != lvl.endAddr {
		report(ViolationChildSpan, t.nodes[prev], "last region should end at %#x", lvl.endAddr)
	}

	if usedCount != lvl.usedCount || freeCount != lvl.freeCount {
		report(ViolationCount, lvl, "level counts %d used and %d free regions but holds %d used and %d free",
			lvl.usedCount, lvl.freeCount, usedCount, freeCount)
	}

	prevFree := noNode
	region := lvl.firstFree
	for i := 0; region != noNode || i < len(freeRegions); i++ {
		if i > limit {
			report(ViolationFreeList, lvl, "free list does not terminate")
			return
		}
		if i >= len(freeRegions) {
			report(ViolationFreeList, t.nodes[region], "free list holds more regions than the level has free")
			return
		}
		if region != freeRegions[i] {
			report(ViolationFreeList, t.nodes[freeRegions[i]], "free region is missing from the free list or out of order")
			return
		}
		if t.nodes[region].prevFree != prevFree {
			report(ViolationFreeList, t.nodes[region], "free region's previous free link is broken")
		}

		prevFree = region
		region = t.nodes[region].nextFree
	}
}
