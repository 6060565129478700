package metadata

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/memmap/memutils"
)

// Buffer returns the occupied buffer of level that covers addr. NoBuffer and a nil error are
// returned if addr is free or the level has never been materialized. An address outside of the
// level is a fatal error.
func (t *Tree) Buffer(level BufferHandle, addr int) (BufferHandle, error) {
	levelIndex, err := t.resolve(level)
	if err != nil {
		return NoBuffer, t.warn(err)
	}

	lvl := t.nodes[levelIndex]
	if !lvl.contains(addr) {
		return NoBuffer, t.fatal(cerrors.Wrapf(memutils.ErrAddressOutOfRange, "address %#x is outside [%#x, %#x]",
			addr, lvl.startAddr, lvl.endAddr))
	}

	region := t.findRegion(levelIndex, addr)
	if region == noNode || t.nodes[region].free {
		return NoBuffer, nil
	}

	return t.handle(region), nil
}

// BuffersInRange returns the occupied buffers of level that overlap [lo, hi], in address order
func (t *Tree) BuffersInRange(level BufferHandle, lo, hi int) ([]BufferHandle, error) {
	levelIndex, err := t.resolve(level)
	if err != nil {
		return nil, t.warn(err)
	}

	if hi < lo {
		t.warnMsg("range query end lies before its start")
		return nil, nil
	}

	var buffers []BufferHandle
	for child := t.nodes[levelIndex].first; child != noNode; child = t.nodes[child].next {
		c := t.nodes[child]
		if c.startAddr > hi {
			break
		}
		if !c.free && c.endAddr >= lo {
			buffers = append(buffers, t.handle(child))
		}
	}

	return buffers, nil
}

// BuffersByAccess returns the occupied buffers of level that overlap access
func (t *Tree) BuffersByAccess(level BufferHandle, access Access) ([]BufferHandle, error) {
	return t.BuffersInRange(level, access.StartAddr, access.EndAddr())
}

// BuffersByName returns the occupied buffers of level whose name is exactly name
func (t *Tree) BuffersByName(level BufferHandle, name string) ([]BufferHandle, error) {
	levelIndex, err := t.resolve(level)
	if err != nil {
		return nil, t.warn(err)
	}

	if name == "" {
		t.warnMsg("searched for buffers with an empty name")
		return nil, nil
	}

	var buffers []BufferHandle
	for child := t.nodes[levelIndex].first; child != noNode; child = t.nodes[child].next {
		c := t.nodes[child]
		if !c.free && c.name == name {
			buffers = append(buffers, t.handle(child))
		}
	}

	return buffers, nil
}

// AccessOverlaps reports whether any occupied buffer of level intersects access
func (t *Tree) AccessOverlaps(level BufferHandle, access Access) (bool, error) {
	buffers, err := t.BuffersByAccess(level, access)
	if err != nil {
		return false, err
	}

	return len(buffers) > 0, nil
}

// Fragmentation is the percentage of the level's regions that are free. It is not weighted by
// size. A level that was never split counts as a single free region.
func (t *Tree) Fragmentation(level BufferHandle) (float64, error) {
	var stats memutils.Statistics
	err := t.AddStatistics(level, &stats)
	if err != nil {
		return 0, err
	}

	return stats.Fragmentation(), nil
}

// UsageStatistics is the percentage of the level's bytes held by occupied buffers
func (t *Tree) UsageStatistics(level BufferHandle) (float64, error) {
	var stats memutils.Statistics
	err := t.AddStatistics(level, &stats)
	if err != nil {
		return 0, err
	}

	return stats.Usage(), nil
}

// AddStatistics adds the level's region counts and byte totals to stats
func (t *Tree) AddStatistics(level BufferHandle, stats *memutils.Statistics) error {
	levelIndex, err := t.resolve(level)
	if err != nil {
		return err
	}

	lvl := t.nodes[levelIndex]
	stats.LevelCount++
	stats.LevelBytes += lvl.size

	if lvl.first == noNode {
		stats.BufferCount++
		return nil
	}

	stats.BufferCount += lvl.usedCount + lvl.freeCount
	for child := lvl.first; child != noNode; child = t.nodes[child].next {
		c := t.nodes[child]
		if !c.free {
			stats.AllocationCount++
			stats.AllocationBytes += c.size
		}
	}

	return nil
}

// AddDetailedStatistics adds the level's region counts, byte totals and size extremes to stats
func (t *Tree) AddDetailedStatistics(level BufferHandle, stats *memutils.DetailedStatistics) error {
	levelIndex, err := t.resolve(level)
	if err != nil {
		return err
	}

	lvl := t.nodes[levelIndex]
	stats.LevelCount++
	stats.LevelBytes += lvl.size

	if lvl.first == noNode {
		stats.AddUnusedRange(lvl.size)
		return nil
	}

	for child := lvl.first; child != noNode; child = t.nodes[child].next {
		c := t.nodes[child]
		if c.free {
			stats.AddUnusedRange(c.size)
		} else {
			stats.AddAllocation(c.size)
		}
	}

	return nil
}

// CalculateStatistics adds the statistics of level and of every level nested beneath it to stats.
// stats should be cleared first so the size extremes start out empty.
func (t *Tree) CalculateStatistics(level BufferHandle, stats *memutils.DetailedStatistics) error {
	levelIndex, err := t.resolve(level)
	if err != nil {
		return err
	}

	t.calculateLevel(levelIndex, stats)
	return nil
}

func (t *Tree) calculateLevel(level int32, stats *memutils.DetailedStatistics) {
	var levelStats memutils.DetailedStatistics
	levelStats.Clear()
	_ = t.AddDetailedStatistics(t.handle(level), &levelStats)
	stats.AddDetailedStatistics(&levelStats)

	for child := t.nodes[level].first; child != noNode; child = t.nodes[child].next {
		c := t.nodes[child]
		if !c.free && c.hasChildren() {
			t.calculateLevel(child, stats)
		}
	}
}
