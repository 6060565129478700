package memutils

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Statistics counts the regions of one or more levels of a memory map
type Statistics struct {
	LevelCount      int
	BufferCount     int
	AllocationCount int
	LevelBytes      int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.LevelCount = 0
	s.BufferCount = 0
	s.AllocationCount = 0
	s.LevelBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.LevelCount += other.LevelCount
	s.BufferCount += other.BufferCount
	s.AllocationCount += other.AllocationCount
	s.LevelBytes += other.LevelBytes
	s.AllocationBytes += other.AllocationBytes
}

// FreeBytes is the number of bytes not covered by allocations
func (s *Statistics) FreeBytes() int {
	return s.LevelBytes - s.AllocationBytes
}

// Fragmentation is the percentage of free regions among all regions. It is not weighted by size.
func (s *Statistics) Fragmentation() float64 {
	if s.BufferCount == 0 {
		return 0
	}

	return float64(s.BufferCount-s.AllocationCount) / float64(s.BufferCount) * 100
}

// Usage is the percentage of bytes covered by allocations
func (s *Statistics) Usage() float64 {
	if s.LevelBytes == 0 {
		return 0
	}

	return 100 - float64(s.FreeBytes())/float64(s.LevelBytes)*100
}

type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	AllocationSizeMin  int
	AllocationSizeMax  int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++
	s.BufferCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.BufferCount++
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount

	if other.UnusedRangeSizeMin < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = other.UnusedRangeSizeMin
	}

	if other.UnusedRangeSizeMax > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = other.UnusedRangeSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}

// DetailedStatisticsToJson populates a json object with the counts and extremes in stats. Extremes
// are omitted when there is nothing to measure.
func DetailedStatisticsToJson(json *jwriter.ObjectState, stats *DetailedStatistics) {
	json.Name("Levels").Int(stats.LevelCount)
	json.Name("Buffers").Int(stats.BufferCount)
	json.Name("Allocations").Int(stats.AllocationCount)
	json.Name("UnusedRanges").Int(stats.UnusedRangeCount)
	json.Name("TotalBytes").Int(stats.LevelBytes)
	json.Name("AllocatedBytes").Int(stats.AllocationBytes)
	json.Name("UnusedBytes").Int(stats.FreeBytes())

	if stats.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}

	if stats.UnusedRangeCount > 0 {
		json.Name("UnusedRangeSizeMin").Int(stats.UnusedRangeSizeMin)
		json.Name("UnusedRangeSizeMax").Int(stats.UnusedRangeSizeMax)
	}
}
