package metadata

// AllocationMode selects both how a free region is chosen for a new buffer and where inside
// that region the buffer is placed.
type AllocationMode uint32

const (
	// AllocationModeRandomFit starts at a random free region and searches outward from it, then
	// places the buffer at a random aligned offset inside the region
	AllocationModeRandomFit AllocationMode = iota
	// AllocationModeFirstFitRandom searches like AllocationModeFirstFit and places the buffer at
	// a random aligned offset inside the region
	AllocationModeFirstFitRandom
	// AllocationModeBestFitRandom searches like AllocationModeBestFit and places the buffer at
	// a random aligned offset inside the region
	AllocationModeBestFitRandom
	// AllocationModeFirstFit chooses the lowest free region that can hold the buffer and places
	// it at the region's first aligned address
	AllocationModeFirstFit
	// AllocationModeBestFit chooses the smallest free region that can hold the buffer and places
	// it at the region's first aligned address
	AllocationModeBestFit
	// AllocationModeUniformFit chooses the largest free region that can hold the buffer and places
	// it in the middle of the region, spreading allocations across the map
	AllocationModeUniformFit
)

var allocationModeMapping = map[AllocationMode]string{
	AllocationModeRandomFit:      "AllocationModeRandomFit",
	AllocationModeFirstFitRandom: "AllocationModeFirstFitRandom",
	AllocationModeBestFitRandom:  "AllocationModeBestFitRandom",
	AllocationModeFirstFit:       "AllocationModeFirstFit",
	AllocationModeBestFit:        "AllocationModeBestFit",
	AllocationModeUniformFit:     "AllocationModeUniformFit",
}

func (m AllocationMode) String() string {
	return allocationModeMapping[m]
}

// IsValid reports whether m is one of the known allocation modes
func (m AllocationMode) IsValid() bool {
	_, ok := allocationModeMapping[m]
	return ok
}

// searchMode is the region search used by m. The randomized-placement variants share the search
// of their deterministic counterpart.
func (m AllocationMode) searchMode() AllocationMode {
	switch m {
	case AllocationModeFirstFitRandom:
		return AllocationModeFirstFit
	case AllocationModeBestFitRandom:
		return AllocationModeBestFit
	default:
		return m
	}
}

func (m AllocationMode) randomPlacement() bool {
	return m == AllocationModeRandomFit || m == AllocationModeFirstFitRandom || m == AllocationModeBestFitRandom
}
