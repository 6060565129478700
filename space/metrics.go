package space

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vkngwrapper/memmap/memutils"
)

const (
	descUsage = iota
	descFragmentation
	descTotalBytes
	descFreeBytes
	descBuffers
	descStaticBuffers
)

var (
	descriptors = []*prometheus.Desc{
		descUsage: prometheus.NewDesc(
			"memmap_usage_percent",
			"Percentage of root level bytes held by buffers.",
			[]string{
				"space",
			},
			nil,
		),
		descFragmentation: prometheus.NewDesc(
			"memmap_fragmentation_percent",
			"Percentage of root level regions that are free.",
			[]string{
				"space",
			},
			nil,
		),
		descTotalBytes: prometheus.NewDesc(
			"memmap_total_bytes",
			"Number of addressable bytes of the address space.",
			[]string{
				"space",
			},
			nil,
		),
		descFreeBytes: prometheus.NewDesc(
			"memmap_free_bytes",
			"Number of root level bytes not held by any buffer.",
			[]string{
				"space",
			},
			nil,
		),
		descBuffers: prometheus.NewDesc(
			"memmap_regions",
			"Number of root level regions by state.",
			[]string{
				"space",
				"state",
			},
			nil,
		),
		descStaticBuffers: prometheus.NewDesc(
			"memmap_static_buffers",
			"Number of static buffers placed anywhere in the address space.",
			[]string{
				"space",
			},
			nil,
		),
	}
)

// Collector exports the statistics of an AddressSpace as prometheus gauges. The address space
// should be created with CreateSynchronized when it is scraped from another goroutine.
type Collector struct {
	space *AddressSpace
	name  string
}

var _ prometheus.Collector = &Collector{}

// NewCollector creates a collector reporting space under the provided name label
func NewCollector(space *AddressSpace, name string) *Collector {
	return &Collector{space: space, name: name}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range descriptors {
		ch <- desc
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.space.collect(c.name) {
		ch <- m
	}
}

func (s *AddressSpace) collect(name string) []prometheus.Metric {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	err := s.tree.AddDetailedStatistics(s.root, &stats)
	if err != nil {
		return nil
	}

	usage, _ := s.tree.UsageStatistics(s.root)
	fragmentation, _ := s.tree.Fragmentation(s.root)

	return []prometheus.Metric{
		prometheus.MustNewConstMetric(
			descriptors[descUsage],
			prometheus.GaugeValue,
			usage,
			name,
		),
		prometheus.MustNewConstMetric(
			descriptors[descFragmentation],
			prometheus.GaugeValue,
			fragmentation,
			name,
		),
		prometheus.MustNewConstMetric(
			descriptors[descTotalBytes],
			prometheus.GaugeValue,
			float64(stats.LevelBytes),
			name,
		),
		prometheus.MustNewConstMetric(
			descriptors[descFreeBytes],
			prometheus.GaugeValue,
			float64(stats.FreeBytes()),
			name,
		),
		prometheus.MustNewConstMetric(
			descriptors[descBuffers],
			prometheus.GaugeValue,
			float64(stats.AllocationCount),
			name,
			"used",
		),
		prometheus.MustNewConstMetric(
			descriptors[descBuffers],
			prometheus.GaugeValue,
			float64(stats.UnusedRangeCount),
			name,
			"free",
		),
		prometheus.MustNewConstMetric(
			descriptors[descStaticBuffers],
			prometheus.GaugeValue,
			float64(len(s.statics)),
			name,
		),
	}
}
