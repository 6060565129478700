package space

import (
	"os"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/memmap/memutils"
)

// Sprint renders the map with one line per region, nested levels indented beneath their buffer
// when recursive is set
func (s *AddressSpace) Sprint(recursive bool) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.tree.Sprint(s.root, recursive)
}

// WriteToFile writes the root level's regions to the file at path, one line per region, creating or
// truncating it
func (s *AddressSpace) WriteToFile(path string, recursive bool) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	err = s.tree.WriteLevel(file, s.root, recursive)
	closeErr := file.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// BuildStatsString returns a JSON document describing the map's totals over every level, the root
// level's usage and fragmentation, and the static buffers. If detailed is true, a DetailedMap
// object lists every region of every level.
func (s *AddressSpace) BuildStatsString(detailed bool) string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	writer := jwriter.NewWriter()
	objState := writer.Object()

	var stats memutils.DetailedStatistics
	stats.Clear()
	_ = s.tree.CalculateStatistics(s.root, &stats)

	totalObj := objState.Name("Total").Object()
	memutils.DetailedStatisticsToJson(&totalObj, &stats)
	totalObj.End()

	usage, _ := s.tree.UsageStatistics(s.root)
	fragmentation, _ := s.tree.Fragmentation(s.root)
	objState.Name("Usage").Float64(usage)
	objState.Name("Fragmentation").Float64(fragmentation)
	objState.Name("Flags").String(s.createFlags.String())

	staticArray := objState.Name("Static").Array()
	for _, handle := range s.statics {
		info, err := s.tree.Info(handle)
		if err != nil {
			continue
		}

		staticObj := staticArray.Object()
		staticObj.Name("Start").Int(info.StartAddr)
		staticObj.Name("Size").Int(info.Size)
		if info.Name != "" {
			staticObj.Name("Name").String(info.Name)
		}
		staticObj.End()
	}
	staticArray.End()

	if detailed {
		mapObj := objState.Name("DetailedMap").Object()
		_ = s.tree.PrintDetailedMap(s.root, &mapObj)
		mapObj.End()
	}

	objState.End()

	return string(writer.Bytes())
}

// PrintDetailedMap writes a JSON object describing every region of every level to writer
func (s *AddressSpace) PrintDetailedMap(writer *jwriter.Writer) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	objState := writer.Object()
	defer objState.End()

	return s.tree.PrintDetailedMap(s.root, &objState)
}
