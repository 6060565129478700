package space_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memmap/memutils/metadata"
)

type dumpedRegion struct {
	Start    int
	End      int
	Size     int
	Type     string
	Static   bool
	Name     string
	Children *dumpedLevel
}

type dumpedLevel struct {
	TotalBytes   int
	UnusedBytes  int
	Allocations  int
	UnusedRanges int
	Buffers      []dumpedRegion
}

type dumpedStats struct {
	Total struct {
		Levels         int
		Buffers        int
		Allocations    int
		UnusedRanges   int
		TotalBytes     int
		AllocatedBytes int
		UnusedBytes    int
	}
	Usage         float64
	Fragmentation float64
	Flags         string
	Static        []struct {
		Start int
		Size  int
		Name  string
	}
	DetailedMap *dumpedLevel
}

func TestWriteToFile(t *testing.T) {
	s := newSpace(t, 1024)

	a, err := s.AllocateBySize(256, metadata.AllocationModeFirstFit)
	require.NoError(t, err)
	_, err = a.AllocateBySize(16, metadata.AllocationModeFirstFit)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "map.txt")
	require.NoError(t, s.WriteToFile(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "@00000000:@000000ff:00000100 USED NORMAL\n"+
		"@00000100:@000003ff:00000300 FREE NORMAL\n", string(data))

	require.NoError(t, s.WriteToFile(path, true))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "@00000000:@000000ff:00000100 USED NORMAL\n"+
		"    @00000000:@0000000f:00000010 USED NORMAL\n"+
		"    @00000010:@000000ff:000000f0 FREE NORMAL\n"+
		"@00000100:@000003ff:00000300 FREE NORMAL\n", string(data))

	require.Error(t, s.WriteToFile(filepath.Join(t.TempDir(), "missing", "map.txt"), false))
}

func TestBuildStatsString(t *testing.T) {
	s := newSpace(t, 1024)

	a, err := s.AllocateBySize(256, metadata.AllocationModeFirstFit)
	require.NoError(t, err)
	require.NoError(t, a.SetName("a"))
	_, err = a.AllocateBySize(64, metadata.AllocationModeFirstFit)
	require.NoError(t, err)

	static := s.NewBufferAt(512, 128)
	require.NoError(t, static.SetName("static"))
	require.NoError(t, s.AllocateStatic(static))

	var stats dumpedStats
	require.NoError(t, json.Unmarshal([]byte(s.BuildStatsString(false)), &stats))
	require.Nil(t, stats.DetailedMap)
	// Totals cover the root level and the level inside a
	require.Equal(t, 2, stats.Total.Levels)
	require.Equal(t, 6, stats.Total.Buffers)
	require.Equal(t, 3, stats.Total.Allocations)
	require.Equal(t, 3, stats.Total.UnusedRanges)
	require.Equal(t, 1280, stats.Total.TotalBytes)
	require.Equal(t, 448, stats.Total.AllocatedBytes)
	require.Equal(t, 832, stats.Total.UnusedBytes)
	require.InDelta(t, 37.5, stats.Usage, 0.0001)
	require.InDelta(t, 50.0, stats.Fragmentation, 0.0001)
	require.Equal(t, "None", stats.Flags)
	require.Len(t, stats.Static, 1)
	require.Equal(t, "static", stats.Static[0].Name)
	require.Equal(t, 512, stats.Static[0].Start)

	stats = dumpedStats{}
	require.NoError(t, json.Unmarshal([]byte(s.BuildStatsString(true)), &stats))
	require.NotNil(t, stats.DetailedMap)

	expected := &dumpedLevel{
		TotalBytes:   1024,
		UnusedBytes:  640,
		Allocations:  2,
		UnusedRanges: 2,
		Buffers: []dumpedRegion{
			{Start: 0, End: 255, Size: 256, Type: "USED", Name: "a", Children: &dumpedLevel{
				TotalBytes:   256,
				UnusedBytes:  192,
				Allocations:  1,
				UnusedRanges: 1,
				Buffers: []dumpedRegion{
					{Start: 0, End: 63, Size: 64, Type: "USED"},
					{Start: 64, End: 255, Size: 192, Type: "FREE"},
				},
			}},
			{Start: 256, End: 511, Size: 256, Type: "FREE"},
			{Start: 512, End: 639, Size: 128, Type: "USED", Static: true, Name: "static"},
			{Start: 640, End: 1023, Size: 384, Type: "FREE"},
		},
	}
	if diff := cmp.Diff(expected, stats.DetailedMap); diff != "" {
		t.Errorf("detailed map mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintDetailedMap(t *testing.T) {
	s := newSpace(t, 64)

	writer := jwriter.NewWriter()
	require.NoError(t, s.PrintDetailedMap(&writer))
	require.NoError(t, writer.Error())

	var level dumpedLevel
	require.NoError(t, json.Unmarshal(writer.Bytes(), &level))
	require.Equal(t, dumpedLevel{
		TotalBytes:   64,
		UnusedBytes:  64,
		UnusedRanges: 1,
		Buffers: []dumpedRegion{
			{Start: 0, End: 63, Size: 64, Type: "FREE"},
		},
	}, level)
}
