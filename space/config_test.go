package space_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memmap/memutils"
	"github.com/vkngwrapper/memmap/space"
)

const sampleConfig = `
size: 4096
seed: 3
synchronized: true
static:
  - name: vectors
    start: 0
    size: 256
  - name: mmio
    start: 3072
    size: 1024
    alignment: 1024
`

func TestParseConfig(t *testing.T) {
	cfg, err := space.ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	expected := &space.Config{
		Size:         4096,
		Seed:         3,
		Synchronized: true,
		Static: []space.StaticRegion{
			{Name: "vectors", Start: 0, Size: 256},
			{Name: "mmio", Start: 3072, Size: 1024, Alignment: 1024},
		},
	}
	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Errorf("parsed configuration mismatch (-want +got):\n%s", diff)
	}

	options := cfg.CreateOptions()
	require.Equal(t, space.CreateSynchronized, options.Flags)
	require.Equal(t, 4096, options.Size)
	require.Equal(t, uint64(3), options.Seed)
}

func TestParseConfigRejectsBadDocuments(t *testing.T) {
	_, err := space.ParseConfig([]byte("size: 1024\nsizes: 12\n"))
	require.Error(t, err)

	_, err = space.ParseConfig([]byte("size: 0\n"))
	require.ErrorIs(t, err, memutils.ErrInvalidSize)

	_, err = space.ParseConfig([]byte("size: 1024\nstatic:\n  - start: 1000\n    size: 100\n"))
	require.ErrorIs(t, err, memutils.ErrAddressOutOfRange)

	_, err = space.ParseConfig([]byte("size: 1024\nstatic:\n  - start: 10\n    size: 0\n"))
	require.ErrorIs(t, err, memutils.ErrInvalidSize)
}

func TestNewFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "space.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := space.LoadConfig(path)
	require.NoError(t, err)

	s, err := space.NewFromConfig(newLogger(), cfg)
	require.NoError(t, err)
	require.Equal(t, space.CreateSynchronized, s.Flags())
	require.Equal(t, 4096, s.Size())

	statics := s.StaticBuffers()
	require.Len(t, statics, 2)

	var names []string
	for _, buf := range statics {
		info, err := buf.Info()
		require.NoError(t, err)
		require.True(t, info.Static)
		names = append(names, info.Name)
	}
	require.Equal(t, []string{"vectors", "mmio"}, names)

	dump, err := s.Sprint(true)
	require.NoError(t, err)
	require.Equal(t, "@00000000:@00000fff:00001000 USED NORMAL\n"+
		"    @00000000:@000000ff:00000100 USED STATIC\n"+
		"    @00000100:@00000bff:00000b00 FREE NORMAL\n"+
		"    @00000c00:@00000fff:00000400 USED STATIC\n", dump)

	// Statics survive a soft reset
	require.NoError(t, s.SoftReset())
	require.Len(t, s.StaticBuffers(), 2)
	requireNoViolations(t, s)
}

func TestNewFromConfigRejectsOverlappingStatics(t *testing.T) {
	cfg := &space.Config{
		Size: 1024,
		Static: []space.StaticRegion{
			{Name: "first", Start: 0, Size: 256},
			{Name: "second", Start: 128, Size: 128},
		},
	}

	_, err := space.NewFromConfig(newLogger(), cfg)
	require.ErrorIs(t, err, memutils.ErrAddressInUse)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := space.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
