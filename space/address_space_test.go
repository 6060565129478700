package space_test

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memmap/memutils"
	"github.com/vkngwrapper/memmap/memutils/metadata"
	"github.com/vkngwrapper/memmap/space"
	"golang.org/x/exp/slog"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout))
}

func newSpace(t *testing.T, size int) *space.AddressSpace {
	s, err := space.New(newLogger(), space.CreateOptions{Size: size})
	require.NoError(t, err)
	return s
}

func requireNoViolations(t *testing.T, s *space.AddressSpace) {
	violations, err := s.CheckConsistency()
	require.NoError(t, err)
	require.Empty(t, violations)
	require.NoError(t, s.Validate())
}

func handles(buffers []space.Buffer) []metadata.BufferHandle {
	var result []metadata.BufferHandle
	for _, buf := range buffers {
		result = append(result, buf.Handle())
	}
	return result
}

func TestNewRejectsNegativeSize(t *testing.T) {
	_, err := space.New(newLogger(), space.CreateOptions{Size: -1})
	require.ErrorIs(t, err, memutils.ErrInvalidSize)
}

func TestBuildLater(t *testing.T) {
	s, err := space.New(newLogger(), space.CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, s.Size())

	_, err = s.AllocateBySize(10, metadata.AllocationModeFirstFit)
	require.ErrorIs(t, err, memutils.ErrNotBuilt)

	require.ErrorIs(t, s.Build(0), memutils.ErrInvalidSize)
	require.NoError(t, s.Build(512))
	require.Equal(t, 512, s.Size())
	require.ErrorIs(t, s.Build(512), memutils.ErrAlreadyBuilt)

	buf, err := s.AllocateBySize(10, metadata.AllocationModeFirstFit)
	require.NoError(t, err)

	info, err := buf.Info()
	require.NoError(t, err)
	require.Equal(t, 0, info.StartAddr)
	require.Equal(t, 9, info.EndAddr)
	requireNoViolations(t, s)
}

func TestDestroyReportsUnreleasedBuffers(t *testing.T) {
	var log bytes.Buffer
	s, err := space.New(slog.New(slog.NewTextHandler(&log)), space.CreateOptions{Size: 1024})
	require.NoError(t, err)

	buf, err := s.AllocateBySize(100, metadata.AllocationModeFirstFit)
	require.NoError(t, err)
	require.NoError(t, buf.SetName("leak"))

	require.Error(t, s.Destroy())
	require.Contains(t, log.String(), "[UNRELEASED MEMORY] unfreed buffer")
	require.Contains(t, log.String(), "name=leak")

	require.NoError(t, s.Deallocate(buf))
	require.NoError(t, s.Destroy())
	require.False(t, s.Root().IsValid())
}

func TestStaticRegistry(t *testing.T) {
	s := newSpace(t, 1024)

	vectors := s.NewBufferAt(512, 128)
	require.NoError(t, vectors.SetName("vectors"))
	require.NoError(t, s.AllocateStatic(vectors))

	a, err := s.AllocateBySize(256, metadata.AllocationModeFirstFit)
	require.NoError(t, err)

	inner := s.NewBufferAt(16, 16)
	require.NoError(t, a.AllocateStatic(inner))

	require.Equal(t, []metadata.BufferHandle{vectors.Handle(), inner.Handle()}, handles(s.StaticBuffers()))
	require.True(t, s.IsStatic(vectors))
	require.True(t, s.IsStatic(inner))
	require.False(t, s.IsStatic(a))

	// a holds a static buffer, so it survives the soft reset along with both statics
	require.NoError(t, s.SoftReset())
	require.True(t, a.IsValid())
	require.Len(t, s.StaticBuffers(), 2)

	require.ErrorIs(t, s.Deallocate(a), memutils.ErrStaticDescendant)
	require.ErrorIs(t, s.Deallocate(vectors), memutils.ErrStatic)

	require.NoError(t, s.HardReset())
	require.Empty(t, s.StaticBuffers())
	require.False(t, vectors.IsValid())
	require.False(t, s.IsStatic(vectors))

	children, err := s.Root().Children()
	require.NoError(t, err)
	require.Len(t, children, 1)

	info, err := children[0].Info()
	require.NoError(t, err)
	require.True(t, info.Free)
	require.Equal(t, 1024, info.Size)

	requireNoViolations(t, s)
	require.NoError(t, s.Destroy())
}

func TestNestedHardResetPrunesStatics(t *testing.T) {
	s := newSpace(t, 1024)

	a, err := s.AllocateBySize(256, metadata.AllocationModeFirstFit)
	require.NoError(t, err)

	inner := s.NewBufferAt(0, 32)
	require.NoError(t, a.AllocateStatic(inner))
	require.Len(t, s.StaticBuffers(), 1)

	require.NoError(t, a.HardReset())
	require.Empty(t, s.StaticBuffers())
	require.NoError(t, s.Deallocate(a))
}

func TestNestedLevels(t *testing.T) {
	s := newSpace(t, 1024)

	a, err := s.AllocateBySize(256, metadata.AllocationModeFirstFit)
	require.NoError(t, err)
	child, err := a.AllocateBySize(64, metadata.AllocationModeFirstFit)
	require.NoError(t, err)

	parent, ok, err := child.Parent()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.Handle(), parent.Handle())

	_, ok, err = s.Root().Parent()
	require.NoError(t, err)
	require.False(t, ok)

	found, ok, err := a.Buffer(10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, child.Handle(), found.Handle())

	_, ok, err = a.Buffer(100)
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = a.Buffer(300)
	require.ErrorIs(t, err, memutils.ErrAddressOutOfRange)
	require.True(t, memutils.IsFatal(err))

	dump, err := s.Sprint(true)
	require.NoError(t, err)
	require.Equal(t, "@00000000:@000003ff:00000400 USED NORMAL\n"+
		"    @00000000:@000000ff:00000100 USED NORMAL\n"+
		"        @00000000:@0000003f:00000040 USED NORMAL\n"+
		"        @00000040:@000000ff:000000c0 FREE NORMAL\n"+
		"    @00000100:@000003ff:00000300 FREE NORMAL\n", dump)

	require.NoError(t, s.Deallocate(a))
	require.False(t, child.IsValid())
	requireNoViolations(t, s)
}

func TestMissedLookupsReturnUsableBuffers(t *testing.T) {
	s := newSpace(t, 1024)

	parent, ok, err := s.Root().Parent()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, metadata.NoBuffer, parent.Handle())
	require.False(t, parent.IsValid())

	_, err = parent.Info()
	require.ErrorIs(t, err, memutils.ErrInvalidHandle)

	found, ok, err := s.Buffer(10)
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, found.SetName("missing"), memutils.ErrInvalidHandle)

	_, err = found.AllocateBySize(8, metadata.AllocationModeFirstFit)
	require.ErrorIs(t, err, memutils.ErrInvalidHandle)

	failed, err := s.AllocateBySize(2048, metadata.AllocationModeFirstFit)
	require.Error(t, err)
	_, err = failed.Children()
	require.ErrorIs(t, err, memutils.ErrInvalidHandle)

	require.False(t, space.Buffer{}.IsValid())
	requireNoViolations(t, s)
}

func TestBuffersFromAnotherSpaceAreRejected(t *testing.T) {
	s := newSpace(t, 1024)
	other := newSpace(t, 1024)

	foreign := other.NewBuffer(10)
	require.ErrorIs(t, s.Allocate(foreign, metadata.AllocationModeFirstFit), memutils.ErrInvalidHandle)
	require.ErrorIs(t, s.Insert(foreign), memutils.ErrInvalidHandle)
	require.NoError(t, foreign.Release())
}

func TestRootQueries(t *testing.T) {
	s := newSpace(t, 1024)

	buf, err := s.InsertAccess(metadata.Access{StartAddr: 100, Size: 100})
	require.NoError(t, err)
	require.NoError(t, buf.SetName("io"))

	named, err := s.BuffersByName("io")
	require.NoError(t, err)
	require.Equal(t, []metadata.BufferHandle{buf.Handle()}, handles(named))

	inRange, err := s.BuffersInRange(0, 150)
	require.NoError(t, err)
	require.Equal(t, []metadata.BufferHandle{buf.Handle()}, handles(inRange))

	byAccess, err := s.BuffersByAccess(metadata.Access{StartAddr: 200, Size: 10})
	require.NoError(t, err)
	require.Empty(t, byAccess)

	overlaps, err := s.AccessOverlaps(metadata.Access{StartAddr: 150, Size: 10})
	require.NoError(t, err)
	require.True(t, overlaps)

	found, ok, err := s.Buffer(199)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, buf.Handle(), found.Handle())

	fragmentation, err := s.Fragmentation()
	require.NoError(t, err)
	require.InDelta(t, 200.0/3.0, fragmentation, 0.0001)

	usage, err := s.UsageStatistics()
	require.NoError(t, err)
	require.InDelta(t, 9.765625, usage, 0.0001)

	var stats memutils.DetailedStatistics
	require.NoError(t, s.CalculateStatistics(&stats))
	require.Equal(t, 1, stats.AllocationCount)
	require.Equal(t, 2, stats.UnusedRangeCount)
	require.Equal(t, 924, stats.FreeBytes())

	require.NoError(t, s.DeallocateByAddr(150))
	require.ErrorIs(t, s.DeallocateByAddr(150), memutils.ErrAlreadyFree)

	fragmentation, err = s.Fragmentation()
	require.NoError(t, err)
	require.InDelta(t, 100.0, fragmentation, 0.0001)
	requireNoViolations(t, s)
}

func TestBufferContents(t *testing.T) {
	s := newSpace(t, 1024)

	buf, err := s.AllocateBySize(4, metadata.AllocationModeFirstFit)
	require.NoError(t, err)

	require.NoError(t, buf.SetContents([]byte{1, 2, 3, 4, 5}))

	contents, err := buf.Contents()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, contents)

	// The returned slice is a copy
	contents[0] = 9
	same, err := buf.CompareContents([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.True(t, same)

	require.NoError(t, buf.ResetContents())
	contents, err = buf.Contents()
	require.NoError(t, err)
	require.Len(t, contents, 4)
}

func TestLinkedBuffersCannotBeModified(t *testing.T) {
	s := newSpace(t, 1024)

	buf := s.NewBuffer(64)
	require.NoError(t, buf.SetAlignment(128))
	require.NoError(t, buf.SetGranularity(32))
	require.NoError(t, s.Allocate(buf, metadata.AllocationModeBestFit))

	require.ErrorIs(t, buf.SetSize(32), memutils.ErrAlreadyLinked)
	require.ErrorIs(t, buf.SetStartAddr(0), memutils.ErrAlreadyLinked)
	require.ErrorIs(t, buf.Release(), memutils.ErrAlreadyLinked)
	require.NoError(t, buf.SetName("renamed"))

	info, err := buf.Info()
	require.NoError(t, err)
	require.Equal(t, "renamed", info.Name)
	require.Equal(t, uint(128), info.Alignment)
	require.Equal(t, uint(32), info.Granularity)
}

func TestCreateFlagsString(t *testing.T) {
	require.Equal(t, "None", space.CreateFlags(0).String())
	require.Equal(t, "CreateSynchronized", space.CreateSynchronized.String())
}

func TestSynchronizedSpace(t *testing.T) {
	s, err := space.New(newLogger(), space.CreateOptions{
		Flags:       space.CreateSynchronized,
		Size:        4096,
		DisableInfo: true,
	})
	require.NoError(t, err)
	require.Equal(t, space.CreateSynchronized, s.Flags())

	collector := space.NewCollector(s, "sync")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 50; j++ {
				buf, err := s.AllocateBySize(8, metadata.AllocationModeFirstFit)
				if err != nil {
					errs <- err
					return
				}

				err = s.Deallocate(buf)
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		for j := 0; j < 50; j++ {
			_ = s.BuildStatsString(false)
			_ = testutil.CollectAndCount(collector)
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	requireNoViolations(t, s)
	require.NoError(t, s.Destroy())
}
