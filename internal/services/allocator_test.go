package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
)

func TestReserve_FirstAllocationStartsAtRangeStart(t *testing.T) {
	repo := newFakePortRepo()
	allocator := NewPortAllocator(repo, newFakeProber(), DefaultRegistry())

	result, err := allocator.Reserve(context.Background(), ReserveRequest{
		ProjectID:         "proj-1",
		DetectedFramework: "next",
	})

	require.NoError(t, err)
	assert.Equal(t, 3100, result.Port)
	assert.Equal(t, "next", result.Framework)
	assert.Equal(t, "PORT", result.EnvVar)
}

func TestReserve_ReusesExistingReservation(t *testing.T) {
	repo := newFakePortRepo()
	allocator := NewPortAllocator(repo, newFakeProber(), DefaultRegistry())

	first, err := allocator.Reserve(context.Background(), ReserveRequest{
		ProjectID:         "proj-1",
		DetectedFramework: "vite",
	})
	require.NoError(t, err)

	second, err := allocator.Reserve(context.Background(), ReserveRequest{
		ProjectID:         "proj-1",
		DetectedFramework: "vite",
	})
	require.NoError(t, err)
	assert.Equal(t, first.Port, second.Port)
}

func TestReserve_SavedClassificationBeatsDivergentHint(t *testing.T) {
	repo := newFakePortRepo()
	allocator := NewPortAllocator(repo, newFakeProber(), DefaultRegistry())

	_, err := allocator.Reserve(context.Background(), ReserveRequest{
		ProjectID:         "proj-1",
		DetectedFramework: "next",
	})
	require.NoError(t, err)

	// A later divergent hint must not move the project off its range
	result, err := allocator.Reserve(context.Background(), ReserveRequest{
		ProjectID:         "proj-1",
		DetectedFramework: "vite",
	})
	require.NoError(t, err)
	assert.Equal(t, "next", result.Framework)
	assert.Equal(t, 3100, result.Port)
}

func TestReserve_OccupiedPortTriggersRescan(t *testing.T) {
	repo := newFakePortRepo()
	prober := newFakeProber()
	allocator := NewPortAllocator(repo, prober, DefaultRegistry())

	first, err := allocator.Reserve(context.Background(), ReserveRequest{
		ProjectID:         "proj-1",
		DetectedFramework: "node",
	})
	require.NoError(t, err)
	require.Equal(t, 4000, first.Port)

	// A foreign process grabbed the reserved port in the meantime
	prober.setBusy(4000, true)

	second, err := allocator.Reserve(context.Background(), ReserveRequest{
		ProjectID:         "proj-1",
		DetectedFramework: "node",
	})
	require.NoError(t, err)
	assert.Equal(t, 4001, second.Port)

	// The old reservation row was cleared, not duplicated
	alloc, err := repo.AllocationForProject(context.Background(), "proj-1")
	require.NoError(t, err)
	require.NotNil(t, alloc)
	assert.Equal(t, 4001, alloc.Port)
}

func TestReserve_PreferredPortWrapsAroundRange(t *testing.T) {
	repo := newFakePortRepo()
	prober := newFakeProber(3195, 3196)
	allocator := NewPortAllocator(repo, prober, DefaultRegistry())

	result, err := allocator.Reserve(context.Background(), ReserveRequest{
		ProjectID:         "proj-1",
		DetectedFramework: "next",
		PreferredPort:     3195,
	})

	require.NoError(t, err)
	assert.Equal(t, 3197, result.Port)
}

func TestReserve_OutOfRangePreferredPortIgnored(t *testing.T) {
	repo := newFakePortRepo()
	allocator := NewPortAllocator(repo, newFakeProber(), DefaultRegistry())

	result, err := allocator.Reserve(context.Background(), ReserveRequest{
		ProjectID:         "proj-1",
		DetectedFramework: "next",
		PreferredPort:     5173,
	})

	require.NoError(t, err)
	assert.Equal(t, 3100, result.Port)
}

func TestReserve_ExhaustedRange(t *testing.T) {
	repo := newFakePortRepo()
	registry := NewPortRangeRegistry([]FrameworkRange{
		{EnvVar: "PORT", Framework: "tiny", PortStart: 3000, PortEnd: 3002},
	}, "tiny")
	allocator := NewPortAllocator(repo, newFakeProber(), registry)

	for i := 0; i < 3; i++ {
		_, err := allocator.Reserve(context.Background(), ReserveRequest{
			ProjectID: fmt.Sprintf("proj-%d", i),
		})
		require.NoError(t, err)
	}

	_, err := allocator.Reserve(context.Background(), ReserveRequest{ProjectID: "proj-overflow"})
	assert.ErrorIs(t, err, domain.ErrNoFreePorts)
}

func TestReserve_SkipProbeTrustsDurableRecord(t *testing.T) {
	repo := newFakePortRepo()
	// Every port looks busy to the local prober
	prober := newFakeProber()
	for p := 3100; p <= 3199; p++ {
		prober.setBusy(p, true)
	}
	allocator := NewPortAllocator(repo, prober, DefaultRegistry())

	result, err := allocator.Reserve(context.Background(), ReserveRequest{
		ProjectID:         "proj-1",
		DetectedFramework: "next",
		SkipProbe:         true,
	})

	require.NoError(t, err)
	assert.Equal(t, 3100, result.Port)
}

func TestReserve_ConcurrentProjectsGetDistinctPorts(t *testing.T) {
	repo := newFakePortRepo()
	allocator := NewPortAllocator(repo, newFakeProber(), DefaultRegistry())

	const n = 20
	results := make([]ReserveResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = allocator.Reserve(context.Background(), ReserveRequest{
				ProjectID:         fmt.Sprintf("proj-%d", i),
				DetectedFramework: "vite",
			})
		}(i)
	}
	wg.Wait()

	seen := make(map[int]int)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if prev, dup := seen[results[i].Port]; dup {
			t.Fatalf("port %d handed to both proj-%d and proj-%d", results[i].Port, prev, i)
		}
		seen[results[i].Port] = i
	}
}

func TestReconcile(t *testing.T) {
	repo := newFakePortRepo()
	allocator := NewPortAllocator(repo, newFakeProber(), DefaultRegistry())
	ctx := context.Background()

	first, err := allocator.Reserve(ctx, ReserveRequest{ProjectID: "proj-1", DetectedFramework: "next"})
	require.NoError(t, err)

	// Dev server bound a different port; move the reservation
	require.NoError(t, allocator.Reconcile(ctx, "proj-1", 3105))
	alloc, err := repo.AllocationForProject(ctx, "proj-1")
	require.NoError(t, err)
	require.NotNil(t, alloc)
	assert.Equal(t, 3105, alloc.Port)
	assert.NotEqual(t, first.Port, alloc.Port)

	// Same port again is a no-op
	require.NoError(t, allocator.Reconcile(ctx, "proj-1", 3105))

	// A port another project owns surfaces a mismatch
	_, err = allocator.Reserve(ctx, ReserveRequest{ProjectID: "proj-2", DetectedFramework: "next"})
	require.NoError(t, err)
	alloc2, err := repo.AllocationForProject(ctx, "proj-2")
	require.NoError(t, err)
	err = allocator.Reconcile(ctx, "proj-1", alloc2.Port)
	assert.ErrorIs(t, err, domain.ErrPortMismatch)
}

func TestRelease(t *testing.T) {
	repo := newFakePortRepo()
	allocator := NewPortAllocator(repo, newFakeProber(), DefaultRegistry())
	ctx := context.Background()

	_, err := allocator.Reserve(ctx, ReserveRequest{ProjectID: "proj-1", DetectedFramework: "astro"})
	require.NoError(t, err)

	require.NoError(t, allocator.Release(ctx, "proj-1"))

	alloc, err := repo.AllocationForProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Nil(t, alloc)

	// Released ports become immediately reusable by other projects
	result, err := allocator.Reserve(ctx, ReserveRequest{ProjectID: "proj-2", DetectedFramework: "astro"})
	require.NoError(t, err)
	assert.Equal(t, 4320, result.Port)
}
