package optimization

import (
	"context"
	"slices"
	"testing"

	"github.com/aristath/madfolio/internal/domain"
	testingpkg "github.com/aristath/madfolio/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweep(t *testing.T, allowShort bool) *FrontierSweep {
	t.Helper()
	sweep, err := NewMADOptimizer(DefaultConfig(), testLogger()).Frontier(testingpkg.Portfolio4(), allowShort)
	require.NoError(t, err)
	return sweep
}

func TestFrontier_Grid(t *testing.T) {
	sweep := newTestSweep(t, false)
	grid := sweep.Grid()

	assert.True(t, slices.IsSorted(grid))
	assert.LessOrEqual(t, len(grid), DefaultGridPoints+1)
	assert.GreaterOrEqual(t, len(grid), DefaultGridPoints)
	assert.Equal(t, slices.Min(sweep.stats.MeanReturns), grid[0])
	assert.Equal(t, slices.Max(sweep.stats.MeanReturns), grid[len(grid)-1])

	minVol := 0
	for i, sd := range sweep.stats.StdDevs {
		if sd < sweep.stats.StdDevs[minVol] {
			minVol = i
		}
	}
	assert.Contains(t, grid, sweep.stats.MeanReturns[minVol])
	assert.Equal(t, len(grid), len(slices.Compact(slices.Clone(grid))))
}

func TestFrontier_RiskGrowsAwayFromMinimumVariance(t *testing.T) {
	points, err := newTestSweep(t, false).All(context.Background())
	require.NoError(t, err)

	var feasible []FrontierPoint
	for _, p := range points {
		if p.Risk != nil {
			assert.Equal(t, domain.StatusOptimal, p.Status)
			feasible = append(feasible, p)
		}
	}
	require.GreaterOrEqual(t, len(feasible), len(points)-2, "interior targets must be reachable")

	vertex := 0
	for i, p := range feasible {
		if *p.Risk < *feasible[vertex].Risk {
			vertex = i
		}
	}
	const tol = 1e-9
	for i := vertex; i > 0; i-- {
		assert.GreaterOrEqual(t, *feasible[i-1].Risk, *feasible[i].Risk-tol, "left of vertex at %g", feasible[i-1].Return)
	}
	for i := vertex; i < len(feasible)-1; i++ {
		assert.GreaterOrEqual(t, *feasible[i+1].Risk, *feasible[i].Risk-tol, "right of vertex at %g", feasible[i+1].Return)
	}
}

func TestFrontier_PointsIsRestartable(t *testing.T) {
	sweep := newTestSweep(t, false)
	ctx := context.Background()

	var firstThree []FrontierPoint
	for p, err := range sweep.Points(ctx) {
		require.NoError(t, err)
		firstThree = append(firstThree, p)
		if len(firstThree) == 3 {
			break
		}
	}

	all, err := sweep.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(sweep.Grid()))
	for i, p := range firstThree {
		assert.Equal(t, all[i].Return, p.Return)
		assert.Equal(t, all[i].Status, p.Status)
		if p.Risk != nil {
			assert.InDelta(t, *all[i].Risk, *p.Risk, 1e-12)
		}
	}
}

func TestFrontier_UnreachableTargetHasNilRisk(t *testing.T) {
	sweep := newTestSweep(t, false)
	hi := slices.Max(sweep.stats.MeanReturns)
	sweep.grid = []float64{hi * 10, hi}

	points, err := sweep.All(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Nil(t, points[0].Risk)
	assert.Equal(t, domain.StatusInfeasible, points[0].Status)
	assert.NotNil(t, points[1].Risk, "the sweep continues after an unreachable target")
}

func TestFrontier_ShortingNeverIncreasesRisk(t *testing.T) {
	ctx := context.Background()
	longOnly, err := newTestSweep(t, false).All(ctx)
	require.NoError(t, err)
	withShort, err := newTestSweep(t, true).All(ctx)
	require.NoError(t, err)

	require.Len(t, withShort, len(longOnly))
	for i := range longOnly {
		if longOnly[i].Risk == nil {
			continue
		}
		require.NotNil(t, withShort[i].Risk)
		assert.LessOrEqual(t, *withShort[i].Risk, *longOnly[i].Risk+1e-9)
	}
}

func TestFrontier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestSweep(t, false).All(ctx)
	assert.Error(t, err)
}
