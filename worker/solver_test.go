package worker

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/ml"
	"github.com/snow-ghost/featsel/testkit"
)

func targetParams(seed uint64) core.Params {
	p := testkit.SmallParams(seed)
	p.PopSize = 20
	p.Generations = 30
	p.Patience = 30
	p.MutationRate = 0.05
	return p
}

func TestSolverFindsKnownOptimum(t *testing.T) {
	target := core.Genome{1, 0, 1, 1, 0, 0, 1, 0}
	fit := &testkit.TargetFitness{Target: target}

	s := NewSolver(targetParams(42), fit, SchedulerSequential, nil)
	res, err := s.Solve(context.Background(), len(target))
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Fitness)
	assert.Equal(t, target, res.Genome)
	assert.Equal(t, uint64(42), res.Seed)
}

func TestSolverHistoryNonIncreasing(t *testing.T) {
	fit := &testkit.TargetFitness{Target: core.Genome{0, 1, 0, 1, 1, 0, 1, 1, 0, 0}}
	for seed := uint64(0); seed < 5; seed++ {
		res, err := NewSolver(targetParams(seed), fit, SchedulerSequential, nil).Solve(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, res.History, res.Generations)
		for i := 1; i < len(res.History); i++ {
			assert.LessOrEqual(t, res.History[i], res.History[i-1])
		}
		assert.Equal(t, res.Fitness, res.History[len(res.History)-1])
	}
}

func TestSolverPatienceStopsEarly(t *testing.T) {
	p := testkit.SmallParams(7)
	p.Generations = 20
	p.Patience = 3
	rec := &testkit.Recorder{}

	s := NewSolver(p, testkit.ConstFitness(1.5), SchedulerSequential, nil)
	s.Observers = append(s.Observers, rec)
	res, err := s.Solve(context.Background(), 6)
	require.NoError(t, err)

	// Generation 0 improves on +Inf; generations 1..3 do not.
	assert.Len(t, res.History, 4)
	assert.True(t, res.StoppedEarly)
	assert.Equal(t, 1.5, res.Fitness)
	require.Len(t, rec.Stats, 4)
	assert.True(t, rec.Stats[0].Improved)
	assert.False(t, rec.Stats[3].Improved)
}

func TestSolverGenerationCapIsNormalEnd(t *testing.T) {
	p := testkit.SmallParams(1)
	p.Generations = 5
	p.Patience = 10
	fit := &testkit.TargetFitness{Target: core.Genome{1, 1, 1, 1}}
	res, err := NewSolver(p, fit, SchedulerSequential, nil).Solve(context.Background(), 4)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Generations, 5)
	assert.False(t, res.StoppedEarly)
	assert.Equal(t, int64(p.PopSize*res.Generations), fit.Calls())
}

func TestSolverDeterministicAcrossSchedulers(t *testing.T) {
	p := targetParams(99)
	p.Generations = 8
	p.Workers = 4

	seq, err := NewSolver(p, testkit.SampleFitness{}, SchedulerSequential, nil).Solve(context.Background(), 12)
	require.NoError(t, err)
	par, err := NewSolver(p, testkit.SampleFitness{}, SchedulerParallel, nil).Solve(context.Background(), 12)
	require.NoError(t, err)
	again, err := NewSolver(p, testkit.SampleFitness{}, SchedulerSequential, nil).Solve(context.Background(), 12)
	require.NoError(t, err)

	assert.Equal(t, seq.Genome, par.Genome)
	assert.Equal(t, seq.History, par.History)
	assert.Equal(t, seq.History, again.History)
}

func TestSolverAllInfeasible(t *testing.T) {
	p := testkit.SmallParams(3)
	p.Patience = 2
	res, err := NewSolver(p, testkit.ConstFitness(math.Inf(1)), SchedulerSequential, nil).Solve(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, math.IsInf(res.Fitness, 1))
	assert.Len(t, res.Genome, 5)
	assert.Len(t, res.History, 2)
}

func TestSolverRejectsBadParams(t *testing.T) {
	p := testkit.SmallParams(1)
	p.PopSize = 1
	_, err := NewSolver(p, testkit.ConstFitness(1), SchedulerSequential, nil).Solve(context.Background(), 5)
	assert.True(t, core.IsContractError(err))

	_, err = NewSolver(testkit.SmallParams(1), testkit.ConstFitness(1), SchedulerSequential, nil).Solve(context.Background(), 0)
	assert.True(t, core.IsContractError(err))
}

func TestSolverCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSolver(testkit.SmallParams(1), testkit.ConstFitness(1), SchedulerParallel, nil).Solve(ctx, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolverEndToEndRegression(t *testing.T) {
	d := testkit.RegressionDataset(50, 6, 3, 42)
	fit := &core.CVFitness{
		Data:      d,
		Factory:   func() core.Model { return ml.NewLinearRegression() },
		Validator: ml.NewValidator(d.Task),
		Scoring:   ml.MSE{},
		Folds:     3,
		Lambda:    0.05,
	}
	p := testkit.SmallParams(42)

	start := time.Now()
	res, err := NewSolver(p, fit, SchedulerParallel, nil).Solve(context.Background(), d.Features())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 30*time.Second)

	assert.Len(t, res.Genome, 6)
	assert.True(t, res.Genome.Any())
	assert.False(t, math.IsInf(res.Fitness, 0))
	assert.LessOrEqual(t, len(res.History), 5)
	for _, name := range d.ColumnNames(res.Genome) {
		assert.Contains(t, d.Columns, name)
	}
}

func TestNewSchedulerFallsBack(t *testing.T) {
	s := NewScheduler(SchedulerParallel, testkit.ConstFitness(1), nil, 1, 8, 10)
	assert.Equal(t, "sequential", s.Kind())

	s = NewScheduler(SchedulerParallel, testkit.ConstFitness(1), nil, 1, 2, 10)
	assert.Equal(t, "parallel", s.Kind())

	s = NewScheduler(SchedulerSequential, testkit.ConstFitness(1), nil, 1, 4, 100)
	assert.Equal(t, "sequential", s.Kind())
}

func TestParseGAVersion(t *testing.T) {
	k, err := ParseGAVersion("original")
	require.NoError(t, err)
	assert.Equal(t, SchedulerSequential, k)
	k, err = ParseGAVersion("")
	require.NoError(t, err)
	assert.Equal(t, SchedulerParallel, k)
	_, err = ParseGAVersion("fast")
	assert.True(t, core.IsContractError(err))
}
