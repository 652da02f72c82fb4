package core_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/ml"
	"github.com/snow-ghost/featsel/testkit"
)

func newFitness(d *core.Dataset, factory core.ModelFactory, scoring core.Scoring) *core.CVFitness {
	return &core.CVFitness{
		Data:      d,
		Factory:   factory,
		Validator: ml.NewValidator(d.Task),
		Scoring:   scoring,
		Folds:     3,
		Lambda:    0.05,
	}
}

func TestFitnessEmptyGenomeIsInfinite(t *testing.T) {
	d := testkit.RegressionDataset(30, 4, 2, 1)
	var failures []error
	f := newFitness(d, func() core.Model { return &testkit.MeanModel{} }, testkit.AbsError{})
	f.Failed = func(_ core.Genome, err error) { failures = append(failures, err) }

	got := f.Fitness(context.Background(), core.Genome{0, 0, 0, 0}, core.NewRand(1))
	assert.True(t, math.IsInf(got, 1))
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], core.ErrEmptySelection)
}

func TestFitnessPenaltyAndSign(t *testing.T) {
	d := testkit.RegressionDataset(30, 4, 2, 1)
	ctx := context.Background()

	lower := newFitness(d, func() core.Model { return &testkit.MeanModel{} }, testkit.ConstScore{Value: 2})
	got := lower.Fitness(ctx, core.Genome{1, 1, 0, 0}, core.NewRand(1))
	assert.InDelta(t, 2+0.05*2.0/4.0, got, 1e-12)

	higher := newFitness(d, func() core.Model { return &testkit.MeanModel{} }, testkit.ConstScore{Value: 0.9, Higher: true})
	got = higher.Fitness(ctx, core.Genome{1, 0, 0, 0}, core.NewRand(1))
	assert.InDelta(t, -0.9+0.05*1.0/4.0, got, 1e-12)
}

func TestFitnessModelFailuresAreInfinite(t *testing.T) {
	d := testkit.RegressionDataset(30, 4, 2, 1)
	ctx := context.Background()
	g := core.Genome{1, 0, 1, 0}

	fail := newFitness(d, func() core.Model { return testkit.FailModel{} }, testkit.AbsError{})
	assert.True(t, math.IsInf(fail.Fitness(ctx, g, core.NewRand(1)), 1))

	var panicked bool
	boom := newFitness(d, func() core.Model { return testkit.PanicModel{} }, testkit.AbsError{})
	boom.Failed = func(core.Genome, error) { panicked = true }
	assert.True(t, math.IsInf(boom.Fitness(ctx, g, core.NewRand(1)), 1))
	assert.True(t, panicked)
}

func TestFitnessSubsampleIsSeeded(t *testing.T) {
	d := testkit.RegressionDataset(200, 5, 3, 9)
	f := newFitness(d, func() core.Model { return ml.NewLinearRegression() }, ml.MSE{})
	f.MaxSamples = 50
	g := core.Genome{1, 1, 1, 0, 0}

	a := f.Fitness(context.Background(), g, core.EvalRand(42, 0, 3))
	b := f.Fitness(context.Background(), g, core.EvalRand(42, 0, 3))
	assert.Equal(t, a, b)
	assert.False(t, math.IsInf(a, 0))
}

func TestFitnessPrefersInformativeFeatures(t *testing.T) {
	d := testkit.RegressionDataset(120, 6, 3, 5)
	f := newFitness(d, func() core.Model { return ml.NewLinearRegression() }, ml.MSE{})
	ctx := context.Background()

	good := f.Fitness(ctx, core.Genome{1, 1, 1, 0, 0, 0}, core.NewRand(1))
	bad := f.Fitness(ctx, core.Genome{0, 0, 0, 1, 1, 1}, core.NewRand(1))
	assert.Less(t, good, bad)
}

func TestClassificationFitnessIsNegatedAccuracy(t *testing.T) {
	d := testkit.ClassificationDataset(60, 4, 2, 3)
	f := newFitness(d, func() core.Model { return ml.NewLogisticRegression() }, ml.Accuracy{})
	f.Lambda = 0
	got := f.Fitness(context.Background(), core.Genome{1, 1, 0, 0}, core.NewRand(1))
	assert.GreaterOrEqual(t, got, -1.0)
	assert.Less(t, got, -0.8)
}
