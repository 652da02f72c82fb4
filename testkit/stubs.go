package testkit

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"

	"github.com/snow-ghost/featsel/core"
)

// MeanModel predicts the training mean of y.
type MeanModel struct {
	mean   float64
	fitted bool
}

func (m *MeanModel) Fit(_ mat.Matrix, y []float64) error {
	if len(y) == 0 {
		return errors.New("testkit: empty target")
	}
	s := 0.0
	for _, v := range y {
		s += v
	}
	m.mean = s / float64(len(y))
	m.fitted = true
	return nil
}

func (m *MeanModel) Predict(X mat.Matrix) ([]float64, error) {
	if !m.fitted {
		return nil, errors.New("testkit: not fitted")
	}
	n, _ := X.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = m.mean
	}
	return out, nil
}

// PanicModel panics on Fit.
type PanicModel struct{}

func (PanicModel) Fit(mat.Matrix, []float64) error       { panic("testkit: boom") }
func (PanicModel) Predict(mat.Matrix) ([]float64, error) { return nil, nil }

// FailModel always fails to fit.
type FailModel struct{}

func (FailModel) Fit(mat.Matrix, []float64) error       { return errors.New("testkit: fit failed") }
func (FailModel) Predict(mat.Matrix) ([]float64, error) { return nil, nil }

// AbsError is a lower-is-better mean absolute error scorer.
type AbsError struct{}

func (AbsError) Name() string         { return "mae" }
func (AbsError) HigherIsBetter() bool { return false }
func (AbsError) Score(yTrue, yPred []float64) float64 {
	s := 0.0
	for i, v := range yTrue {
		s += math.Abs(v - yPred[i])
	}
	return s / float64(len(yTrue))
}

// ConstScore always reports Value.
type ConstScore struct {
	Value  float64
	Higher bool
}

func (c ConstScore) Name() string                 { return "const" }
func (c ConstScore) HigherIsBetter() bool         { return c.Higher }
func (c ConstScore) Score(_, _ []float64) float64 { return c.Value }

// TargetFitness scores a genome by its Hamming distance to Target, so the
// optimum is known. Genomes listed in Fail score +Inf.
type TargetFitness struct {
	Target core.Genome
	Fail   map[string]bool
	calls  atomic.Int64
}

func (f *TargetFitness) Fitness(_ context.Context, g core.Genome, _ *rand.Rand) float64 {
	f.calls.Add(1)
	if !g.Any() || f.Fail[g.String()] {
		return math.Inf(1)
	}
	d := 0
	for i := range g {
		if g[i] != f.Target[i] {
			d++
		}
	}
	return float64(d)
}

// Calls reports how many genomes were scored.
func (f *TargetFitness) Calls() int64 { return f.calls.Load() }

// ConstFitness gives every genome the same cost.
type ConstFitness float64

func (c ConstFitness) Fitness(context.Context, core.Genome, *rand.Rand) float64 {
	return float64(c)
}

// SampleFitness scores a genome with a value drawn from the evaluation
// generator, which exposes any dependence on scheduling order.
type SampleFitness struct{}

func (SampleFitness) Fitness(_ context.Context, g core.Genome, rng *rand.Rand) float64 {
	return float64(g.Count()) + rng.Float64()
}

// Recorder is an observer that keeps every generation it sees.
type Recorder struct {
	Stats []core.GenerationStats
}

func (r *Recorder) OnGeneration(_ context.Context, s core.GenerationStats) {
	r.Stats = append(r.Stats, s)
}
