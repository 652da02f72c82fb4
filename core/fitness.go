package core

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CVFitness scores a genome as the cross-validated cost of a fresh model on
// the selected columns plus a feature-count penalty.
type CVFitness struct {
	Data       *Dataset
	Factory    ModelFactory
	Validator  CrossValidator
	Scoring    Scoring
	Folds      int
	MaxSamples int     // <= 0 disables sub-sampling
	Lambda     float64 // penalty weight on the selected fraction

	// Failed, when set, is told about every evaluation that scored +Inf.
	Failed func(g Genome, err error)
}

func (f *CVFitness) Fitness(ctx context.Context, g Genome, rng *rand.Rand) (cost float64) {
	cols := g.Selected()
	if len(cols) == 0 {
		f.fail(g, ErrEmptySelection)
		return math.Inf(1)
	}

	defer func() {
		if r := recover(); r != nil {
			f.fail(g, fmt.Errorf("model panic: %v", r))
			cost = math.Inf(1)
		}
	}()

	var rows []int
	if n := f.Data.Rows(); f.MaxSamples > 0 && n > f.MaxSamples {
		rows = rng.Perm(n)[:f.MaxSamples]
	}
	X, y := Subset(f.Data.X, f.Data.Y, rows, cols)

	scores, err := f.Validator.CrossValScore(ctx, f.Factory, X, y, f.Folds, f.Scoring)
	if err != nil {
		f.fail(g, err)
		return math.Inf(1)
	}
	mean := stat.Mean(scores, nil)
	if math.IsNaN(mean) || math.IsInf(mean, 0) {
		f.fail(g, fmt.Errorf("non-finite cv score %v", mean))
		return math.Inf(1)
	}
	if f.Scoring.HigherIsBetter() {
		mean = -mean
	}
	return mean + f.Lambda*float64(len(cols))/float64(len(g))
}

func (f *CVFitness) fail(g Genome, err error) {
	if f.Failed != nil {
		f.Failed(g, err)
	}
}

// Subset copies the given rows and columns out of X and y. A nil rows slice
// means all rows in order.
func Subset(X *mat.Dense, y []float64, rows, cols []int) (*mat.Dense, []float64) {
	if rows == nil {
		n, _ := X.Dims()
		rows = make([]int, n)
		for i := range rows {
			rows[i] = i
		}
	}
	out := mat.NewDense(len(rows), len(cols), nil)
	ys := make([]float64, len(rows))
	for i, r := range rows {
		for j, c := range cols {
			out.Set(i, j, X.At(r, c))
		}
		ys[i] = y[r]
	}
	return out, ys
}
