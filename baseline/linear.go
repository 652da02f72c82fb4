package baseline

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/ml"
)

const (
	lassoFolds  = 5
	lassoAlphas = 30
	coefEps     = 1e-6
)

// coefModel is a model that exposes one weight per feature.
type coefModel interface {
	core.Model
	Coefficients() []float64
}

// lassoCV picks the L1 strength by 5-fold CV and keeps the features with a
// non-zero weight. Classification uses L1 logistic regression over a C grid.
func lassoCV(ctx context.Context, in Input) ([]int, error) {
	if in.Task == core.Classification {
		return l1LogisticCV(ctx, in)
	}
	n, _ := in.X.Dims()
	folds, err := ml.KFold(n, min(lassoFolds, n))
	if err != nil {
		return nil, err
	}

	bestAlpha, bestMSE := 0.0, math.Inf(1)
	for _, alpha := range ml.AlphaGrid(in.X, in.Y, lassoAlphas, 1e-3) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mse, err := foldScore(folds, in.X, in.Y, func() coefModel {
			m := ml.NewLasso(alpha)
			m.MaxIter = 1000
			return m
		}, ml.MSE{})
		if err != nil {
			continue
		}
		if mse < bestMSE {
			bestAlpha, bestMSE = alpha, mse
		}
	}
	if math.IsInf(bestMSE, 1) {
		return nil, errors.New("lasso: no alpha could be fitted")
	}

	final := ml.NewLasso(bestAlpha)
	if err := final.Fit(in.X, in.Y); err != nil {
		return nil, fmt.Errorf("lasso: %w", err)
	}
	return nonZero(final.Coefficients()), nil
}

func l1LogisticCV(ctx context.Context, in Input) ([]int, error) {
	folds, err := ml.StratifiedKFold(in.Y, lassoFolds)
	if err != nil {
		return nil, err
	}
	newModel := func(c float64) func() coefModel {
		return func() coefModel {
			m := ml.NewLogisticRegression()
			m.Penalty = "l1"
			m.C = c
			m.MaxIter = 500
			return m
		}
	}

	bestC, bestAcc := 0.0, math.Inf(-1)
	for i := 0; i < 10; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := math.Pow(10, -4+8*float64(i)/9)
		acc, err := foldScore(folds, in.X, in.Y, newModel(c), ml.Accuracy{})
		if err != nil {
			continue
		}
		if acc > bestAcc {
			bestC, bestAcc = c, acc
		}
	}
	if math.IsInf(bestAcc, -1) {
		return nil, errors.New("lasso: no C could be fitted")
	}

	final := newModel(bestC)()
	if err := final.Fit(in.X, in.Y); err != nil {
		return nil, fmt.Errorf("lasso: %w", err)
	}
	return nonZero(final.Coefficients()), nil
}

// foldScore is the mean test score over precomputed folds.
func foldScore(folds [][]int, X *mat.Dense, y []float64, newModel func() coefModel, scoring core.Scoring) (float64, error) {
	n, _ := X.Dims()
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	total := 0.0
	for _, test := range folds {
		inTest := make(map[int]bool, len(test))
		for _, i := range test {
			inTest[i] = true
		}
		train := make([]int, 0, n-len(test))
		for _, i := range all {
			if !inTest[i] {
				train = append(train, i)
			}
		}
		if len(train) == 0 {
			return 0, errors.New("empty training fold")
		}
		m := newModel()
		if err := m.Fit(ml.Rows(X, train), pickRows(y, train)); err != nil {
			return 0, err
		}
		pred, err := m.Predict(ml.Rows(X, test))
		if err != nil {
			return 0, err
		}
		total += scoring.Score(pickRows(y, test), pred)
	}
	return total / float64(len(folds)), nil
}

// rfe repeatedly fits the task's linear model and drops the feature with
// the smallest absolute weight until K remain.
func rfe(ctx context.Context, in Input) ([]int, error) {
	_, p := in.X.Dims()
	active := make([]int, p)
	for i := range active {
		active[i] = i
	}
	for len(active) > in.K {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var m coefModel
		if in.Task == core.Classification {
			m = ml.NewLogisticRegression()
		} else {
			m = ml.NewLinearRegression()
		}
		Xa, y := core.Subset(in.X, in.Y, nil, active)
		if err := m.Fit(Xa, y); err != nil {
			return nil, fmt.Errorf("rfe: %w", err)
		}
		coef := m.Coefficients()
		drop := 0
		for j := 1; j < len(coef); j++ {
			if math.Abs(coef[j]) < math.Abs(coef[drop]) {
				drop = j
			}
		}
		active = append(active[:drop], active[drop+1:]...)
	}
	return active, nil
}

func nonZero(coef []float64) []int {
	out := make([]int, 0, len(coef))
	for j, c := range coef {
		if math.Abs(c) > coefEps {
			out = append(out, j)
		}
	}
	return out
}

func pickRows(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}
