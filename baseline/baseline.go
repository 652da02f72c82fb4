// Package baseline implements the classical feature-selection methods a GA
// selection is compared against.
package baseline

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/ml"
)

// Method names as exposed by the API, in their canonical order.
const (
	SelectKBest       = "SelectKBest"
	LassoCV           = "LassoCV"
	RFE               = "RFE"
	VarianceThreshold = "VarianceThreshold"
	MutualInfoTopK    = "MutualInfo_topK"
	RandomForestTopK  = "RandomForest_topK"
)

// Input is what every selector sees: a fully numeric matrix without NaNs.
type Input struct {
	X    *mat.Dense
	Y    []float64
	Task core.TaskKind
	K    int
	Seed uint64
}

// Selector returns the chosen column indices.
type Selector func(ctx context.Context, in Input) ([]int, error)

var selectors = map[string]Selector{
	SelectKBest:       selectKBest,
	LassoCV:           lassoCV,
	RFE:               rfe,
	VarianceThreshold: varianceThreshold,
	MutualInfoTopK:    mutualInfoTopK,
	RandomForestTopK:  randomForestTopK,
}

// Names lists every method in canonical order.
func Names() []string {
	return []string{SelectKBest, LassoCV, RFE, VarianceThreshold, MutualInfoTopK, RandomForestTopK}
}

// Known reports whether name is a registered method.
func Known(name string) bool {
	_, ok := selectors[name]
	return ok
}

// Runner scores baseline selections with the same CV protocol as the GA.
type Runner struct {
	Factory   core.ModelFactory
	Validator core.CrossValidator
	Folds     int
	Seed      uint64

	// OnResult, when set, is called once per finished method.
	OnResult func(ctx context.Context, r core.BaselineResult)
}

// RunAll runs the methods concurrently and returns one result per requested
// name, in request order. A failing or panicking method never affects the
// others.
func (r *Runner) RunAll(ctx context.Context, d *core.Dataset, methods []string, k int) []core.BaselineResult {
	out := make([]core.BaselineResult, len(methods))
	var g errgroup.Group
	for i, name := range methods {
		g.Go(func() error {
			out[i] = r.Run(ctx, d, name, k)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Run executes one method and scores its selection.
func (r *Runner) Run(ctx context.Context, d *core.Dataset, method string, k int) (res core.BaselineResult) {
	start := time.Now()
	res = core.BaselineResult{Method: method, Selected: []string{}}
	defer func() {
		if p := recover(); p != nil {
			res.Selected = []string{}
			res.Score = nil
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		res.Duration = time.Since(start)
		if r.OnResult != nil {
			r.OnResult(ctx, res)
		}
	}()

	sel, ok := selectors[method]
	if !ok {
		res.Error = fmt.Sprintf("unknown method %q", method)
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}
	p := d.Features()
	if k < 1 {
		k = 1
	}
	if k > p {
		k = p
	}

	X := FillMissing(d.X)
	cols, err := sel(ctx, Input{X: X, Y: d.Y, Task: d.Task, K: k, Seed: r.Seed})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	for _, c := range cols {
		res.Selected = append(res.Selected, d.Columns[c])
	}
	if len(cols) == 0 {
		return res
	}

	sub, y := core.Subset(X, d.Y, nil, cols)
	scores, err := r.Validator.CrossValScore(ctx, r.Factory, sub, y, r.Folds, ml.ScoringFor(d.Task))
	if err != nil {
		res.Error = fmt.Sprintf("scoring: %v", err)
		return res
	}
	score := stat.Mean(scores, nil)
	res.Score = &score
	return res
}

// FillMissing replaces NaN cells by their column mean (0 for all-NaN
// columns). X is returned unchanged when it has no NaN.
func FillMissing(X *mat.Dense) *mat.Dense {
	n, p := X.Dims()
	has := false
	for i := 0; i < n && !has; i++ {
		for _, v := range X.RawRowView(i) {
			if math.IsNaN(v) {
				has = true
				break
			}
		}
	}
	if !has {
		return X
	}
	out := mat.DenseCopyOf(X)
	for j := 0; j < p; j++ {
		s, c := 0.0, 0
		for i := 0; i < n; i++ {
			if v := out.At(i, j); !math.IsNaN(v) {
				s += v
				c++
			}
		}
		m := 0.0
		if c > 0 {
			m = s / float64(c)
		}
		for i := 0; i < n; i++ {
			if math.IsNaN(out.At(i, j)) {
				out.Set(i, j, m)
			}
		}
	}
	return out
}

// topK returns the indices of the k largest scores; ties keep column order
// and NaN scores rank last.
func topK(scores []float64, k int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	key := func(i int) float64 {
		if math.IsNaN(scores[i]) {
			return math.Inf(-1)
		}
		return scores[i]
	}
	sort.SliceStable(idx, func(a, b int) bool { return key(idx[a]) > key(idx[b]) })
	if k > len(idx) {
		k = len(idx)
	}
	return idx[:k]
}

func column(X mat.Matrix, j int) []float64 {
	n, _ := X.Dims()
	out := make([]float64, n)
	for i := range out {
		out[i] = X.At(i, j)
	}
	return out
}
