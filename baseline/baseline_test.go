package baseline

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/ml"
	"github.com/snow-ghost/featsel/testkit"
)

func newRunner(task core.TaskKind) *Runner {
	f, _ := ml.NewFactory("linear", task)
	return &Runner{Factory: f, Validator: ml.NewValidator(task), Folds: 3, Seed: 42}
}

func TestRunAllRegressionSelectsInformative(t *testing.T) {
	d := testkit.RegressionDataset(120, 6, 2, 11)
	res := newRunner(core.Regression).RunAll(context.Background(), d, Names(), 2)
	require.Len(t, res, len(Names()))

	for i, r := range res {
		assert.Equal(t, Names()[i], r.Method)
		if r.Method == LassoCV {
			// Lasso decides its own subset size.
			assert.NotEmpty(t, r.Selected)
		} else {
			assert.Len(t, r.Selected, 2, r.Method)
		}
		assert.Empty(t, r.Error, r.Method)
		require.NotNil(t, r.Score, r.Method)
		assert.GreaterOrEqual(t, *r.Score, 0.0)
	}
	for _, r := range res {
		switch r.Method {
		case SelectKBest, RFE:
			assert.Equal(t, []string{"f0", "f1"}, r.Selected, r.Method)
		case MutualInfoTopK, RandomForestTopK:
			assert.Contains(t, r.Selected, "f1", r.Method)
		}
	}
}

func TestVarianceThresholdKEqualsColumns(t *testing.T) {
	X := mat.NewDense(6, 3, []float64{
		1, 10, 0,
		2, 20, 0,
		3, 30, 1,
		4, 40, 0,
		5, 50, 1,
		6, 60, 0,
	})
	d := &core.Dataset{Columns: []string{"a", "b", "c"}, X: X, Y: []float64{1, 2, 3, 4, 5, 6}, Task: core.Regression}
	r := newRunner(core.Regression).Run(context.Background(), d, VarianceThreshold, 3)
	assert.Equal(t, []string{"b", "a", "c"}, r.Selected)
	assert.Empty(t, r.Error)
}

func TestSelectKBestClassificationScoreIsAccuracy(t *testing.T) {
	d := testkit.ClassificationDataset(80, 5, 2, 3)
	r := newRunner(core.Classification).Run(context.Background(), d, SelectKBest, 2)
	require.NotNil(t, r.Score)
	assert.GreaterOrEqual(t, *r.Score, 0.0)
	assert.LessOrEqual(t, *r.Score, 1.0)
	assert.Equal(t, []string{"f0", "f1"}, r.Selected)
}

func TestClassificationMethodsRun(t *testing.T) {
	d := testkit.ClassificationDataset(60, 5, 2, 8)
	res := newRunner(core.Classification).RunAll(context.Background(), d, Names(), 2)
	for _, r := range res {
		assert.Empty(t, r.Error, r.Method)
	}
}

func TestUnknownMethodIsIsolated(t *testing.T) {
	d := testkit.RegressionDataset(30, 4, 2, 1)
	res := newRunner(core.Regression).RunAll(context.Background(), d, []string{"Bogus", VarianceThreshold}, 2)
	require.Len(t, res, 2)
	assert.Equal(t, "Bogus", res[0].Method)
	assert.NotEmpty(t, res[0].Error)
	assert.Empty(t, res[0].Selected)
	assert.Nil(t, res[0].Score)
	assert.Empty(t, res[1].Error)
	assert.NotNil(t, res[1].Score)
}

func TestPanickingModelIsIsolated(t *testing.T) {
	d := testkit.RegressionDataset(30, 4, 2, 1)
	r := &Runner{
		Factory:   func() core.Model { return testkit.PanicModel{} },
		Validator: ml.NewValidator(core.Regression),
		Folds:     3,
	}
	var seen []string
	r.OnResult = func(_ context.Context, br core.BaselineResult) { seen = append(seen, br.Method) }

	res := r.Run(context.Background(), d, VarianceThreshold, 2)
	assert.Contains(t, res.Error, "panic")
	assert.Empty(t, res.Selected)
	assert.Nil(t, res.Score)
	assert.Equal(t, []string{VarianceThreshold}, seen)
}

func TestFillMissing(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, math.NaN(), math.NaN(), 4, 3, 6})
	out := FillMissing(X)
	assert.Equal(t, 2.0, out.At(1, 0))
	assert.Equal(t, 5.0, out.At(0, 1))
	assert.True(t, math.IsNaN(X.At(0, 1)), "input is not modified")

	clean := mat.NewDense(1, 1, []float64{1})
	assert.Same(t, clean, FillMissing(clean))
}

func TestStatistics(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	assert.Greater(t, FRegression(x, []float64{2, 4, 6, 8, 10}), 1e6)
	assert.True(t, math.IsNaN(FRegression([]float64{1, 1, 1, 1}, []float64{1, 2, 3, 4})))

	f := FClassif([]float64{1, 1.1, 0.9, 5, 5.1, 4.9}, []float64{0, 0, 0, 1, 1, 1})
	assert.Greater(t, f, 100.0)

	y := []float64{0, 0, 1, 1, 0, 0, 1, 1, 0, 1}
	dep := MutualInfo([]float64{0, 0, 9, 9, 0, 0, 9, 9, 0, 9}, y, true)
	ind := MutualInfo([]float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5}, y, true)
	assert.Greater(t, dep, 0.5)
	assert.Equal(t, 0.0, ind)
	assert.Equal(t, 0.0, MutualInfo([]float64{3, 3, 3, 3, 3, 3}, []float64{1.5, 2, 7, 3, 9, 4}, false))
}

func TestMutualInfoRanksConstantColumnLast(t *testing.T) {
	X := mat.NewDense(10, 3, []float64{
		5, 0, 0,
		5, 0, 1,
		5, 9, 9,
		5, 9, 8,
		5, 0, 0,
		5, 0, 1,
		5, 9, 9,
		5, 9, 8,
		5, 0, 2,
		5, 9, 7,
	})
	y := []float64{0, 0, 1, 1, 0, 0, 1, 1, 0, 1}
	cols, err := mutualInfoTopK(context.Background(), Input{X: X, Y: y, Task: core.Classification, K: 3})
	require.NoError(t, err)
	require.Len(t, cols, 3)
	assert.ElementsMatch(t, []int{1, 2}, cols[:2])
	assert.Equal(t, 0, cols[2])
}

func TestSelectionsKeepMethodOrder(t *testing.T) {
	X := mat.NewDense(6, 3, []float64{
		0, 20, 1,
		0, 10, 2,
		1, 30, 3,
		0, 50, 4,
		1, 40, 5,
		0, 60, 6,
	})
	d := &core.Dataset{Columns: []string{"a", "b", "c"}, X: X, Y: []float64{1, 2, 3, 4, 5, 6}, Task: core.Regression}
	r := newRunner(core.Regression)

	// Variance ranks b, then c, then a.
	assert.Equal(t, []string{"b", "c", "a"}, r.Run(context.Background(), d, VarianceThreshold, 3).Selected)
	// c fits y exactly and outranks b, but SelectKBest reports a support mask.
	assert.Equal(t, []string{"b", "c"}, r.Run(context.Background(), d, SelectKBest, 2).Selected)
}

func TestTopKOrdersAndBreaksTies(t *testing.T) {
	assert.Equal(t, []int{2, 0}, topK([]float64{3, 1, 5, math.NaN()}, 2))
	assert.Equal(t, []int{0, 1}, topK([]float64{1, 1, 1}, 2))
	assert.Equal(t, []int{1, 0}, topK([]float64{math.NaN(), 2}, 5))
}

func TestForestImportancesDeterministic(t *testing.T) {
	d := testkit.RegressionDataset(80, 5, 2, 4)
	a, err := ForestImportances(context.Background(), d.X, d.Y, false, 42)
	require.NoError(t, err)
	b, err := ForestImportances(context.Background(), d.X, d.Y, false, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	sum := 0.0
	for _, v := range a {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, a[1], a[4])
}
