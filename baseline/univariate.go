package baseline

import (
	"context"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/ml"
)

func selectKBest(_ context.Context, in Input) ([]int, error) {
	_, p := in.X.Dims()
	scores := make([]float64, p)
	for j := range scores {
		x := column(in.X, j)
		if in.Task == core.Classification {
			scores[j] = FClassif(x, in.Y)
		} else {
			scores[j] = FRegression(x, in.Y)
		}
	}
	// Reported in column order, the others in rank order.
	cols := topK(scores, in.K)
	slices.Sort(cols)
	return cols, nil
}

// FRegression is the univariate F-statistic of a linear fit of y on x.
// Constant inputs yield NaN.
func FRegression(x, y []float64) float64 {
	n := float64(len(x))
	if n < 3 {
		return math.NaN()
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return math.NaN()
	}
	r2 := r * r
	if r2 >= 1 {
		return math.Inf(1)
	}
	return r2 / (1 - r2) * (n - 2)
}

// FClassif is the one-way ANOVA F-statistic of x grouped by class label.
func FClassif(x, y []float64) float64 {
	classes := ml.Classes(y)
	k := len(classes)
	n := len(x)
	if k < 2 || n <= k {
		return math.NaN()
	}
	grand := stat.Mean(x, nil)
	sums := make(map[float64]float64, k)
	counts := make(map[float64]int, k)
	for i, v := range x {
		sums[y[i]] += v
		counts[y[i]]++
	}
	ssb := 0.0
	for _, c := range classes {
		m := sums[c] / float64(counts[c])
		ssb += float64(counts[c]) * (m - grand) * (m - grand)
	}
	ssw := 0.0
	for i, v := range x {
		m := sums[y[i]] / float64(counts[y[i]])
		ssw += (v - m) * (v - m)
	}
	if ssw == 0 {
		if ssb == 0 {
			return math.NaN()
		}
		return math.Inf(1)
	}
	return (ssb / float64(k-1)) / (ssw / float64(n-k))
}

func varianceThreshold(_ context.Context, in Input) ([]int, error) {
	_, p := in.X.Dims()
	scores := make([]float64, p)
	for j := range scores {
		scores[j] = stat.Variance(column(in.X, j), nil)
	}
	return topK(scores, in.K), nil
}

func mutualInfoTopK(_ context.Context, in Input) ([]int, error) {
	_, p := in.X.Dims()
	scores := make([]float64, p)
	for j := range scores {
		scores[j] = MutualInfo(column(in.X, j), in.Y, in.Task == core.Classification)
	}
	return topK(scores, in.K), nil
}

// MutualInfo estimates I(x; y) in nats from an equal-width histogram with
// sqrt(n) bins. A discrete y is used as-is, a continuous one is binned too.
func MutualInfo(x, y []float64, discreteY bool) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	bins := int(math.Ceil(math.Sqrt(float64(n))))
	if bins < 2 {
		bins = 2
	}
	bx := binIndex(x, bins)
	var by []int
	ny := bins
	if discreteY {
		classes := ml.Classes(y)
		pos := make(map[float64]int, len(classes))
		for i, c := range classes {
			pos[c] = i
		}
		by = make([]int, n)
		for i, v := range y {
			by[i] = pos[v]
		}
		ny = len(classes)
	} else {
		by = binIndex(y, bins)
	}

	joint := make([]float64, bins*ny)
	px := make([]float64, bins)
	py := make([]float64, ny)
	w := 1 / float64(n)
	for i := 0; i < n; i++ {
		joint[bx[i]*ny+by[i]] += w
		px[bx[i]] += w
		py[by[i]] += w
	}
	mi := 0.0
	for a := 0; a < bins; a++ {
		for b := 0; b < ny; b++ {
			if pxy := joint[a*ny+b]; pxy > 0 {
				mi += pxy * math.Log(pxy/(px[a]*py[b]))
			}
		}
	}
	if mi < miFloor {
		return 0
	}
	return mi
}

// miFloor absorbs rounding left over when x and y are independent.
const miFloor = 1e-12

func binIndex(v []float64, bins int) []int {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	out := make([]int, len(v))
	if hi <= lo {
		return out
	}
	width := (hi - lo) / float64(bins)
	for i, x := range v {
		b := int((x - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		out[i] = b
	}
	return out
}
