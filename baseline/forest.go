package baseline

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/ml"
)

const (
	forestTrees    = 100
	forestMaxDepth = 8
)

// randomForestTopK ranks features by mean impurity decrease over a forest
// of bootstrapped CART trees.
func randomForestTopK(ctx context.Context, in Input) ([]int, error) {
	imp, err := ForestImportances(ctx, in.X, in.Y, in.Task == core.Classification, in.Seed)
	if err != nil {
		return nil, err
	}
	return topK(imp, in.K), nil
}

// ForestImportances returns normalised impurity-decrease importances. Each
// tree draws from its own generator, so the result does not depend on how
// trees are scheduled.
func ForestImportances(ctx context.Context, X *mat.Dense, y []float64, classify bool, seed uint64) ([]float64, error) {
	n, p := X.Dims()
	f := &forest{X: X, y: y, classify: classify, p: p, maxDepth: forestMaxDepth}
	if classify {
		classes := ml.Classes(y)
		pos := make(map[float64]int, len(classes))
		for i, c := range classes {
			pos[c] = i
		}
		f.label = make([]int, n)
		for i, v := range y {
			f.label[i] = pos[v]
		}
		f.nClasses = len(classes)
		f.maxFeatures = int(math.Sqrt(float64(p)))
	} else {
		f.maxFeatures = p / 3
	}
	if f.maxFeatures < 1 {
		f.maxFeatures = 1
	}

	perTree := make([][]float64, forestTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for t := 0; t < forestTrees; t++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := core.EvalRand(seed, -1, t)
			rows := make([]int, n)
			for i := range rows {
				rows[i] = rng.IntN(n)
			}
			imp := make([]float64, p)
			f.grow(rng, rows, 0, imp)
			normalize(imp)
			perTree[t] = imp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]float64, p)
	for _, imp := range perTree {
		for j, v := range imp {
			out[j] += v / forestTrees
		}
	}
	return out, nil
}

type forest struct {
	X           *mat.Dense
	y           []float64
	label       []int
	nClasses    int
	classify    bool
	p           int
	maxFeatures int
	maxDepth    int
}

func (f *forest) grow(rng *rand.Rand, rows []int, depth int, imp []float64) {
	m := len(rows)
	if m < 2 || depth >= f.maxDepth {
		return
	}
	parent := f.impurity(rows)
	if parent <= 1e-12 {
		return
	}

	bestGain, bestFeat, bestThr := 0.0, -1, 0.0
	order := make([]int, m)
	for _, j := range rng.Perm(f.p)[:f.maxFeatures] {
		copy(order, rows)
		sort.Slice(order, func(a, b int) bool { return f.X.At(order[a], j) < f.X.At(order[b], j) })
		if gain, thr, ok := f.bestSplit(order, j, parent); ok && gain > bestGain {
			bestGain, bestFeat, bestThr = gain, j, thr
		}
	}
	if bestFeat < 0 {
		return
	}
	imp[bestFeat] += bestGain

	left := make([]int, 0, m)
	right := make([]int, 0, m)
	for _, r := range rows {
		if f.X.At(r, bestFeat) <= bestThr {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	f.grow(rng, left, depth+1, imp)
	f.grow(rng, right, depth+1, imp)
}

// bestSplit scans the rows sorted by feature j and returns the largest
// weighted impurity decrease m*I(parent) - nl*I(left) - nr*I(right).
func (f *forest) bestSplit(order []int, j int, parent float64) (gain, thr float64, ok bool) {
	m := len(order)
	if f.classify {
		left := make([]float64, f.nClasses)
		right := make([]float64, f.nClasses)
		for _, r := range order {
			right[f.label[r]]++
		}
		for i := 0; i < m-1; i++ {
			c := f.label[order[i]]
			left[c]++
			right[c]--
			a, b := f.X.At(order[i], j), f.X.At(order[i+1], j)
			if a == b {
				continue
			}
			nl, nr := float64(i+1), float64(m-i-1)
			g := float64(m)*parent - nl*gini(left, nl) - nr*gini(right, nr)
			if g > gain {
				gain, thr, ok = g, (a+b)/2, true
			}
		}
		return gain, thr, ok
	}

	sum, sq := 0.0, 0.0
	for _, r := range order {
		sum += f.y[r]
		sq += f.y[r] * f.y[r]
	}
	ls, lq := 0.0, 0.0
	for i := 0; i < m-1; i++ {
		v := f.y[order[i]]
		ls += v
		lq += v * v
		a, b := f.X.At(order[i], j), f.X.At(order[i+1], j)
		if a == b {
			continue
		}
		nl, nr := float64(i+1), float64(m-i-1)
		g := float64(m)*parent - nl*variance(ls, lq, nl) - nr*variance(sum-ls, sq-lq, nr)
		if g > gain {
			gain, thr, ok = g, (a+b)/2, true
		}
	}
	return gain, thr, ok
}

func (f *forest) impurity(rows []int) float64 {
	n := float64(len(rows))
	if f.classify {
		counts := make([]float64, f.nClasses)
		for _, r := range rows {
			counts[f.label[r]]++
		}
		return gini(counts, n)
	}
	s, q := 0.0, 0.0
	for _, r := range rows {
		s += f.y[r]
		q += f.y[r] * f.y[r]
	}
	return variance(s, q, n)
}

func gini(counts []float64, n float64) float64 {
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}

func variance(sum, sq, n float64) float64 {
	m := sum / n
	v := sq/n - m*m
	if v < 0 {
		return 0
	}
	return v
}

func normalize(v []float64) {
	s := 0.0
	for _, x := range v {
		s += x
	}
	if s == 0 {
		return
	}
	for i := range v {
		v[i] /= s
	}
}
