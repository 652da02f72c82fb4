package ml

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return stat.Mean(x, nil)
}

func columnMeans(X mat.Matrix) []float64 {
	n, p := X.Dims()
	out := make([]float64, p)
	if n == 0 {
		return out
	}
	for j := 0; j < p; j++ {
		s := 0.0
		for i := 0; i < n; i++ {
			s += X.At(i, j)
		}
		out[j] = s / float64(n)
	}
	return out
}

// scaler standardises columns to zero mean and unit variance.
type scaler struct {
	mean []float64
	std  []float64
}

func fitScaler(X mat.Matrix) *scaler {
	n, p := X.Dims()
	s := &scaler{mean: columnMeans(X), std: make([]float64, p)}
	for j := 0; j < p; j++ {
		v := 0.0
		for i := 0; i < n; i++ {
			d := X.At(i, j) - s.mean[j]
			v += d * d
		}
		sd := 0.0
		if n > 0 {
			sd = math.Sqrt(v / float64(n))
		}
		if sd < 1e-12 {
			sd = 1
		}
		s.std[j] = sd
	}
	return s
}

func (s *scaler) transform(X mat.Matrix) *mat.Dense {
	n, p := X.Dims()
	out := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			out.Set(i, j, (X.At(i, j)-s.mean[j])/s.std[j])
		}
	}
	return out
}

// Classes returns the sorted distinct values of y.
func Classes(y []float64) []float64 {
	seen := make(map[float64]struct{}, 8)
	out := make([]float64, 0, 8)
	for _, v := range y {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// Rows copies the given rows of X into a new matrix.
func Rows(X mat.Matrix, idx []int) *mat.Dense {
	_, p := X.Dims()
	out := mat.NewDense(len(idx), p, nil)
	for i, r := range idx {
		for j := 0; j < p; j++ {
			out.Set(i, j, X.At(r, j))
		}
	}
	return out
}

func pick(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, r := range idx {
		out[i] = y[r]
	}
	return out
}

func softThreshold(x, t float64) float64 {
	switch {
	case x > t:
		return x - t
	case x < -t:
		return x + t
	}
	return 0
}
