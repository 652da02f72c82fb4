package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Lasso minimises (1/2n)||y - Xw - b||^2 + Alpha*||w||_1 by cyclic
// coordinate descent on centred data.
type Lasso struct {
	Alpha   float64
	MaxIter int
	Tol     float64

	coef      []float64
	intercept float64
}

func NewLasso(alpha float64) *Lasso {
	return &Lasso{Alpha: alpha, MaxIter: 5000, Tol: 1e-4}
}

func (m *Lasso) Fit(X mat.Matrix, y []float64) error {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return fmt.Errorf("ml: empty design matrix %dx%d", n, p)
	}
	if len(y) != n {
		return fmt.Errorf("ml: %d targets for %d rows", len(y), n)
	}
	xm := columnMeans(X)
	ym := mean(y)

	Xc := mat.NewDense(n, p, nil)
	resid := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			Xc.Set(i, j, X.At(i, j)-xm[j])
		}
		resid[i] = y[i] - ym
	}
	norms := make([]float64, p)
	for j := 0; j < p; j++ {
		s := 0.0
		for i := 0; i < n; i++ {
			v := Xc.At(i, j)
			s += v * v
		}
		norms[j] = s / float64(n)
	}

	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 5000
	}
	w := make([]float64, p)
	for iter := 0; iter < maxIter; iter++ {
		maxDelta, maxW := 0.0, 0.0
		for j := 0; j < p; j++ {
			if norms[j] == 0 {
				continue
			}
			rho := 0.0
			for i := 0; i < n; i++ {
				rho += Xc.At(i, j) * (resid[i] + Xc.At(i, j)*w[j])
			}
			rho /= float64(n)
			next := softThreshold(rho, m.Alpha) / norms[j]
			if d := next - w[j]; d != 0 {
				for i := 0; i < n; i++ {
					resid[i] -= d * Xc.At(i, j)
				}
				maxDelta = math.Max(maxDelta, math.Abs(d))
			}
			w[j] = next
			maxW = math.Max(maxW, math.Abs(next))
		}
		if maxW == 0 || maxDelta/maxW < m.Tol {
			break
		}
	}

	m.coef = w
	m.intercept = ym
	for j := 0; j < p; j++ {
		m.intercept -= w[j] * xm[j]
	}
	return nil
}

func (m *Lasso) Predict(X mat.Matrix) ([]float64, error) {
	if m.coef == nil {
		return nil, ErrNotFitted
	}
	n, p := X.Dims()
	if p != len(m.coef) {
		return nil, fmt.Errorf("ml: model fitted on %d features, got %d", len(m.coef), p)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := m.intercept
		for j := 0; j < p; j++ {
			v += m.coef[j] * X.At(i, j)
		}
		out[i] = v
	}
	return out, nil
}

func (m *Lasso) Coefficients() []float64 {
	return append([]float64(nil), m.coef...)
}

// AlphaGrid returns count log-spaced penalties from the smallest alpha that
// zeroes every coefficient down to eps times that value.
func AlphaGrid(X mat.Matrix, y []float64, count int, eps float64) []float64 {
	n, p := X.Dims()
	xm := columnMeans(X)
	ym := mean(y)
	alphaMax := 0.0
	for j := 0; j < p; j++ {
		s := 0.0
		for i := 0; i < n; i++ {
			s += (X.At(i, j) - xm[j]) * (y[i] - ym)
		}
		alphaMax = math.Max(alphaMax, math.Abs(s)/float64(n))
	}
	if alphaMax == 0 {
		alphaMax = 1
	}
	if count < 2 {
		return []float64{alphaMax}
	}
	out := make([]float64, count)
	lo, hi := math.Log10(alphaMax*eps), math.Log10(alphaMax)
	for i := range out {
		out[i] = math.Pow(10, hi-(hi-lo)*float64(i)/float64(count-1))
	}
	return out
}
