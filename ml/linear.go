package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var ErrNotFitted = errors.New("ml: model is not fitted")

// LinearRegression is ordinary least squares with an intercept. Alpha > 0
// turns it into ridge regression; the intercept is never penalised.
type LinearRegression struct {
	Alpha float64

	coef      []float64
	intercept float64
}

func NewLinearRegression() *LinearRegression { return &LinearRegression{} }

func NewRidge(alpha float64) *LinearRegression { return &LinearRegression{Alpha: alpha} }

func (m *LinearRegression) Fit(X mat.Matrix, y []float64) error {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return fmt.Errorf("ml: empty design matrix %dx%d", n, p)
	}
	if len(y) != n {
		return fmt.Errorf("ml: %d targets for %d rows", len(y), n)
	}

	xm := columnMeans(X)
	ym := mean(y)

	// Gram matrix and X'y of the centred problem.
	gram := mat.NewSymDense(p, nil)
	xty := make([]float64, p)
	for i := 0; i < n; i++ {
		yc := y[i] - ym
		for a := 0; a < p; a++ {
			xa := X.At(i, a) - xm[a]
			xty[a] += xa * yc
			for b := a; b < p; b++ {
				gram.SetSym(a, b, gram.At(a, b)+xa*(X.At(i, b)-xm[b]))
			}
		}
	}

	trace := 0.0
	for a := 0; a < p; a++ {
		trace += gram.At(a, a)
	}
	// A vanishing jitter keeps OLS solvable on collinear or constant columns.
	ridge := m.Alpha + 1e-10*(trace/float64(p)+1)
	for a := 0; a < p; a++ {
		gram.SetSym(a, a, gram.At(a, a)+ridge)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return errors.New("ml: normal equations are not positive definite")
	}
	w := mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(w, mat.NewVecDense(p, xty)); err != nil {
		return fmt.Errorf("ml: solve normal equations: %w", err)
	}

	m.coef = make([]float64, p)
	m.intercept = ym
	for a := 0; a < p; a++ {
		m.coef[a] = w.AtVec(a)
		m.intercept -= m.coef[a] * xm[a]
	}
	return nil
}

func (m *LinearRegression) Predict(X mat.Matrix) ([]float64, error) {
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

// Coefficients returns the fitted weights, one per feature.
func (m *LinearRegression) Coefficients() []float64 {
	return append([]float64(nil), m.coef...)
}
