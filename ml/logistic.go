package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrSingleClass = errors.New("ml: training data contains a single class")

// LogisticRegression is a one-vs-rest logistic classifier on standardised
// features. The L2 problem is solved by Newton steps, the L1 problem by
// proximal gradient descent. C is the inverse regularisation strength.
type LogisticRegression struct {
	C       float64
	Penalty string // "l2" or "l1"
	MaxIter int
	Tol     float64

	classes []float64
	scale   *scaler
	coef    [][]float64
	bias    []float64
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1.0, Penalty: "l2", MaxIter: 1000, Tol: 1e-6}
}

func (m *LogisticRegression) Fit(X mat.Matrix, y []float64) error {
	n, p := X.Dims()
	if n == 0 || p == 0 {
		return fmt.Errorf("ml: empty design matrix %dx%d", n, p)
	}
	if len(y) != n {
		return fmt.Errorf("ml: %d targets for %d rows", len(y), n)
	}
	if m.C <= 0 {
		return fmt.Errorf("ml: C must be positive, got %g", m.C)
	}
	classes := Classes(y)
	if len(classes) < 2 {
		return ErrSingleClass
	}

	m.classes = classes
	m.scale = fitScaler(X)
	Xs := m.scale.transform(X)

	positives := classes[1:]
	if len(classes) > 2 {
		positives = classes
	}
	m.coef = make([][]float64, len(positives))
	m.bias = make([]float64, len(positives))
	for k, cls := range positives {
		t := make([]float64, n)
		for i, v := range y {
			if v == cls {
				t[i] = 1
			}
		}
		var w []float64
		var b float64
		if m.Penalty == "l1" {
			w, b = m.fitProximal(Xs, t)
		} else {
			w, b = m.fitNewton(Xs, t)
		}
		m.coef[k] = w
		m.bias[k] = b
	}
	return nil
}

// fitNewton minimises the mean log-loss plus reg/2*||w||^2 with damped
// Newton steps. The bias carries a vanishing ridge so separable data stays
// solvable.
func (m *LogisticRegression) fitNewton(X *mat.Dense, t []float64) ([]float64, float64) {
	n, p := X.Dims()
	q := p + 1
	reg := 1 / (m.C * float64(n))
	beta := make([]float64, q) // beta[p] is the bias
	grad := make([]float64, q)
	hess := make([]float64, q*q)
	x := make([]float64, q)

	maxIter := m.MaxIter
	if maxIter <= 0 || maxIter > 100 {
		maxIter = 100
	}
	for iter := 0; iter < maxIter; iter++ {
		for i := range grad {
			grad[i] = 0
		}
		for i := range hess {
			hess[i] = 0
		}
		for i := 0; i < n; i++ {
			copy(x, X.RawRowView(i))
			x[p] = 1
			z := 0.0
			for j, v := range x {
				z += beta[j] * v
			}
			pr := sigmoid(z)
			r := pr - t[i]
			s := pr * (1 - pr)
			for a := 0; a < q; a++ {
				grad[a] += r * x[a]
				sa := s * x[a]
				for b := a; b < q; b++ {
					hess[a*q+b] += sa * x[b]
				}
			}
		}
		for a := 0; a < q; a++ {
			grad[a] /= float64(n)
			for b := a; b < q; b++ {
				hess[a*q+b] /= float64(n)
			}
			if a < p {
				grad[a] += reg * beta[a]
				hess[a*q+a] += reg
			} else {
				hess[a*q+a] += 1e-10
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(mat.NewSymDense(q, append([]float64(nil), hess...))); !ok {
			break
		}
		step := mat.NewVecDense(q, nil)
		if err := chol.SolveVecTo(step, mat.NewVecDense(q, grad)); err != nil {
			break
		}
		norm := mat.Norm(step, math.Inf(1))
		damp := 1.0
		if norm > 5 {
			damp = 5 / norm
		}
		for a := 0; a < q; a++ {
			beta[a] -= damp * step.AtVec(a)
		}
		if damp*norm < m.Tol {
			break
		}
	}
	return beta[:p], beta[p]
}

// fitProximal runs ISTA on the L1-penalised mean log-loss.
func (m *LogisticRegression) fitProximal(X *mat.Dense, t []float64) ([]float64, float64) {
	n, p := X.Dims()
	reg := 1 / (m.C * float64(n))
	// Standardised columns bound the Hessian trace by p/4.
	lr := 1 / (0.25 * float64(p+1))

	maxIter := m.MaxIter
	if maxIter <= 0 {
		maxIter = 1000
	}
	w := make([]float64, p)
	grad := make([]float64, p)
	b := 0.0
	for iter := 0; iter < maxIter; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		gb := 0.0
		for i := 0; i < n; i++ {
			row := X.RawRowView(i)
			z := b
			for j, x := range row {
				z += w[j] * x
			}
			r := sigmoid(z) - t[i]
			gb += r
			for j, x := range row {
				grad[j] += r * x
			}
		}
		delta := math.Abs(lr * gb / float64(n))
		b -= lr * gb / float64(n)
		for j := range w {
			next := softThreshold(w[j]-lr*grad[j]/float64(n), lr*reg)
			if d := math.Abs(next - w[j]); d > delta {
				delta = d
			}
			w[j] = next
		}
		if delta < m.Tol {
			break
		}
	}
	return w, b
}

func (m *LogisticRegression) Predict(X mat.Matrix) ([]float64, error) {
	if m.coef == nil {
		return nil, ErrNotFitted
	}
	n, p := X.Dims()
	if p != len(m.coef[0]) {
		return nil, fmt.Errorf("ml: model fitted on %d features, got %d", len(m.coef[0]), p)
	}
	Xs := m.scale.transform(X)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		row := Xs.RawRowView(i)
		if len(m.coef) == 1 {
			if m.decision(0, row) >= 0 {
				out[i] = m.classes[1]
			} else {
				out[i] = m.classes[0]
			}
			continue
		}
		best, bestZ := 0, math.Inf(-1)
		for k := range m.coef {
			if z := m.decision(k, row); z > bestZ {
				best, bestZ = k, z
			}
		}
		out[i] = m.classes[best]
	}
	return out, nil
}

func (m *LogisticRegression) decision(k int, row []float64) float64 {
	z := m.bias[k]
	for j, x := range row {
		z += m.coef[k][j] * x
	}
	return z
}

// Coefficients returns, per feature, the summed absolute weight over all
// one-vs-rest problems (on the standardised scale).
func (m *LogisticRegression) Coefficients() []float64 {
	if m.coef == nil {
		return nil
	}
	out := make([]float64, len(m.coef[0]))
	for _, w := range m.coef {
		for j, v := range w {
			out[j] += math.Abs(v)
		}
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
