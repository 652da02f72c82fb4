package ml

import (
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/snow-ghost/featsel/core"
)

// KFold splits n rows into k contiguous test folds without shuffling. The
// first n%k folds get one extra row.
func KFold(n, k int) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("ml: need at least 2 folds, got %d", k)
	}
	if n < k {
		return nil, fmt.Errorf("ml: cannot split %d rows into %d folds", n, k)
	}
	folds := make([][]int, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		idx := make([]int, size)
		for i := range idx {
			idx[i] = start + i
		}
		folds[f] = idx
		start += size
	}
	return folds, nil
}

// StratifiedKFold deals the rows of each class, in row order, round-robin
// across k folds so every fold keeps roughly the class proportions.
func StratifiedKFold(y []float64, k int) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("ml: need at least 2 folds, got %d", k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("ml: cannot split %d rows into %d folds", len(y), k)
	}
	folds := make([][]int, k)
	next := 0
	for _, cls := range Classes(y) {
		for i, v := range y {
			if v != cls {
				continue
			}
			folds[next] = append(folds[next], i)
			next = (next + 1) % k
		}
	}
	for f := range folds {
		slices.Sort(folds[f])
	}
	return folds, nil
}

// Validator implements core.CrossValidator.
type Validator struct {
	Stratified bool
}

func NewValidator(task core.TaskKind) *Validator {
	return &Validator{Stratified: task == core.Classification}
}

func (v *Validator) CrossValScore(ctx context.Context, factory core.ModelFactory, X mat.Matrix, y []float64, folds int, scoring core.Scoring) ([]float64, error) {
	n, _ := X.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("ml: %d targets for %d rows", len(y), n)
	}
	var (
		tests [][]int
		err   error
	)
	if v.Stratified {
		tests, err = StratifiedKFold(y, folds)
	} else {
		tests, err = KFold(n, folds)
	}
	if err != nil {
		return nil, err
	}

	scores := make([]float64, 0, len(tests))
	inTest := make([]bool, n)
	for f, test := range tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range inTest {
			inTest[i] = false
		}
		for _, i := range test {
			inTest[i] = true
		}
		train := make([]int, 0, n-len(test))
		for i := 0; i < n; i++ {
			if !inTest[i] {
				train = append(train, i)
			}
		}
		if len(train) == 0 || len(test) == 0 {
			return nil, fmt.Errorf("ml: fold %d has %d train and %d test rows", f, len(train), len(test))
		}

		model := factory()
		if err := model.Fit(Rows(X, train), pick(y, train)); err != nil {
			return nil, fmt.Errorf("fold %d fit: %w", f, err)
		}
		pred, err := model.Predict(Rows(X, test))
		if err != nil {
			return nil, fmt.Errorf("fold %d predict: %w", f, err)
		}
		s := scoring.Score(pick(y, test), pred)
		if math.IsNaN(s) {
			return nil, fmt.Errorf("fold %d: score is NaN", f)
		}
		scores = append(scores, s)
	}
	return scores, nil
}
