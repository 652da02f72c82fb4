// Package testkit provides deterministic datasets and stub collaborators for
// tests that must not depend on the model ecosystem.
package testkit

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/snow-ghost/featsel/core"
)

// RegressionDataset builds rows x features samples where y depends linearly
// on the first informative columns and the rest is noise.
func RegressionDataset(rows, features, informative int, seed uint64) *core.Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	X := mat.NewDense(rows, features, nil)
	y := make([]float64, rows)
	for i := 0; i < rows; i++ {
		for j := 0; j < features; j++ {
			X.Set(i, j, rng.NormFloat64())
		}
		v := 0.0
		for j := 0; j < informative && j < features; j++ {
			v += float64(j+1) * X.At(i, j)
		}
		y[i] = v + 0.1*rng.NormFloat64()
	}
	return &core.Dataset{
		Name:    fmt.Sprintf("synthetic_reg_%dx%d", rows, features),
		Columns: columnNames(features),
		X:       X,
		Y:       y,
		Task:    core.Regression,
	}
}

// ClassificationDataset builds a two-class problem separated along the first
// informative columns.
func ClassificationDataset(rows, features, informative int, seed uint64) *core.Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0xc1a55))
	X := mat.NewDense(rows, features, nil)
	y := make([]float64, rows)
	for i := 0; i < rows; i++ {
		cls := i % 2
		y[i] = float64(cls)
		for j := 0; j < features; j++ {
			v := rng.NormFloat64()
			if j < informative {
				v += 3 * float64(cls)
			}
			X.Set(i, j, v)
		}
	}
	return &core.Dataset{
		Name:    fmt.Sprintf("synthetic_clf_%dx%d", rows, features),
		Columns: columnNames(features),
		X:       X,
		Y:       y,
		Task:    core.Classification,
		Classes: []string{"a", "b"},
	}
}

func columnNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("f%d", i)
	}
	return out
}

// SmallParams returns GA parameters sized for unit tests.
func SmallParams(seed uint64) core.Params {
	p := core.DefaultParams()
	p.PopSize = 10
	p.Generations = 5
	p.CV = 3
	p.Patience = 5
	p.Seed = &seed
	return p
}
