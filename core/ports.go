package core

import (
	"context"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Model is a supervised estimator. Instances are never shared between
// fitness evaluations.
type Model interface {
	Fit(X mat.Matrix, y []float64) error
	Predict(X mat.Matrix) ([]float64, error)
}

// ModelFactory produces a fresh, untrained model.
type ModelFactory func() Model

// Scoring turns predictions into a fold score.
type Scoring interface {
	Name() string
	HigherIsBetter() bool
	Score(yTrue, yPred []float64) float64
}

// CrossValidator runs k-fold cross-validation and returns the per-fold scores.
type CrossValidator interface {
	CrossValScore(ctx context.Context, factory ModelFactory, X mat.Matrix, y []float64, folds int, scoring Scoring) ([]float64, error)
}

// FitnessEvaluator scores a single genome. Lower is better and failures
// are reported as +Inf, never as an error.
type FitnessEvaluator interface {
	Fitness(ctx context.Context, g Genome, rng *rand.Rand) float64
}

// PopulationEvaluator computes one fitness per genome, order-aligned with pop.
// A returned error is a run-level failure.
type PopulationEvaluator interface {
	Evaluate(ctx context.Context, pop []Genome, generation int) ([]float64, error)
}

// Observer receives progress notifications from the orchestrator.
type Observer interface {
	OnGeneration(ctx context.Context, stats GenerationStats)
}

// Selector picks one parent (as a copy) from an evaluated population.
type Selector interface {
	Select(rng *rand.Rand, pop []Genome, fitness []float64) Genome
}

type Crossover interface {
	Cross(rng *rand.Rand, a, b Genome) (Genome, Genome)
}

type Mutator interface {
	Mutate(rng *rand.Rand, g Genome, rate float64)
}

// HostPolicy decides which remote hosts datasets may be downloaded from.
type HostPolicy interface {
	AllowHost(host string) bool
}
