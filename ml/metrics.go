package ml

import (
	"math"

	"github.com/snow-ghost/featsel/core"
)

// MSE reports the mean squared error. Lower is better; the wire name keeps
// the negated-score convention of the regression scorer.
type MSE struct{}

func (MSE) Name() string         { return "neg_mean_squared_error" }
func (MSE) HigherIsBetter() bool { return false }

func (MSE) Score(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return math.NaN()
	}
	s := 0.0
	for i, v := range yTrue {
		d := v - yPred[i]
		s += d * d
	}
	return s / float64(len(yTrue))
}

// Accuracy is the fraction of exact label matches.
type Accuracy struct{}

func (Accuracy) Name() string         { return "accuracy" }
func (Accuracy) HigherIsBetter() bool { return true }

func (Accuracy) Score(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return math.NaN()
	}
	hits := 0
	for i, v := range yTrue {
		if v == yPred[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// ScoringFor picks the default scorer of a task.
func ScoringFor(task core.TaskKind) core.Scoring {
	if task == core.Classification {
		return Accuracy{}
	}
	return MSE{}
}

// MetricLabel is the short metric name used in reports and plot files.
func MetricLabel(task core.TaskKind) string {
	if task == core.Classification {
		return "accuracy"
	}
	return "mse"
}
