package core

import (
	"fmt"
	"math"
)

// Bounds are the accepted ranges for request-supplied hyperparameters.
var (
	PopSizeRange       = [2]int{10, 200}
	GenerationsRange   = [2]int{5, 100}
	MutationRateRange  = [2]float64{0.01, 0.1}
	CrossoverRateRange = [2]float64{0.5, 1.0}
	CVRange            = [2]int{2, 10}
)

// ValidateRequest checks the public hyperparameter ranges.
func ValidateRequest(p Params) error {
	if p.PopSize < PopSizeRange[0] || p.PopSize > PopSizeRange[1] {
		return &ContractError{Field: "pop_size", Reason: fmt.Sprintf("must be between %d and %d", PopSizeRange[0], PopSizeRange[1])}
	}
	if p.Generations < GenerationsRange[0] || p.Generations > GenerationsRange[1] {
		return &ContractError{Field: "generations", Reason: fmt.Sprintf("must be between %d and %d", GenerationsRange[0], GenerationsRange[1])}
	}
	if !inRange(p.MutationRate, MutationRateRange) {
		return &ContractError{Field: "mutation_rate", Reason: fmt.Sprintf("must be between %g and %g", MutationRateRange[0], MutationRateRange[1])}
	}
	if !inRange(p.CrossoverRate, CrossoverRateRange) {
		return &ContractError{Field: "crossover_rate", Reason: fmt.Sprintf("must be between %g and %g", CrossoverRateRange[0], CrossoverRateRange[1])}
	}
	if p.CV < CVRange[0] || p.CV > CVRange[1] {
		return &ContractError{Field: "cv", Reason: fmt.Sprintf("must be between %d and %d", CVRange[0], CVRange[1])}
	}
	return ValidateParams(p)
}

// ValidateParams checks the internal consistency the orchestrator relies on.
// It is looser than ValidateRequest so library callers can run tiny searches.
func ValidateParams(p Params) error {
	switch {
	case p.PopSize < 2:
		return &ContractError{Field: "pop_size", Reason: "must be at least 2"}
	case p.Generations < 1:
		return &ContractError{Field: "generations", Reason: "must be at least 1"}
	case !inRange(p.MutationRate, [2]float64{0, 1}):
		return &ContractError{Field: "mutation_rate", Reason: "must be within [0, 1]"}
	case !inRange(p.CrossoverRate, [2]float64{0, 1}):
		return &ContractError{Field: "crossover_rate", Reason: "must be within [0, 1]"}
	case p.CV < 2:
		return &ContractError{Field: "cv", Reason: "must be at least 2"}
	case p.Patience < 1:
		return &ContractError{Field: "patience", Reason: "must be at least 1"}
	case p.TournamentSize < 1 || p.TournamentSize > p.PopSize:
		return &ContractError{Field: "tournament_size", Reason: "must be between 1 and pop_size"}
	case math.IsNaN(p.LambdaPenalty) || math.IsInf(p.LambdaPenalty, 0) || p.LambdaPenalty < 0:
		return &ContractError{Field: "lambda_penalty", Reason: "must be a finite non-negative number"}
	case p.Workers < 0:
		return &ContractError{Field: "workers", Reason: "must not be negative"}
	}
	return nil
}

// inRange reports whether v lies in [r[0], r[1]]. NaN never does.
func inRange(v float64, r [2]float64) bool {
	return v >= r[0] && v <= r[1]
}

// ValidateDataset enforces the shape requirements for a run with the given
// fold count.
func ValidateDataset(d *Dataset, folds int) error {
	if d == nil || d.X == nil {
		return &ContractError{Field: "data", Reason: "dataset is empty"}
	}
	rows, cols := d.X.Dims()
	if len(d.Y) != rows {
		return &ContractError{Field: "data", Reason: fmt.Sprintf("target has %d rows, features have %d", len(d.Y), rows)}
	}
	if len(d.Columns) != cols {
		return &ContractError{Field: "data", Reason: fmt.Sprintf("%d column names for %d features", len(d.Columns), cols)}
	}
	if rows < folds {
		return &ContractError{Field: "data", Reason: fmt.Sprintf("dataset has %d rows, need at least %d for %d-fold CV", rows, folds, folds)}
	}
	if cols < 2 {
		return &ContractError{Field: "data", Reason: fmt.Sprintf("dataset has only %d feature(s), need at least 2", cols)}
	}
	return nil
}
