package core

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

type TaskKind string

const (
	Regression     TaskKind = "regression"
	Classification TaskKind = "classification"
)

// ParseTaskKind accepts the wire names used by the API.
func ParseTaskKind(s string) (TaskKind, error) {
	switch TaskKind(s) {
	case Regression, Classification:
		return TaskKind(s), nil
	}
	return "", &ContractError{Field: "problem_type", Reason: "must be 'regression' or 'classification'"}
}

// Dataset is the read-only input of a run. Rows of X are samples.
type Dataset struct {
	Name    string
	Columns []string
	X       *mat.Dense
	Y       []float64
	Task    TaskKind
	Classes []string // label names for classification, index = encoded value
}

func (d *Dataset) Rows() int {
	r, _ := d.X.Dims()
	return r
}

func (d *Dataset) Features() int {
	_, c := d.X.Dims()
	return c
}

// ColumnNames maps the set bits of g back to feature names.
func (d *Dataset) ColumnNames(g Genome) []string {
	names := make([]string, 0, g.Count())
	for _, i := range g.Selected() {
		names = append(names, d.Columns[i])
	}
	return names
}

// Params holds GA hyperparameters.
type Params struct {
	PopSize        int     `json:"pop_size" yaml:"pop_size"`
	Generations    int     `json:"generations" yaml:"generations"`
	CrossoverRate  float64 `json:"crossover_rate" yaml:"crossover_rate"`
	MutationRate   float64 `json:"mutation_rate" yaml:"mutation_rate"`
	CV             int     `json:"cv" yaml:"cv"`
	Patience       int     `json:"patience" yaml:"patience"`
	TournamentSize int     `json:"tournament_size" yaml:"tournament_size"`
	MaxSamples     int     `json:"max_samples" yaml:"max_samples"`
	LambdaPenalty  float64 `json:"lambda_penalty" yaml:"lambda_penalty"`
	Seed           *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Parallel       bool    `json:"parallel" yaml:"parallel"`
	Workers        int     `json:"workers" yaml:"workers"` // 0 = all cores
}

// DefaultParams mirrors the defaults of the reference GA.
func DefaultParams() Params {
	return Params{
		PopSize:        50,
		Generations:    40,
		CrossoverRate:  0.8,
		MutationRate:   0.02,
		CV:             5,
		Patience:       5,
		TournamentSize: 3,
		MaxSamples:     5000,
		LambdaPenalty:  0.05,
		Parallel:       true,
	}
}

// Result is the orchestrator's sole output.
type Result struct {
	Genome       Genome        `json:"genome"`
	Fitness      float64       `json:"fitness"`
	History      []float64     `json:"history"`
	Generations  int           `json:"generations"`
	StoppedEarly bool          `json:"stopped_early"`
	Seed         uint64        `json:"seed"`
	Duration     time.Duration `json:"duration"`
}

// BaselineResult is the outcome of one comparison method. Score is nil when
// the method failed or selected nothing.
type BaselineResult struct {
	Method   string        `json:"method"`
	Selected []string      `json:"selected"`
	Score    *float64      `json:"score"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// GenerationStats is handed to observers after each evaluated generation.
type GenerationStats struct {
	Generation   int
	Best         float64 // all-time best
	GenBest      float64
	Mean         float64
	Infeasible   int
	Improved     bool
	BestFeatures int
}
