package worker

import (
	"context"

	"github.com/snow-ghost/featsel/core"
)

// Scheduler evaluates whole populations; it is the strategy the Solver is
// parameterised with.
type Scheduler interface {
	core.PopulationEvaluator

	// Kind returns the scheduler kind (e.g., "parallel", "sequential")
	Kind() string
}

// SchedulerKind represents the type of scheduler
type SchedulerKind string

const (
	SchedulerParallel   SchedulerKind = "parallel"
	SchedulerSequential SchedulerKind = "sequential"
)

// ParseGAVersion maps the public ga_version values onto scheduler kinds.
func ParseGAVersion(v string) (SchedulerKind, error) {
	switch v {
	case "", "optimized", string(SchedulerParallel):
		return SchedulerParallel, nil
	case "original", string(SchedulerSequential):
		return SchedulerSequential, nil
	}
	return "", &core.ContractError{Field: "ga_version", Reason: "must be 'optimized' or 'original'"}
}

// Runner is what the HTTP layer and CLI need from the service.
type Runner interface {
	Run(ctx context.Context, job Job) (*Report, error)
}
