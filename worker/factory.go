package worker

import (
	"runtime"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/worker/parallel"
	"github.com/snow-ghost/featsel/worker/sequential"
	"github.com/snow-ghost/featsel/worker/telemetry"
)

// NewScheduler builds the evaluation strategy for one run. A parallel pool is
// not worth its overhead for populations smaller than two tasks per worker,
// so those fall back to sequential evaluation.
func NewScheduler(kind SchedulerKind, fitness core.FitnessEvaluator, tel *telemetry.Telemetry, seed uint64, workers, popSize int) Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if kind == SchedulerParallel && (workers == 1 || popSize < 2*workers) {
		kind = SchedulerSequential
	}

	switch kind {
	case SchedulerParallel:
		return parallel.NewScheduler(fitness, tel, seed, workers)
	default:
		return sequential.NewScheduler(fitness, tel, seed)
	}
}
