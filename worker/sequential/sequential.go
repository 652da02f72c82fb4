package sequential

import (
	"context"
	"fmt"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/worker/common"
	"github.com/snow-ghost/featsel/worker/telemetry"
)

// Scheduler evaluates a population one genome at a time on the caller's
// goroutine.
type Scheduler struct {
	*common.BaseScheduler
}

// NewScheduler creates a sequential scheduler
func NewScheduler(fitness core.FitnessEvaluator, tel *telemetry.Telemetry, seed uint64) *Scheduler {
	return &Scheduler{
		BaseScheduler: common.NewBaseScheduler(fitness, tel, seed, "sequential"),
	}
}

// Evaluate implements core.PopulationEvaluator.
func (s *Scheduler) Evaluate(ctx context.Context, pop []core.Genome, generation int) ([]float64, error) {
	out := make([]float64, len(pop))
	for i, g := range pop {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generation %d: %w", generation, err)
		}
		out[i] = s.EvaluateOne(ctx, g, generation, i)
	}
	return out, nil
}
