package parallel

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/worker/common"
	"github.com/snow-ghost/featsel/worker/telemetry"
)

// Scheduler evaluates a population on a bounded pool of goroutines.
type Scheduler struct {
	*common.BaseScheduler
	workers int
}

// NewScheduler creates a parallel scheduler; workers <= 0 means one per CPU.
func NewScheduler(fitness core.FitnessEvaluator, tel *telemetry.Telemetry, seed uint64, workers int) *Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scheduler{
		BaseScheduler: common.NewBaseScheduler(fitness, tel, seed, "parallel"),
		workers:       workers,
	}
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int { return s.workers }

// Evaluate implements core.PopulationEvaluator. Results are written by index,
// so the output order matches pop regardless of completion order.
func (s *Scheduler) Evaluate(ctx context.Context, pop []core.Genome, generation int) ([]float64, error) {
	out := make([]float64, len(pop))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range pop {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = s.EvaluateOne(gctx, pop[i], generation, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("generation %d: %w", generation, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generation %d: %w", generation, err)
	}
	return out, nil
}
