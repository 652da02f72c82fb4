package common

import (
	"context"
	"math"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/worker/telemetry"
)

// BaseScheduler provides the evaluation step shared by every scheduler kind.
type BaseScheduler struct {
	fitness   core.FitnessEvaluator
	telemetry *telemetry.Telemetry
	seed      uint64
	kind      string
}

// NewBaseScheduler creates a new base scheduler; tel may be nil.
func NewBaseScheduler(fitness core.FitnessEvaluator, tel *telemetry.Telemetry, seed uint64, kind string) *BaseScheduler {
	return &BaseScheduler{
		fitness:   fitness,
		telemetry: tel,
		seed:      seed,
		kind:      kind,
	}
}

// Kind returns the scheduler kind
func (b *BaseScheduler) Kind() string {
	return b.kind
}

// EvaluateOne scores the genome at position index of a generation with its
// own derived generator. It never fails: anything odd becomes +Inf.
func (b *BaseScheduler) EvaluateOne(ctx context.Context, g core.Genome, generation, index int) float64 {
	f := b.fitness.Fitness(ctx, g, core.EvalRand(b.seed, generation, index))
	if math.IsNaN(f) {
		f = math.Inf(1)
	}
	if b.telemetry != nil {
		b.telemetry.RecordEvaluation(!math.IsInf(f, 1))
	}
	return f
}
