package worker

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/pkg/tracing"
	"github.com/snow-ghost/featsel/worker/mutate"
	"github.com/snow-ghost/featsel/worker/telemetry"
)

// Solver is the GA orchestrator. Evaluation is delegated to a Scheduler
// chosen by Kind; everything else runs on the caller's goroutine with a
// single run generator.
type Solver struct {
	Params  core.Params
	Fitness core.FitnessEvaluator
	Kind    SchedulerKind

	Select    core.Selector
	Cross     core.Crossover
	Mut       core.Mutator
	Observers []core.Observer

	Telemetry *telemetry.Telemetry
	Tracer    *tracing.Tracer
}

// NewSolver wires the default operators around a fitness evaluator.
func NewSolver(p core.Params, fitness core.FitnessEvaluator, kind SchedulerKind, tel *telemetry.Telemetry) *Solver {
	s := &Solver{
		Params:    p,
		Fitness:   fitness,
		Kind:      kind,
		Select:    mutate.NewTournament(p.TournamentSize),
		Cross:     mutate.OnePoint{},
		Mut:       mutate.BitFlip{},
		Telemetry: tel,
	}
	if tel != nil {
		s.Observers = append(s.Observers, tel)
	}
	return s
}

// Solve searches masks of the given length. The returned history holds the
// all-time best fitness after every evaluated generation.
func (s *Solver) Solve(ctx context.Context, features int) (core.Result, error) {
	p := s.Params
	if err := core.ValidateParams(p); err != nil {
		return core.Result{}, err
	}
	if features < 1 {
		return core.Result{}, &core.ContractError{Field: "data", Reason: "no features to select from"}
	}
	if s.Fitness == nil {
		return core.Result{}, errors.New("solver: no fitness evaluator")
	}

	seed := rand.Uint64()
	if p.Seed != nil {
		seed = *p.Seed
	}
	rng := core.NewRand(seed)
	sched := NewScheduler(s.Kind, s.Fitness, s.Telemetry, seed, p.Workers, p.PopSize)
	tracer := s.Tracer
	if tracer == nil {
		tracer = tracing.Noop()
	}

	start := time.Now()
	if s.Telemetry != nil {
		s.Telemetry.LogRunStart(ctx, features, p, seed, sched.Kind())
	}

	res, err := s.loop(ctx, rng, sched, tracer, features)
	res.Seed = seed
	res.Duration = time.Since(start)
	if s.Telemetry != nil {
		s.Telemetry.LogRunEnd(ctx, res, err)
	}
	if err != nil {
		return core.Result{Seed: seed, Duration: res.Duration}, err
	}
	return res, nil
}

func (s *Solver) loop(ctx context.Context, rng *rand.Rand, sched Scheduler, tracer *tracing.Tracer, features int) (core.Result, error) {
	p := s.Params
	pop := core.GeneratePopulation(rng, p.PopSize, features)

	var (
		best    core.Genome
		bestFit = math.Inf(1)
		stale   int
		history = make([]float64, 0, p.Generations)
		stopped bool
	)

	for gen := 0; gen < p.Generations; gen++ {
		gctx, span := tracer.StartGenerationSpan(ctx, gen, len(pop))
		fitness, err := sched.Evaluate(gctx, pop, gen)
		if err != nil {
			tracing.RecordSpanError(span, err)
			span.End()
			return core.Result{}, err
		}

		stats := summarize(fitness)
		genBest := stats.bestIndex
		improved := fitness[genBest] < bestFit
		if improved {
			best, bestFit = pop[genBest].Clone(), fitness[genBest]
			stale = 0
		} else {
			if best == nil {
				best = pop[genBest].Clone()
			}
			stale++
		}
		history = append(history, bestFit)

		gs := core.GenerationStats{
			Generation:   gen,
			Best:         bestFit,
			GenBest:      fitness[genBest],
			Mean:         stats.mean,
			Infeasible:   stats.infeasible,
			Improved:     improved,
			BestFeatures: best.Count(),
		}
		for _, o := range s.Observers {
			o.OnGeneration(gctx, gs)
		}
		tracing.AddSpanAttributes(span, map[string]interface{}{
			"ga.best_fitness": finite(bestFit),
			"ga.infeasible":   stats.infeasible,
		})
		span.End()

		if stale >= p.Patience {
			stopped = gen+1 < p.Generations
			break
		}
		if gen+1 == p.Generations {
			break
		}
		pop = s.breed(rng, pop, fitness, best)
	}

	return core.Result{
		Genome:       best,
		Fitness:      bestFit,
		History:      history,
		Generations:  len(history),
		StoppedEarly: stopped,
	}, nil
}

// breed builds the next generation: the elite first, then children of
// tournament-selected parents until the population is full.
func (s *Solver) breed(rng *rand.Rand, pop []core.Genome, fitness []float64, elite core.Genome) []core.Genome {
	p := s.Params
	next := make([]core.Genome, 0, p.PopSize+1)
	next = append(next, elite.Clone())
	for len(next) < p.PopSize {
		a := s.Select.Select(rng, pop, fitness)
		b := s.Select.Select(rng, pop, fitness)
		if rng.Float64() < p.CrossoverRate {
			a, b = s.Cross.Cross(rng, a, b)
		}
		s.Mut.Mutate(rng, a, p.MutationRate)
		s.Mut.Mutate(rng, b, p.MutationRate)
		next = append(next, a, b)
	}
	return next[:p.PopSize]
}

type genSummary struct {
	bestIndex  int
	mean       float64
	infeasible int
}

// summarize finds the first lowest fitness and the mean over finite values.
func summarize(fitness []float64) genSummary {
	out := genSummary{}
	sum, n := 0.0, 0
	for i, f := range fitness {
		if f < fitness[out.bestIndex] {
			out.bestIndex = i
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			out.infeasible++
			continue
		}
		sum += f
		n++
	}
	if n > 0 {
		out.mean = sum / float64(n)
	} else {
		out.mean = math.Inf(1)
	}
	return out
}

func finite(f float64) float64 {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return math.MaxFloat64
	}
	return f
}

// ErrNoFeasible is returned when every evaluated mask scored +Inf.
var ErrNoFeasible = errors.New("no feasible feature subset found")
