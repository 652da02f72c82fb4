package telemetry

import (
	"context"
	"expvar"
	"log/slog"
	"math"
	"net/http"
	"sync"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/pkg/metrics"
)

// Process-wide counters published under /debug/vars.
var (
	varsOnce sync.Once
	vars     *expvar.Map
)

func counters() *expvar.Map {
	varsOnce.Do(func() { vars = expvar.NewMap("featsel") })
	return vars
}

// Telemetry logs search progress and feeds the optional Prometheus metrics.
// It is an observer: it never changes the course of a run.
type Telemetry struct {
	logger  *slog.Logger
	metrics *metrics.PrometheusMetrics

	mu          sync.Mutex
	generations int
	infeasible  int
}

// NewTelemetry creates a new telemetry instance; m may be nil.
func NewTelemetry(logger *slog.Logger, m *metrics.PrometheusMetrics) *Telemetry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Telemetry{logger: logger, metrics: m}
}

// Logger returns the logger progress is written to.
func (t *Telemetry) Logger() *slog.Logger { return t.logger }

// LogRunStart logs the start of a search
func (t *Telemetry) LogRunStart(ctx context.Context, features int, p core.Params, seed uint64, mode string) {
	counters().Add("runs_started", 1)
	t.logger.InfoContext(ctx, "run_started",
		"features", features,
		"pop_size", p.PopSize,
		"generations", p.Generations,
		"seed", seed,
		"mode", mode,
	)
}

// LogRunEnd logs the outcome of a search
func (t *Telemetry) LogRunEnd(ctx context.Context, res core.Result, err error) {
	if err != nil {
		counters().Add("runs_failed", 1)
		t.logger.WarnContext(ctx, "run_failed", "error", err, "duration_ms", res.Duration.Milliseconds())
		return
	}
	counters().Add("runs_finished", 1)
	t.logger.InfoContext(ctx, "run_finished",
		"best_fitness", res.Fitness,
		"features", res.Genome.Count(),
		"generations", res.Generations,
		"stopped_early", res.StoppedEarly,
		"duration_ms", res.Duration.Milliseconds(),
	)
}

// OnGeneration implements core.Observer.
func (t *Telemetry) OnGeneration(ctx context.Context, s core.GenerationStats) {
	t.mu.Lock()
	t.generations++
	t.infeasible += s.Infeasible
	t.mu.Unlock()

	counters().Add("generations", 1)
	if t.metrics != nil {
		t.metrics.RecordGeneration()
	}
	best := s.Best
	if math.IsInf(best, 1) {
		best = math.MaxFloat64
	}
	t.logger.DebugContext(ctx, "generation",
		"generation", s.Generation,
		"best_fitness", best,
		"gen_best", s.GenBest,
		"mean_fitness", s.Mean,
		"infeasible", s.Infeasible,
		"improved", s.Improved,
		"features", s.BestFeatures,
	)
}

// RecordEvaluation counts one fitness evaluation.
func (t *Telemetry) RecordEvaluation(feasible bool) {
	outcome := "ok"
	if !feasible {
		outcome = "infeasible"
	}
	counters().Add("evaluations_"+outcome, 1)
	if t.metrics != nil {
		t.metrics.RecordEvaluation(outcome)
	}
}

// LogDegenerate logs a genome that scored +Inf.
func (t *Telemetry) LogDegenerate(ctx context.Context, g core.Genome, err error) {
	t.logger.DebugContext(ctx, "degenerate_genome", "genome", g.String(), "error", err)
}

// LogBaseline logs one finished baseline method.
func (t *Telemetry) LogBaseline(ctx context.Context, r core.BaselineResult) {
	status := "ok"
	if r.Error != "" {
		status = "error"
		t.logger.WarnContext(ctx, "baseline_failed", "method", r.Method, "error", r.Error)
	} else {
		t.logger.InfoContext(ctx, "baseline_finished", "method", r.Method, "features", len(r.Selected), "duration_ms", r.Duration.Milliseconds())
	}
	if t.metrics != nil {
		t.metrics.RecordBaseline(r.Method, status, r.Duration)
	}
}

// Totals returns the generations and infeasible evaluations observed so far.
func (t *Telemetry) Totals() (generations, infeasible int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generations, t.infeasible
}

// HealthHandler returns a simple health check
func (t *Telemetry) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","service":"featsel"}`))
}

// MetricsHandler returns metrics in expvar format
func (t *Telemetry) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	expvar.Handler().ServeHTTP(w, r)
}
