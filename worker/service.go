package worker

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/featsel/baseline"
	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/ml"
	"github.com/snow-ghost/featsel/pkg/cache"
	"github.com/snow-ghost/featsel/pkg/logging"
	"github.com/snow-ghost/featsel/pkg/observability"
	"github.com/snow-ghost/featsel/pkg/plots"
	"github.com/snow-ghost/featsel/pkg/store"
	"github.com/snow-ghost/featsel/pkg/tracing"
	"github.com/snow-ghost/featsel/policy/local"
)

// Run modes.
const (
	ModeAll      = "all"
	ModeSelected = "selected"
)

// Job is one feature-selection request.
type Job struct {
	RunID     string
	Dataset   *core.Dataset
	Params    core.Params
	ModelType string
	GAVersion string
	Mode      string
	Methods   []string
	RequestID string
}

// MethodResult is one row of the results table. Score is MSE for
// regression and accuracy for classification; nil when the method failed.
type MethodResult struct {
	Selected []string `json:"selected"`
	Score    *float64 `json:"mse"`
	Time     float64  `json:"time"`
	Error    string   `json:"error,omitempty"`
}

// Metadata describes the run inputs.
type Metadata struct {
	NSamples    int     `json:"n_samples"`
	NFeatures   int     `json:"n_features"`
	CVFolds     int     `json:"cv_folds"`
	PopSize     int     `json:"pop_size"`
	Generations int     `json:"generations"`
	TotalTime   float64 `json:"total_time"`
}

// GASummary carries the search details beyond the results table.
type GASummary struct {
	Fitness      float64   `json:"fitness"`
	History      []float64 `json:"history"`
	Generations  int       `json:"generations"`
	StoppedEarly bool      `json:"stopped_early"`
	Seed         uint64    `json:"seed"`
	Version      string    `json:"ga_version"`
}

// Report is the response of a completed run.
type Report struct {
	RunID       string                  `json:"run_id"`
	Dataset     string                  `json:"dataset"`
	ModelType   string                  `json:"model_type"`
	ProblemType string                  `json:"problem_type"`
	Metric      string                  `json:"metric"`
	Results     map[string]MethodResult `json:"results"`
	Methods     []string                `json:"methods"`
	Plots       []string                `json:"plots"`
	Metadata    Metadata                `json:"metadata"`
	GA          GASummary               `json:"ga"`
	Cached      bool                    `json:"cached"`
}

// GAMethod is the results key of the GA row.
const GAMethod = "GA"

// Options configures a Service. Nil fields fall back to in-process
// defaults; a nil Cache disables result caching.
type Options struct {
	Guard     *local.Guard
	Obs       *observability.Manager
	Store     store.RunStore
	Cache     *cache.CacheManager[*Report]
	Renderer  *plots.Renderer
	OutputDir string
	Workers   int
}

// Service runs jobs end to end: GA, baselines, plots and persistence.
type Service struct {
	guard     *local.Guard
	obs       *observability.Manager
	store     store.RunStore
	cache     *cache.CacheManager[*Report]
	renderer  *plots.Renderer
	outputDir string
	workers   int
}

var _ Runner = (*Service)(nil)

func NewService(opts Options) *Service {
	s := &Service{
		guard:     opts.Guard,
		obs:       opts.Obs,
		store:     opts.Store,
		cache:     opts.Cache,
		renderer:  opts.Renderer,
		outputDir: opts.OutputDir,
		workers:   opts.Workers,
	}
	if s.guard == nil {
		s.guard = local.NewGuard(0, nil)
	}
	if s.obs == nil {
		s.obs = observability.New(nil, nil, nil)
	}
	if s.store == nil {
		s.store = store.NewMemoryStore()
	}
	if s.renderer == nil {
		s.renderer = plots.NewRenderer()
	}
	return s
}

// ResolveMethods returns the baselines a job asks for: every method for
// mode "all", otherwise the known requested ones in request order.
func ResolveMethods(mode string, methods []string) ([]string, error) {
	switch mode {
	case "", ModeAll:
		return baseline.Names(), nil
	case ModeSelected:
	default:
		return nil, &core.ContractError{Field: "mode", Reason: "must be 'all' or 'selected'"}
	}
	out := make([]string, 0, len(methods))
	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		if baseline.Known(m) && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// Run executes a job. With a fixed seed, identical jobs are answered from
// the result cache and concurrent duplicates share one computation.
func (s *Service) Run(ctx context.Context, job Job) (*Report, error) {
	d := job.Dataset
	if d == nil {
		return nil, &core.ContractError{Field: "data", Reason: "no dataset"}
	}
	if err := core.ValidateParams(job.Params); err != nil {
		return nil, err
	}
	if err := core.ValidateDataset(d, job.Params.CV); err != nil {
		return nil, err
	}
	kind, err := ParseGAVersion(job.GAVersion)
	if err != nil {
		return nil, err
	}
	methods, err := ResolveMethods(job.Mode, job.Methods)
	if err != nil {
		return nil, err
	}
	factory, err := ml.NewFactory(job.ModelType, d.Task)
	if err != nil {
		return nil, err
	}
	if job.Params.Workers == 0 {
		job.Params.Workers = s.workers
	}

	compute := func(ctx context.Context) (*Report, error) {
		return s.run(ctx, job, kind, methods, factory)
	}
	if s.cache == nil || job.Params.Seed == nil {
		return compute(ctx)
	}

	material := cacheMaterial{
		Dataset:   datasetDigest(d),
		Task:      string(d.Task),
		Params:    job.Params,
		ModelType: job.ModelType,
		Kind:      string(kind),
		Methods:   methods,
	}
	rep, hit, err := s.cache.Do(ctx, material, compute)
	s.obs.RecordCacheMetrics(ctx, hit, d.Name)
	if err != nil {
		return nil, err
	}
	if hit {
		cp := *rep
		cp.Cached = true
		return &cp, nil
	}
	return rep, nil
}

type cacheMaterial struct {
	Dataset   string      `json:"dataset"`
	Task      string      `json:"task"`
	Params    core.Params `json:"params"`
	ModelType string      `json:"model_type"`
	Kind      string      `json:"kind"`
	Methods   []string    `json:"methods"`
}

func (s *Service) run(ctx context.Context, job Job, kind SchedulerKind, methods []string, factory core.ModelFactory) (*Report, error) {
	d := job.Dataset
	runID := job.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	ctx, span := s.obs.StartRunSpan(ctx, runID, d.Name, string(d.Task), job.RequestID)
	defer span.End()

	tel := s.obs.GetTelemetry()
	logger := s.obs.GetLogger().WithRunID(runID)
	start := time.Now()

	var (
		res       core.Result
		baselines []core.BaselineResult
	)
	err := s.guard.Wrap(ctx, func(ctx context.Context) error {
		fitness := &core.CVFitness{
			Data:       d,
			Factory:    factory,
			Validator:  ml.NewValidator(d.Task),
			Scoring:    ml.ScoringFor(d.Task),
			Folds:      job.Params.CV,
			MaxSamples: job.Params.MaxSamples,
			Lambda:     job.Params.LambdaPenalty,
			Failed: func(g core.Genome, err error) {
				tel.LogDegenerate(ctx, g, err)
			},
		}
		solver := NewSolver(job.Params, fitness, kind, tel)
		solver.Tracer = s.obs.GetTracer()

		var err error
		res, err = solver.Solve(ctx, d.Features())
		if err != nil {
			return err
		}
		if math.IsInf(res.Fitness, 1) {
			return ErrNoFeasible
		}

		runner := &baseline.Runner{
			Factory:   factory,
			Validator: ml.NewValidator(d.Task),
			Folds:     job.Params.CV,
			Seed:      res.Seed,
			OnResult:  tel.LogBaseline,
		}
		k := max(1, res.Genome.Count())
		bctx, bspan := s.obs.GetTracer().StartBaselineSpan(ctx, strings.Join(methods, ","), k)
		baselines = runner.RunAll(bctx, d, methods, k)
		bspan.End()
		return ctx.Err()
	})
	if err != nil {
		tracing.RecordSpanError(span, err)
		s.obs.RecordRun(ctx, runID, d.Name, "error", time.Since(start), 0, 0)
		if errors.Is(err, local.ErrRunTimeout) {
			return nil, err
		}
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	rep := s.report(runID, job, kind, methods, res, baselines)
	rep.Plots = s.renderPlots(rep, logger)

	rec := store.RunRecord{
		ID:           runID,
		CreatedAt:    time.Now().UTC(),
		Dataset:      d.Name,
		ProblemType:  string(d.Task),
		ModelType:    job.ModelType,
		GAVersion:    string(kind),
		Metric:       rep.Metric,
		Params:       job.Params,
		Selected:     rep.Results[GAMethod].Selected,
		Score:        *rep.Results[GAMethod].Score,
		Fitness:      res.Fitness,
		History:      rep.GA.History,
		Generations:  res.Generations,
		StoppedEarly: res.StoppedEarly,
		Seed:         res.Seed,
		Baselines:    baselines,
		Plots:        rep.Plots,
		Duration:     time.Since(start),
	}
	rec.Params.Seed = &rec.Seed
	if err := s.store.Save(rec); err != nil {
		logger.Warn("failed to persist run", "error", err)
	}

	tracing.RecordSpanSuccess(span)
	s.obs.RecordRun(ctx, runID, d.Name, "success", time.Since(start), res.Genome.Count(), rec.Score)
	return rep, nil
}

// report assembles the response. Classification fitness is a negated
// accuracy, so the GA score and history are flipped back to the metric.
func (s *Service) report(runID string, job Job, kind SchedulerKind, methods []string, res core.Result, baselines []core.BaselineResult) *Report {
	d := job.Dataset
	sign := 1.0
	if d.Task == core.Classification {
		sign = -1
	}
	score := sign * res.Fitness
	history := make([]float64, len(res.History))
	for i, f := range res.History {
		history[i] = sign * f
	}

	rep := &Report{
		RunID:       runID,
		Dataset:     d.Name,
		ModelType:   job.ModelType,
		ProblemType: string(d.Task),
		Metric:      ml.MetricLabel(d.Task),
		Results:     make(map[string]MethodResult, len(baselines)+1),
		Methods:     append([]string{GAMethod}, methods...),
		Plots:       []string{},
		GA: GASummary{
			Fitness:      res.Fitness,
			History:      history,
			Generations:  res.Generations,
			StoppedEarly: res.StoppedEarly,
			Seed:         res.Seed,
			Version:      string(kind),
		},
	}
	gaTime := res.Duration.Seconds()
	rep.Results[GAMethod] = MethodResult{
		Selected: d.ColumnNames(res.Genome),
		Score:    &score,
		Time:     gaTime,
	}
	total := gaTime
	for _, b := range baselines {
		rep.Results[b.Method] = MethodResult{
			Selected: b.Selected,
			Score:    b.Score,
			Time:     b.Duration.Seconds(),
			Error:    b.Error,
		}
		total += b.Duration.Seconds()
	}
	rep.Metadata = Metadata{
		NSamples:    d.Rows(),
		NFeatures:   d.Features(),
		CVFolds:     job.Params.CV,
		PopSize:     job.Params.PopSize,
		Generations: job.Params.Generations,
		TotalTime:   total,
	}
	return rep
}

// renderPlots draws the charts under <output>/<dataset>/<run>/ and returns
// their public URLs. Failures are logged only.
func (s *Service) renderPlots(rep *Report, logger *logging.Logger) []string {
	if s.outputDir == "" {
		return []string{}
	}
	rel := path.Join(plotDirName(rep.Dataset, "dataset"), plotDirName(rep.RunID, "run"))
	dir := filepath.Join(s.outputDir, filepath.FromSlash(rel))

	in := plots.Input{
		Dataset:        rep.Dataset,
		Metric:         rep.Metric,
		HigherIsBetter: rep.ProblemType == string(core.Classification),
		History:        rep.GA.History,
	}
	for _, name := range rep.Methods {
		r := rep.Results[name]
		e := plots.Entry{Method: name, Score: r.Score, Selected: r.Selected, Seconds: r.Time}
		if name == GAMethod {
			in.GA = e
			continue
		}
		in.Baselines = append(in.Baselines, e)
	}

	files, err := s.renderer.Render(dir, in)
	if err != nil {
		logger.Warn("plot rendering failed", "dataset", rep.Dataset, "error", err)
	}
	urls := make([]string, 0, len(files))
	for _, f := range files {
		urls = append(urls, path.Join("/outputs", rel, f))
	}
	return urls
}

// plotDirName keeps name only when it is a single local path element.
func plotDirName(name, fallback string) string {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || !filepath.IsLocal(name) {
		return fallback
	}
	return name
}

// datasetDigest fingerprints the prepared dataset for cache keys.
func datasetDigest(d *core.Dataset) string {
	h := sha256.New()
	var buf [8]byte
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	h.Write([]byte(d.Name))
	for _, c := range d.Columns {
		h.Write([]byte{0})
		h.Write([]byte(c))
	}
	r, c := d.X.Dims()
	binary.LittleEndian.PutUint64(buf[:], uint64(r)<<32|uint64(c))
	h.Write(buf[:])
	for i := 0; i < r; i++ {
		for _, v := range d.X.RawRowView(i) {
			writeFloat(v)
		}
	}
	for _, v := range d.Y {
		writeFloat(v)
	}
	return hex.EncodeToString(h.Sum(nil))
}
