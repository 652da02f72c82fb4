package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/snow-ghost/featsel/core"
	"github.com/snow-ghost/featsel/dataset"
	"github.com/snow-ghost/featsel/pkg/config"
	"github.com/snow-ghost/featsel/pkg/logging"
	"github.com/snow-ghost/featsel/pkg/observability"
	"github.com/snow-ghost/featsel/policy/local"
	"github.com/snow-ghost/featsel/worker"
)

func main() {
	defaults := config.Default()
	ga := defaults.Run.GA

	var (
		data      = flag.String("data", "", "CSV or XLSX file to select features from")
		target    = flag.String("target", "", "target column (default: last column)")
		problem   = flag.String("problem", "regression", "regression or classification")
		popSize   = flag.Int("pop", ga.PopSize, "population size")
		gens      = flag.Int("gens", ga.Generations, "number of generations")
		mutation  = flag.Float64("mutation", ga.MutationRate, "per-bit mutation rate")
		crossover = flag.Float64("crossover", ga.CrossoverRate, "crossover probability")
		folds     = flag.Int("cv", ga.CV, "cross-validation folds")
		patience  = flag.Int("patience", ga.Patience, "generations without improvement before stopping")
		lambda    = flag.Float64("lambda", ga.LambdaPenalty, "penalty per selected feature fraction")
		model     = flag.String("model", defaults.Run.ModelType, "linear, ridge or logistic")
		gaVersion = flag.String("ga-version", defaults.Run.GAVersion, "optimized (parallel) or original (sequential)")
		mode      = flag.String("mode", defaults.Run.Mode, "all or selected")
		methods   = flag.String("methods", "", "comma-separated baselines for -mode selected")
		seed      = flag.Int64("seed", int64(defaults.Run.Seed), "random seed; negative picks a fresh one")
		workers   = flag.Int("workers", 0, "evaluation workers (0 = GOMAXPROCS)")
		outDir    = flag.String("out", "", "directory for plots (empty skips plotting)")
		timeout   = flag.Duration("timeout", defaults.Run.Timeout, "wall-clock limit for the run")
		logLevel  = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	if *data == "" {
		fmt.Fprintln(os.Stderr, "featsel: -data is required")
		flag.Usage()
		os.Exit(2)
	}

	logger, err := logging.NewLogger(logging.Config{Level: *logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		fatal(err)
	}
	defer logger.Sync()

	task, err := core.ParseTaskKind(*problem)
	if err != nil {
		fatal(err)
	}
	t, err := dataset.Load(*data)
	if err != nil {
		fatal(err)
	}
	d, err := dataset.Prepare(t, dataset.Stem(*data), *target, task)
	if err != nil {
		fatal(err)
	}

	p := ga
	p.PopSize = *popSize
	p.Generations = *gens
	p.MutationRate = *mutation
	p.CrossoverRate = *crossover
	p.CV = *folds
	p.Patience = *patience
	p.LambdaPenalty = *lambda
	p.Workers = *workers
	if p.TournamentSize > p.PopSize {
		p.TournamentSize = p.PopSize
	}
	if *seed >= 0 {
		s := uint64(*seed)
		p.Seed = &s
	}

	var list []string
	for _, m := range strings.Split(*methods, ",") {
		if m = strings.TrimSpace(m); m != "" {
			list = append(list, m)
		}
	}

	svc := worker.NewService(worker.Options{
		Guard:     local.NewGuard(*timeout, nil),
		Obs:       observability.New(logger, nil, nil),
		OutputDir: *outDir,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	rep, err := svc.Run(ctx, worker.Job{
		Dataset:   d,
		Params:    p,
		ModelType: *model,
		GAVersion: *gaVersion,
		Mode:      *mode,
		Methods:   list,
	})
	if err != nil {
		fatal(err)
	}
	logger.Info("run finished", "run_id", rep.RunID, "elapsed", time.Since(start).String())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "featsel: %v\n", err)
	os.Exit(1)
}
