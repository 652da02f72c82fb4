package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snow-ghost/featsel/dataset"
	"github.com/snow-ghost/featsel/pkg/cache"
	"github.com/snow-ghost/featsel/pkg/config"
	"github.com/snow-ghost/featsel/pkg/fetch"
	"github.com/snow-ghost/featsel/pkg/httpserver"
	"github.com/snow-ghost/featsel/pkg/logging"
	"github.com/snow-ghost/featsel/pkg/observability"
	"github.com/snow-ghost/featsel/pkg/plots"
	"github.com/snow-ghost/featsel/pkg/store"
	"github.com/snow-ghost/featsel/policy/local"
	"github.com/snow-ghost/featsel/worker"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	check := flag.Bool("healthcheck", false, "probe a running server and exit")
	flag.Parse()

	if *check {
		healthcheck()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	obs, err := observability.NewManager(observability.Config{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    os.Getenv("ENVIRONMENT"),
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		Log: logging.Config{
			Level:     cfg.Log.Level,
			Format:    cfg.Log.Format,
			Output:    cfg.Log.Output,
			AddCaller: true,
		},
	})
	if err != nil {
		log.Fatal("failed to set up observability: ", err)
	}
	logger := obs.GetLogger()
	defer logger.Sync()

	datasets, err := dataset.NewStore(cfg.Paths.UploadDir)
	if err != nil {
		logger.Fatal("failed to open upload directory", "error", err)
	}
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		logger.Fatal("failed to create output directory", "error", err)
	}
	runs, err := store.NewManager(cfg.Store)
	if err != nil {
		logger.Fatal("failed to open run store", "error", err)
	}
	defer runs.Close()

	var results *cache.CacheManager[*worker.Report]
	if cfg.Cache.Size > 0 {
		cc := cache.DefaultCacheConfig()
		cc.MaxSize = cfg.Cache.Size
		cc.DefaultTTL = cfg.Cache.TTL
		if results, err = cache.NewCacheManager[*worker.Report](cc); err != nil {
			logger.Warn("failed to create result cache, caching disabled", "error", err)
			results = nil
		} else {
			defer results.Close()
		}
	}

	guard := local.NewGuard(cfg.Run.Timeout, cfg.Fetch.AllowHosts)
	fc := fetch.DefaultConfig()
	fc.Timeout = cfg.Fetch.Timeout
	fc.RPS = cfg.Fetch.RPS
	fc.Burst = cfg.Fetch.Burst
	fetcher := fetch.NewClient(fc, guard, logger, obs.GetMetrics(), obs.GetTracer())

	svc := worker.NewService(worker.Options{
		Guard:     guard,
		Obs:       obs,
		Store:     runs,
		Cache:     results,
		Renderer:  plots.NewRenderer(),
		OutputDir: cfg.Paths.OutputDir,
		Workers:   cfg.Run.Workers,
	})

	server := httpserver.NewServer(httpserver.Deps{
		Config:   cfg,
		Runner:   svc,
		Datasets: datasets,
		Runs:     runs,
		Fetcher:  fetcher,
		Obs:      obs,
	})

	logger.Info("starting feature selection service",
		"port", cfg.Server.Port,
		"log_level", cfg.Log.Level,
		"store", cfg.Store.Driver,
		"run_timeout", cfg.Run.Timeout.String())

	errc := make(chan error, 1)
	go func() { errc <- server.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if err != nil {
			logger.Fatal("server failed", "error", err)
		}
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := obs.Shutdown(ctx); err != nil {
		logger.Error("observability shutdown failed", "error", err)
	}
}
