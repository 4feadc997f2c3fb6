// Command taskcoredemo wires the task engine, cache manager and error
// reporter together end to end: it submits a small dependency graph of
// tasks, one of which deliberately fails, caches an expensive lookup,
// and reports the failures with actionable suggestions.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"log/slog"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johanjanssens/taskcore/cache"
	"github.com/johanjanssens/taskcore/cache/cachemgr"
	"github.com/johanjanssens/taskcore/manager"
	"github.com/johanjanssens/taskcore/reporting"
	"github.com/johanjanssens/taskcore/reporting/suggest"
	"github.com/johanjanssens/taskcore/taskcore"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cacheMgr, err := cachemgr.NewManager(cfg.CacheDir)
	if err != nil {
		logger.Error("failed to initialize cache manager", "error", err)
		os.Exit(1)
	}
	defer cacheMgr.Close()

	suggestions := suggest.NewRegistry(suggest.WithLogger(logger), suggest.WithMemoization(256))
	suggest.RegisterDefaultProviders(suggestions)

	boltIndex, err := reporting.NewBoltIndex(cfg.BoltIndexPath)
	if err != nil {
		logger.Error("failed to open report index", "error", err)
		os.Exit(1)
	}
	defer boltIndex.Close()

	fileReporter, err := reporting.NewFileReporter(cfg.ReportDir, reporting.FormatJSON, suggestions,
		reporting.WithFileStack(true), reporting.WithBoltIndex(boltIndex))
	if err != nil {
		logger.Error("failed to initialize file reporter", "error", err)
		os.Exit(1)
	}
	consoleReporter := reporting.NewConsoleReporter(suggestions, reporting.WithConsoleLogger(logger))

	mgr := manager.New(parseStrategy(cfg.Strategy),
		manager.WithManagerLogger(logger),
		manager.WithExecutorOptions(
			taskcore.WithMaxWorkers(cfg.Workers),
			taskcore.WithDefaultTimeout(cfg.DefaultTimeout),
			taskcore.WithExecutorLogger(logger),
		),
	)

	exporter := manager.NewMetricsExporter(mgr, "taskcoredemo")
	registerer := prometheus.NewRegistry()
	if err := exporter.Register(registerer); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}),
	}
	go func() {
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	if err := mgr.Start(func(taskID string, status taskcore.Status, value any, err error) {
		logger.Debug("task status", "task_id", taskID, "status", status.String())
	}); err != nil {
		logger.Error("failed to start manager", "error", err)
		os.Exit(1)
	}

	runDemo(ctx, mgr, cacheMgr, consoleReporter, fileReporter)

	<-ctx.Done()
	logger.Info("shutting down")
	mgr.Stop()
	_ = metricsServer.Shutdown(context.Background())
}

func parseStrategy(s string) manager.ProcessingStrategy {
	switch s {
	case "batched":
		return manager.Batched
	case "priority":
		return manager.Priority
	case "graph":
		return manager.Graph
	case "work_stealing":
		return manager.WorkStealing
	case "priority_graph":
		return manager.PriorityGraph
	default:
		return manager.Parallel
	}
}

// runDemo submits a fetch→parse→render dependency chain that exercises
// the cache manager for the expensive "fetch" step and an error report
// for a step that fails on purpose.
func runDemo(ctx context.Context, mgr *manager.Manager, cacheMgr *cachemgr.Manager, console, file reporting.Reporter) {
	backend, err := cacheMgr.Get(cachemgr.Memory, cachemgr.Short)
	if err != nil {
		slog.Error("cache backend unavailable", "error", err)
		return
	}

	fetch := taskcore.NewFunc(func(ctx context.Context) (any, error) {
		v, err := backend.GetOrSet(ctx, "dataset:42", cache.UseDefaultTTL, func(ctx context.Context) (any, error) {
			time.Sleep(50 * time.Millisecond)
			return "raw-dataset-42", nil
		})
		return v, err
	}, taskcore.WithID("fetch"), taskcore.WithPriority(taskcore.PriorityHigh))

	parse := taskcore.NewFunc(func(ctx context.Context) (any, error) {
		return "parsed-dataset-42", nil
	}, taskcore.WithID("parse"), taskcore.WithDependencies("fetch"))

	render := taskcore.NewFunc(func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("render target missing: %w", os.ErrNotExist)
	}, taskcore.WithID("render"), taskcore.WithDependencies("parse"))

	handles, err := mgr.SubmitMany([]*taskcore.Task{fetch, parse, render})
	if err != nil {
		slog.Error("failed to submit demo tasks", "error", err)
		return
	}

	for _, h := range handles {
		_, err := h.Wait(ctx)
		if err == nil {
			continue
		}
		reportCtx := reporting.ErrorContext{Operation: h.ID(), Component: "taskcoredemo"}
		if _, rerr := console.Report(err, reportCtx); rerr != nil {
			slog.Error("console report failed", "error", rerr)
		}
		if _, rerr := file.Report(err, reportCtx); rerr != nil {
			slog.Error("file report failed", "error", rerr)
		}
	}
}
