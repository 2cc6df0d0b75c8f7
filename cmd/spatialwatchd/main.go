// Command spatialwatchd runs the spatialwatch service: the Lifecycle
// Manager's boot sequence, the Scheduler's two cooperative loops, and
// the control surface's HTTP API, all against one local PostGIS
// database and a set of externally-registered remote datasets.
//
// Grounded on the teacher's cmd/baseline-server/main.go: flag-free,
// environment-driven configuration, a zerolog logger built once and
// threaded everywhere, and a signal.NotifyContext-bound shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kvarga/spatialwatch/internal/api"
	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/controlsurface"
	"github.com/kvarga/spatialwatch/internal/detector"
	"github.com/kvarga/spatialwatch/internal/events"
	"github.com/kvarga/spatialwatch/internal/lifecycle"
	"github.com/kvarga/spatialwatch/internal/logger"
	"github.com/kvarga/spatialwatch/internal/metrics"
	"github.com/kvarga/spatialwatch/internal/scheduler"
	"github.com/kvarga/spatialwatch/internal/spatialtest"
	"github.com/kvarga/spatialwatch/internal/store/postgres"
)

func main() {
	cfg := config.FromEnv()
	zl := logger.Build(logger.Config{Level: cfg.LogLevel, Console: !cfg.LogJSON, Component: "spatialwatchd"}, os.Stdout)
	slogLogger := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics.Init(registry, cfg.MetricsEnabled)

	pool, err := postgres.Open(ctx, cfg.LocalDatabaseURL)
	if err != nil {
		zl.Fatal().Err(err).Msg("open local database")
	}
	defer pool.Close()

	lifecycleMgr := lifecycle.New(zl, cfg.LocalDatabaseURL, pool, cfg.PreserveConnectionsOnRestart)
	if err := lifecycleMgr.Boot(ctx); err != nil {
		zl.Fatal().Err(err).Msg("lifecycle boot")
	}

	datasets := postgres.NewDatasetStore(pool)
	snapshots := postgres.NewSnapshotStore(pool)
	diffs := postgres.NewDiffStore(pool)
	findings := postgres.NewFindingStore(pool)
	dupLookup := postgres.NewDuplicateLookup(pool)

	var publisher *events.Publisher
	if cfg.KafkaEnabled {
		publisher, err = events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, 0)
		if err != nil {
			zl.Fatal().Err(err).Msg("create diff event publisher")
		}
		defer publisher.Close()
	}

	det := &detector.Detector{
		DB:         pool,
		Snapshots:  snapshots,
		Diffs:      diffs,
		Thresholds: cfg.Thresholds,
		Publisher:  publisher,
	}

	runner := &spatialtest.Runner{
		Snapshots:  snapshots,
		Findings:   findings,
		Testers:    spatialtest.EnabledTesters(cfg.Categories, dupLookup),
		Thresholds: cfg.Thresholds,
	}

	sched := scheduler.New(zl, cfg, datasets, det, runner, pool)
	sched.Start(ctx)
	defer sched.Stop()

	surface := controlsurface.New(datasets, snapshots, diffs, findings, sched, lifecycleMgr)

	var metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	if !cfg.MetricsEnabled {
		metricsHandler = nil
	}

	if err := api.Run(ctx, cfg.Addr, slogLogger, surface, metricsHandler); err != nil {
		zl.Fatal().Err(err).Msg("http server")
	}

	zl.Info().Msg("spatialwatchd stopped")
}
