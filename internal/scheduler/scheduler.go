// Package scheduler runs spatialwatch's two cooperative loops (spec.md
// §4.H): a ticker-driven change-detection sweep over active datasets,
// and an on-demand, background-dispatched quality-check run with
// process-local status tracking.
//
// Grounded on the teacher's pkg/invalidation/kafka.Runner: a struct
// holding a cancel func and a WaitGroup, started once from Start and
// torn down from Stop, with a long-lived goroutine selecting on
// ctx.Done() against a ticker. The per-dataset run-status map is
// grounded on internal/hotness/expdecay.Tracker: a mutex-guarded map
// with an injectable now func, generalized here from decaying scores
// to {state, progress} records with a TTL sweep instead of an explicit
// Reset call.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/detector"
	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/externalsource"
	"github.com/kvarga/spatialwatch/internal/metrics"
	"github.com/kvarga/spatialwatch/internal/model"
	"github.com/kvarga/spatialwatch/internal/spatialtest"
	"github.com/kvarga/spatialwatch/internal/store/postgres"
)

// Scheduler owns the change-detection ticker and the quality-check
// dispatch table. One Scheduler per process.
type Scheduler struct {
	log      zerolog.Logger
	cfg      config.Config
	datasets postgres.DatasetStore
	detector *detector.Detector
	runner   *spatialtest.Runner
	db       postgres.DB

	status *statusTable

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Scheduler. db is used as the standalone Queryer for
// quality-check runs, which are not part of the Change Detector's
// transaction discipline.
func New(log zerolog.Logger, cfg config.Config, datasets postgres.DatasetStore, det *detector.Detector, runner *spatialtest.Runner, db postgres.DB) *Scheduler {
	return &Scheduler{
		log:      log,
		cfg:      cfg,
		datasets: datasets,
		detector: det,
		runner:   runner,
		db:       db,
		status:   newStatusTable(time.Now, cfg.QualityCheckStatusTTL()),
	}
}

// Start launches the change-detection loop and the status-TTL sweep,
// both bound to ctx. Returns immediately; call Stop to tear down.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.runCtx = ctx
	s.cancel = cancel

	s.wg.Add(2)
	go s.runChangeDetectionLoop(ctx)
	go s.runStatusSweep(ctx)

	s.log.Info().
		Dur("tick", s.cfg.ChangeLoopTick()).
		Dur("cadence", s.cfg.ChangeDetectionCadence()).
		Msg("scheduler started")
}

// Stop cancels both loops and waits for them to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runChangeDetectionLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.ChangeLoopTick())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepDatasets(ctx)
		}
	}
}

// sweepDatasets lists active datasets and runs the Change Detector,
// sequentially, for every one eligible under spec.md §4.H's rule:
// last_check_at is null, or now - last_check_at >= check_interval.
func (s *Scheduler) sweepDatasets(ctx context.Context) {
	tickStart := time.Now()
	active, err := s.datasets.List(ctx, true)
	if err != nil {
		s.log.Error().Err(err).Msg("list active datasets")
		return
	}

	now := time.Now().UTC()
	eligibleCount := 0
	for _, d := range active {
		if ctx.Err() != nil {
			return
		}
		if !eligible(d, now) {
			continue
		}
		eligibleCount++
		s.runChangeDetection(ctx, d)
	}
	metrics.ObserveSchedulerTick(time.Since(tickStart), eligibleCount)
}

func eligible(d model.Dataset, now time.Time) bool {
	if d.LastCheckAt == nil {
		return true
	}
	interval := time.Duration(d.CheckIntervalMins) * time.Minute
	return now.Sub(*d.LastCheckAt) >= interval
}

func (s *Scheduler) runChangeDetection(ctx context.Context, d model.Dataset) {
	log := s.log.With().Str("dataset_id", d.ID).Str("dataset", d.Name).Logger()

	result, err := s.detector.Run(ctx, d)
	if err != nil {
		log.Error().Err(err).Msg("change detection failed")
		if rerr := s.datasets.RecordCheckResult(ctx, d.ID, model.ConnectionFailed, err.Error()); rerr != nil {
			log.Error().Err(rerr).Msg("record check failure")
		}
		return
	}

	if rerr := s.datasets.RecordCheckResult(ctx, d.ID, model.ConnectionSuccess, ""); rerr != nil {
		log.Error().Err(rerr).Msg("record check success")
	}
	log.Info().
		Bool("baseline", result.Baseline).
		Int("snapshots_created", result.SnapshotsCreated).
		Int("diffs_created", result.DiffsCreated).
		Msg("change detection completed")
}

// RequestQualityCheck dispatches a background Spatial Test Engine run
// for dataset id, per spec.md §4.H's three refusal/accept rules.
func (s *Scheduler) RequestQualityCheck(ctx context.Context, id string) error {
	d, err := s.datasets.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.LastCheckAt == nil {
		return &errs.ValidationError{Field: "dataset_id", Reason: "change detection has not completed a baseline run yet"}
	}
	if s.status.isRunning(id) {
		return &errs.ConcurrencyError{DatasetID: id, Reason: "quality check already running"}
	}

	s.status.start(id, d.Name)
	metrics.SetQualityChecksRunning(s.status.runningCount())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runQualityCheck(s.runCtx, d)
	}()
	return nil
}

func (s *Scheduler) runQualityCheck(ctx context.Context, d model.Dataset) {
	log := s.log.With().Str("dataset_id", d.ID).Str("dataset", d.Name).Logger()
	s.status.setPhase(d.ID, model.PhaseRunning)
	start := time.Now()
	defer func() { metrics.SetQualityChecksRunning(s.status.runningCount()) }()

	reader, err := externalsource.Open(ctx, d)
	if err != nil {
		log.Error().Err(err).Msg("quality check: open external source")
		s.status.fail(d.ID, err)
		metrics.ObserveQualityCheckRun(d.ID, "error", time.Since(start))
		return
	}
	defer reader.Close(ctx)

	progress := func(current, total int) {
		s.status.updateProgress(d.ID, current, total)
	}

	summary, err := s.runner.Run(ctx, s.db, d.ID, reader, progress)
	if err != nil {
		log.Error().Err(err).Msg("quality check failed")
		s.status.fail(d.ID, err)
		metrics.ObserveQualityCheckRun(d.ID, "error", time.Since(start))
		return
	}

	log.Info().
		Int("features_run", summary.FeaturesRun).
		Int("fail_count", summary.FailCount).
		Msg("quality check completed")
	s.status.complete(d.ID, summary.Counts)
	metrics.ObserveQualityCheckRun(d.ID, "ok", time.Since(start))
}

// PollQualityCheck returns the current status for dataset id and
// whether an entry is held for it; a finished run's entry is swept
// once the status TTL has passed, after which this reports false.
func (s *Scheduler) PollQualityCheck(id string) (model.QualityCheckStatus, bool) {
	return s.status.get(id)
}
