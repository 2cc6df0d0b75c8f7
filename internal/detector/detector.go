// Package detector implements the Change Detector (spec.md §4.F), the
// central algorithm: per-dataset content-addressed classification of
// the remote source's current rows against the dataset's prior
// snapshots, producing NEW/UPDATED/DELETED diffs gated by the shared
// confidence scorer.
//
// Grounded on the teacher's internal/decision/simple/engine.go
// threshold-gated small-outcome-set dispatch (there: cache vs
// no-cache; here: unchanged / snapshot-only / snapshot-and-diff),
// generalized to four-way classification, and on
// pkg/invalidation/kafka/runner.go's one-session-per-generation shape
// for the run-scoped single local-database transaction.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/events"
	"github.com/kvarga/spatialwatch/internal/externalsource"
	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/h3cell"
	"github.com/kvarga/spatialwatch/internal/hash"
	"github.com/kvarga/spatialwatch/internal/metrics"
	"github.com/kvarga/spatialwatch/internal/model"
	"github.com/kvarga/spatialwatch/internal/spatialtest"
	"github.com/kvarga/spatialwatch/internal/store/postgres"
)

// Result is the per-run outcome, consumed by the Scheduler for logging.
type Result struct {
	Baseline         bool
	SnapshotsCreated int
	DiffsCreated     int
}

// Detector runs the change-detection algorithm for one dataset per
// invocation of Run. A single Detector is safe to reuse across
// datasets and runs; it holds no per-run state.
type Detector struct {
	DB         postgres.DB
	Snapshots  postgres.SnapshotStore
	Diffs      postgres.DiffStore
	Thresholds config.Thresholds
	Publisher  *events.Publisher // optional; nil disables diff eventing
}

// Run executes one change-detection pass for dataset, per spec.md
// §4.F's five numbered steps, committing all snapshot and diff writes
// as one transaction.
func (d *Detector) Run(ctx context.Context, dataset model.Dataset) (result Result, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ObserveChangeDetectionRun(dataset.ID, outcome, time.Since(start))
	}()

	prior, err := d.Snapshots.ListByDataset(ctx, dataset.ID)
	if err != nil {
		return Result{}, err
	}

	compositeSeen := make(map[string]bool, len(prior))
	byGeometryHash := make(map[string][]model.Snapshot, len(prior))
	for _, snap := range prior {
		compositeSeen[snap.CompositeHash.String()] = true
		byGeometryHash[snap.GeometryHash.String()] = append(byGeometryHash[snap.GeometryHash.String()], snap)
	}
	baseline := len(prior) == 0
	runKind := "incremental"
	if baseline {
		runKind = "baseline"
	}

	reader, err := externalsource.Open(ctx, dataset)
	if err != nil {
		return Result{}, err
	}
	defer reader.Close(ctx)

	tx, err := d.DB.Begin(ctx)
	if err != nil {
		return Result{}, &errs.LocalStoreError{Store: "tx", Op: "begin", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	result = Result{Baseline: baseline}
	observedComposite := make(map[string]bool, len(prior))
	var created []model.Diff

	for reader.Next() {
		row, err := reader.Scan()
		if err != nil {
			return Result{}, &errs.RemoteSourceError{DatasetID: dataset.ID, Op: "scan", Err: err}
		}

		geomHash := hash.Geometry(row.Scalars.WKB)
		attrsHash := hash.Attributes(row.Attributes)
		compositeHash := hash.Composite(geomHash, attrsHash)
		observedComposite[compositeHash.String()] = true

		if compositeSeen[compositeHash.String()] {
			metrics.IncUnchanged(dataset.ID)
			continue // unchanged
		}

		snap := model.Snapshot{
			ID:             uuid.NewString(),
			DatasetID:      dataset.ID,
			SourceID:       row.SourceID,
			GeometryHash:   geomHash,
			AttributesHash: attrsHash,
			CompositeHash:  compositeHash,
			GeometryWKB:    row.Scalars.WKB,
			Attributes:     row.Attributes,
			H3Cell:         centroidCell(row.Scalars.WKB),
			CreatedAt:      time.Now().UTC(),
		}

		if baseline {
			if err := d.insertSnapshot(ctx, tx, snap); err != nil {
				return Result{}, err
			}
			result.SnapshotsCreated++
			metrics.AddSnapshotsCreated(dataset.ID, runKind, 1)
			continue
		}

		score, problematic := spatialtest.Score(row.Scalars, d.Thresholds)
		if !problematic {
			if err := d.insertSnapshot(ctx, tx, snap); err != nil {
				return Result{}, err
			}
			result.SnapshotsCreated++
			metrics.AddSnapshotsCreated(dataset.ID, runKind, 1)
			continue
		}

		if err := d.insertSnapshot(ctx, tx, snap); err != nil {
			return Result{}, err
		}
		result.SnapshotsCreated++
		metrics.AddSnapshotsCreated(dataset.ID, runKind, 1)

		exists, err := d.Diffs.ExistsPendingForGeometry(ctx, tx, dataset.ID, geomHash)
		if err != nil {
			return Result{}, err
		}
		if exists {
			continue // idempotence: don't re-flag what is already pending
		}

		diff := classify(dataset.ID, snap, byGeometryHash[geomHash.String()], score)
		if err := d.Diffs.Insert(ctx, tx, diff); err != nil {
			return Result{}, err
		}
		result.DiffsCreated++
		metrics.IncDiffCreated(dataset.ID, string(diff.Type))
		created = append(created, diff)
	}
	if err := reader.Err(); err != nil {
		return Result{}, &errs.RemoteSourceError{DatasetID: dataset.ID, Op: "iterate", Err: err}
	}

	if !baseline {
		for _, p := range prior {
			if observedComposite[p.CompositeHash.String()] {
				continue
			}
			diff := model.Diff{
				ID:            uuid.NewString(),
				DatasetID:     dataset.ID,
				Type:          model.DiffDeleted,
				OldSnapshotID: p.ID,
				ConfidenceScore: 1.0,
				Status:          model.ReviewPending,
				CreatedAt:       time.Now().UTC(),
			}
			if err := d.Diffs.Insert(ctx, tx, diff); err != nil {
				return Result{}, err
			}
			result.DiffsCreated++
			metrics.IncDeletionDiff(dataset.ID)
			created = append(created, diff)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, &errs.LocalStoreError{Store: "tx", Op: "commit", Err: err}
	}
	committed = true

	for _, diff := range created {
		d.publish(diff)
	}

	return result, nil
}

// classify implements spec.md §4.F's NEW/UPDATED decision: a geometry
// hash absent from the prior multimap is NEW; present is UPDATED
// (pure-geometry changes with unchanged attributes are not
// representable under this hashing scheme and are left as specified,
// see DESIGN.md's Open Questions).
func classify(datasetID string, snap model.Snapshot, priorSameGeometry []model.Snapshot, score float64) model.Diff {
	d := model.Diff{
		ID:              uuid.NewString(),
		DatasetID:       datasetID,
		NewSnapshotID:   snap.ID,
		ConfidenceScore: score,
		Status:          model.ReviewPending,
		CreatedAt:       time.Now().UTC(),
	}
	if len(priorSameGeometry) == 0 {
		d.Type = model.DiffNew
		d.GeometryChanged = true
		d.AttributesChanged = false
		return d
	}
	d.Type = model.DiffUpdated
	d.GeometryChanged = false
	d.AttributesChanged = true
	d.OldSnapshotID = priorSameGeometry[0].ID
	return d
}

// insertSnapshot wraps SnapshotStore.Insert with the one-shot
// schema-relaxation repair spec.md §7 describes for SchemaMismatch: a
// dimensional or SRID constraint violation discovered at insert time
// is repaired once (loosening the column's type constraint) and the
// insert retried; a second failure surfaces as LocalStoreError.
func (d *Detector) insertSnapshot(ctx context.Context, tx postgres.Queryer, snap model.Snapshot) error {
	err := d.Snapshots.Insert(ctx, tx, snap)
	if err == nil {
		return nil
	}
	if !isConstraintViolation(err) {
		return err
	}
	if repairErr := relaxGeometryConstraint(ctx, tx); repairErr != nil {
		return &errs.LocalStoreError{Store: "snapshots", Op: "insert", Err: fmt.Errorf("repair failed: %w (original: %v)", repairErr, err)}
	}
	return d.Snapshots.Insert(ctx, tx, snap)
}

func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if ok := asPgError(err, &pgErr); ok {
		return pgErr.Code == "23514" || pgErr.Code == "23000"
	}
	return false
}

func asPgError(err error, target **pgconn.PgError) bool {
	for err != nil {
		if pe, ok := err.(*pgconn.PgError); ok {
			*target = pe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func relaxGeometryConstraint(ctx context.Context, tx postgres.Queryer) error {
	_, err := tx.Exec(ctx, `ALTER TABLE snapshots ALTER COLUMN geometry TYPE geometry USING geometry`)
	if err != nil {
		return &errs.SchemaMismatch{Table: "snapshots", Detail: "geometry column type relax", Err: err}
	}
	return nil
}

func (d *Detector) publish(diff model.Diff) {
	if d.Publisher == nil {
		return
	}
	_ = d.Publisher.PublishDiffCreated(diff)
}

func centroidCell(wkb []byte) string {
	g, err := geo.Decode(wkb)
	if err != nil {
		return ""
	}
	pt, ok := geo.Centroid(g)
	if !ok {
		return ""
	}
	cell, err := h3cell.ForPoint(pt, h3cell.DefaultResolution)
	if err != nil {
		return ""
	}
	return cell
}
