// Package controlsurface implements the operations of spec.md §6: the
// dataset registry's CRUD, the diff review workflow, and the
// quality-check request/poll bridge into the Scheduler. It is the one
// layer internal/api's HTTP handlers call into; no handler touches a
// store directly.
//
// Grounded on the teacher's internal/core/router/router.go
// validate-then-dispatch shape — one small method per operation,
// input validation up front, domain errors (internal/errs) returned
// rather than logged, leaving status-code mapping to internal/api.
// Route semantics (field names, which conditions are 400 vs 404, the
// batch-review all-or-nothing check) follow
// original_source/backend/api/v1/diffs.py and monitoring.py.
package controlsurface

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/model"
	"github.com/kvarga/spatialwatch/internal/store/postgres"
)

// defaultCheckIntervalMins is used when DatasetInput omits one.
const defaultCheckIntervalMins = 60

// scheduler is the narrow slice of *scheduler.Scheduler the control
// surface depends on; declared here (rather than imported) so the
// control surface depends only on these two methods, the same
// structural-typing trick DESIGN.md documents for postgres.DuplicateLookup
// and spatialtest.DuplicateLookup.
type scheduler interface {
	RequestQualityCheck(ctx context.Context, id string) error
	PollQualityCheck(id string) (model.QualityCheckStatus, bool)
}

// lifecycle is the narrow slice of *lifecycle.Manager the control
// surface depends on for the admin reset-monitoring operation.
type lifecycle interface {
	ResetMonitoringData(ctx context.Context) error
}

// Surface wires the stores, the Scheduler, and the Lifecycle Manager
// behind one API.
type Surface struct {
	Datasets  postgres.DatasetStore
	Snapshots postgres.SnapshotStore
	Diffs     postgres.DiffStore
	Findings  postgres.FindingStore
	Scheduler scheduler
	Lifecycle lifecycle
}

// New constructs a Surface.
func New(datasets postgres.DatasetStore, snapshots postgres.SnapshotStore, diffs postgres.DiffStore, findings postgres.FindingStore, sched scheduler, lc lifecycle) *Surface {
	return &Surface{Datasets: datasets, Snapshots: snapshots, Diffs: diffs, Findings: findings, Scheduler: sched, Lifecycle: lc}
}

// DatasetInput is the create/update request shape, matching
// original_source/backend/api/v1/datasets.py's DatasetCreate/DatasetUpdate.
type DatasetInput struct {
	Name              string
	Description       string
	Host              string
	Port              int
	Database          string
	Schema            string
	Table             string
	GeometryColumn    string
	RequireTLS        bool
	CheckIntervalMins int
}

// CreateDataset registers a new dataset for monitoring.
func (s *Surface) CreateDataset(ctx context.Context, in DatasetInput) (model.Dataset, error) {
	if in.Name == "" {
		return model.Dataset{}, &errs.ValidationError{Field: "name", Reason: "required"}
	}
	if in.Host == "" || in.Database == "" || in.Table == "" {
		return model.Dataset{}, &errs.ValidationError{Field: "host/database/table", Reason: "required"}
	}
	if in.Schema == "" {
		in.Schema = "public"
	}
	if in.GeometryColumn == "" {
		in.GeometryColumn = "geom"
	}
	if in.CheckIntervalMins <= 0 {
		in.CheckIntervalMins = defaultCheckIntervalMins
	}
	now := time.Now().UTC()
	d := model.Dataset{
		ID:                uuid.NewString(),
		Name:              in.Name,
		Description:       in.Description,
		Host:              in.Host,
		Port:              in.Port,
		Database:          in.Database,
		Schema:            in.Schema,
		Table:             in.Table,
		GeometryColumn:    in.GeometryColumn,
		RequireTLS:        in.RequireTLS,
		CheckIntervalMins: in.CheckIntervalMins,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.Datasets.Insert(ctx, d); err != nil {
		return model.Dataset{}, err
	}
	return d, nil
}

// ListDatasets lists datasets, optionally restricted to active ones.
func (s *Surface) ListDatasets(ctx context.Context, activeOnly bool) ([]model.Dataset, error) {
	return s.Datasets.List(ctx, activeOnly)
}

// GetDataset fetches one dataset by id.
func (s *Surface) GetDataset(ctx context.Context, id string) (model.Dataset, error) {
	return s.Datasets.Get(ctx, id)
}

// UpdateDataset applies patch to dataset id, leaving nil fields
// unchanged.
func (s *Surface) UpdateDataset(ctx context.Context, id string, patch model.DatasetPatch) (model.Dataset, error) {
	return s.Datasets.Update(ctx, id, patch)
}

// DeactivateDataset soft-deletes a dataset, matching datasets.py's
// delete_dataset (is_active = false, rows preserved).
func (s *Surface) DeactivateDataset(ctx context.Context, id string) error {
	return s.Datasets.Deactivate(ctx, id)
}

// DatasetStats returns the comprehensive read-only projection
// datasets.py's get_dataset_stats exposes: snapshot count, diff
// stats, and a findings-by-category breakdown.
func (s *Surface) DatasetStats(ctx context.Context, id string) (model.DatasetStats, error) {
	d, err := s.Datasets.Get(ctx, id)
	if err != nil {
		return model.DatasetStats{}, err
	}
	total, err := s.Snapshots.Count(ctx, id)
	if err != nil {
		return model.DatasetStats{}, err
	}
	diffStats, err := s.Diffs.Stats(ctx, id)
	if err != nil {
		return model.DatasetStats{}, err
	}
	findings, err := s.Findings.Summarise(ctx, id)
	if err != nil {
		return model.DatasetStats{}, err
	}
	byCheck := make(map[model.FindingCategory]int, len(findings))
	for cat, byResult := range findings {
		n := 0
		for _, c := range byResult {
			n += c
		}
		byCheck[cat] = n
	}
	return model.DatasetStats{
		DatasetID:       id,
		TotalSnapshots:  total,
		LastCheckAt:     d.LastCheckAt,
		Diffs:           diffStats,
		FindingsByCheck: byCheck,
	}, nil
}

// ListDiffs lists diffs matching filter.
func (s *Surface) ListDiffs(ctx context.Context, filter model.DiffFilter) ([]model.Diff, error) {
	return s.Diffs.List(ctx, filter)
}

// DiffDetail is the diff-detail response shape, adding GeoJSON
// renderings of the diff's old/new geometry to the stored Diff row,
// matching diffs.py's get_diff_details.
type DiffDetail struct {
	model.Diff
	OldGeometryGeoJSON []byte
	NewGeometryGeoJSON []byte
}

// GetDiffDetail fetches one diff and, best-effort, the GeoJSON form of
// its old and new snapshot geometry. A side with no snapshot id (e.g.
// the new side of a deletion diff) is not looked up, and a snapshot
// lookup or decode failure is not fatal: in both cases the
// corresponding field is simply left nil.
func (s *Surface) GetDiffDetail(ctx context.Context, id string) (DiffDetail, error) {
	d, err := s.Diffs.Get(ctx, id)
	if err != nil {
		return DiffDetail{}, err
	}
	detail := DiffDetail{Diff: d}
	if d.OldSnapshotID != "" {
		if gj, err := s.snapshotGeoJSON(ctx, d.OldSnapshotID); err == nil {
			detail.OldGeometryGeoJSON = gj
		}
	}
	if d.NewSnapshotID != "" {
		if gj, err := s.snapshotGeoJSON(ctx, d.NewSnapshotID); err == nil {
			detail.NewGeometryGeoJSON = gj
		}
	}
	return detail, nil
}

func (s *Surface) snapshotGeoJSON(ctx context.Context, snapshotID string) ([]byte, error) {
	snap, err := s.Snapshots.Get(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	g, err := geo.Decode(snap.GeometryWKB)
	if err != nil {
		return nil, err
	}
	return geo.ToGeoJSON(g)
}

// ReviewDiff accepts or rejects one pending diff. status must be
// ACCEPTED or REJECTED; anything else, or a diff that is not
// PENDING, is a ValidationError.
func (s *Surface) ReviewDiff(ctx context.Context, id string, status model.ReviewStatus, reviewer string) error {
	if status != model.ReviewAccepted && status != model.ReviewRejected {
		return &errs.ValidationError{Field: "status", Reason: "must be ACCEPTED or REJECTED"}
	}
	return s.Diffs.UpdateReview(ctx, id, status, reviewer)
}

// BatchReviewDiffs accepts or rejects every diff in ids, all-or-
// nothing: if any id doesn't exist, or any fetched diff isn't
// PENDING, no update is applied and a ValidationError is returned.
// Grounded on diffs.py's batch_review_diffs, which performs the same
// pre-check before issuing any write.
func (s *Surface) BatchReviewDiffs(ctx context.Context, ids []string, status model.ReviewStatus, reviewer string) (int, error) {
	if status != model.ReviewAccepted && status != model.ReviewRejected {
		return 0, &errs.ValidationError{Field: "action", Reason: "must be ACCEPT or REJECT"}
	}
	if len(ids) == 0 {
		return 0, &errs.ValidationError{Field: "diff_ids", Reason: "required"}
	}
	found, err := s.Diffs.GetMany(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(found) != len(ids) {
		return 0, &errs.ValidationError{Field: "diff_ids", Reason: "one or more diffs not found"}
	}
	for _, d := range found {
		if d.Status != model.ReviewPending {
			return 0, &errs.ValidationError{Field: "diff_ids", Reason: "one or more diffs already reviewed"}
		}
	}
	return s.Diffs.BatchUpdateReview(ctx, ids, status, reviewer)
}

// SpatialDifference compares a diff's old and new snapshot geometry,
// per diffs.py's GET /{diff_id}/spatial-difference. Requires both
// sides to be present; a deletion or pure-NEW diff has only one side
// and returns a ValidationError.
func (s *Surface) SpatialDifference(ctx context.Context, diffID string) (geo.Difference, error) {
	d, err := s.Diffs.Get(ctx, diffID)
	if err != nil {
		return geo.Difference{}, err
	}
	if d.OldSnapshotID == "" || d.NewSnapshotID == "" {
		return geo.Difference{}, &errs.ValidationError{Field: "diff_id", Reason: "diff has no geometry on both sides to compare"}
	}
	oldSnap, err := s.Snapshots.Get(ctx, d.OldSnapshotID)
	if err != nil {
		return geo.Difference{}, err
	}
	newSnap, err := s.Snapshots.Get(ctx, d.NewSnapshotID)
	if err != nil {
		return geo.Difference{}, err
	}
	oldG, err := geo.Decode(oldSnap.GeometryWKB)
	if err != nil {
		return geo.Difference{}, err
	}
	newG, err := geo.Decode(newSnap.GeometryWKB)
	if err != nil {
		return geo.Difference{}, err
	}
	return geo.Compare(oldG, newG)
}

// PendingCount reports the pending-diff count for a dataset, or
// summed across all active datasets if datasetID is empty; pending
// diffs of inactive datasets are not counted in that case.
func (s *Surface) PendingCount(ctx context.Context, datasetID string) (int, error) {
	if datasetID != "" {
		return s.Diffs.CountPending(ctx, datasetID)
	}
	datasets, err := s.Datasets.List(ctx, true)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, d := range datasets {
		n, err := s.Diffs.CountPending(ctx, d.ID)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// RequestQualityCheck dispatches a background Spatial Test Engine run
// for dataset id through the Scheduler, per spec.md §4.H's refusal
// rules (no baseline yet, already running).
func (s *Surface) RequestQualityCheck(ctx context.Context, id string) error {
	return s.Scheduler.RequestQualityCheck(ctx, id)
}

// PollQualityCheck returns the current quality-check status for
// dataset id.
func (s *Surface) PollQualityCheck(id string) (model.QualityCheckStatus, bool) {
	return s.Scheduler.PollQualityCheck(id)
}

// ResetDatasetMonitoring nulls one dataset's monitoring fields,
// without touching its snapshots/diffs/findings — the targeted
// per-dataset counterpart to the Lifecycle Manager's smart restart.
func (s *Surface) ResetDatasetMonitoring(ctx context.Context, id string) error {
	return s.Datasets.ResetMonitoringFields(ctx, id)
}

// ResetMonitoringData clears derived run state across every dataset
// and nulls monitoring fields for all of them, preserving every
// dataset registration. Matches monitoring.py's POST /reset-monitoring.
func (s *Surface) ResetMonitoringData(ctx context.Context) error {
	return s.Lifecycle.ResetMonitoringData(ctx)
}
