package controlsurface

import (
	"context"
	"errors"
	"testing"

	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/hash"
	"github.com/kvarga/spatialwatch/internal/model"
	"github.com/kvarga/spatialwatch/internal/store/postgres"
)

type fakeDatasets struct {
	datasets map[string]model.Dataset
}

func newFakeDatasets() *fakeDatasets { return &fakeDatasets{datasets: map[string]model.Dataset{}} }

func (f *fakeDatasets) Insert(ctx context.Context, d model.Dataset) error {
	f.datasets[d.ID] = d
	return nil
}
func (f *fakeDatasets) Get(ctx context.Context, id string) (model.Dataset, error) {
	d, ok := f.datasets[id]
	if !ok {
		return model.Dataset{}, &errs.ValidationError{Field: "dataset_id", Reason: "not found"}
	}
	return d, nil
}
func (f *fakeDatasets) List(ctx context.Context, activeOnly bool) ([]model.Dataset, error) {
	var out []model.Dataset
	for _, d := range f.datasets {
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
func (f *fakeDatasets) Update(ctx context.Context, id string, patch model.DatasetPatch) (model.Dataset, error) {
	d, ok := f.datasets[id]
	if !ok {
		return model.Dataset{}, &errs.ValidationError{Field: "dataset_id", Reason: "not found"}
	}
	if patch.Name != nil {
		d.Name = *patch.Name
	}
	f.datasets[id] = d
	return d, nil
}
func (f *fakeDatasets) Deactivate(ctx context.Context, id string) error {
	d, ok := f.datasets[id]
	if !ok {
		return &errs.ValidationError{Field: "dataset_id", Reason: "not found"}
	}
	d.Active = false
	f.datasets[id] = d
	return nil
}
func (f *fakeDatasets) RecordCheckResult(ctx context.Context, id string, status model.ConnectionStatus, checkErr string) error {
	return nil
}
func (f *fakeDatasets) ResetMonitoringFields(ctx context.Context, id string) error { return nil }
func (f *fakeDatasets) ResetAllMonitoringFields(ctx context.Context) error         { return nil }

var _ postgres.DatasetStore = (*fakeDatasets)(nil)

type fakeDiffs struct {
	diffs map[string]model.Diff
}

func newFakeDiffs() *fakeDiffs { return &fakeDiffs{diffs: map[string]model.Diff{}} }

func (f *fakeDiffs) Insert(ctx context.Context, q postgres.Queryer, d model.Diff) error {
	f.diffs[d.ID] = d
	return nil
}
func (f *fakeDiffs) List(ctx context.Context, filter model.DiffFilter) ([]model.Diff, error) {
	var out []model.Diff
	for _, d := range f.diffs {
		out = append(out, d)
	}
	return out, nil
}
func (f *fakeDiffs) Get(ctx context.Context, id string) (model.Diff, error) {
	d, ok := f.diffs[id]
	if !ok {
		return model.Diff{}, &errs.ValidationError{Field: "diff_id", Reason: "not found"}
	}
	return d, nil
}
func (f *fakeDiffs) GetMany(ctx context.Context, ids []string) ([]model.Diff, error) {
	var out []model.Diff
	for _, id := range ids {
		if d, ok := f.diffs[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}
func (f *fakeDiffs) UpdateReview(ctx context.Context, id string, status model.ReviewStatus, reviewer string) error {
	d, ok := f.diffs[id]
	if !ok || d.Status != model.ReviewPending {
		return &errs.ValidationError{Field: "diff_id", Reason: "not found or not pending"}
	}
	d.Status = status
	d.ReviewedBy = reviewer
	f.diffs[id] = d
	return nil
}
func (f *fakeDiffs) BatchUpdateReview(ctx context.Context, ids []string, status model.ReviewStatus, reviewer string) (int, error) {
	n := 0
	for _, id := range ids {
		d, ok := f.diffs[id]
		if !ok || d.Status != model.ReviewPending {
			continue
		}
		d.Status = status
		d.ReviewedBy = reviewer
		f.diffs[id] = d
		n++
	}
	return n, nil
}
func (f *fakeDiffs) CountPending(ctx context.Context, datasetID string) (int, error) {
	n := 0
	for _, d := range f.diffs {
		if d.DatasetID == datasetID && d.Status == model.ReviewPending {
			n++
		}
	}
	return n, nil
}
func (f *fakeDiffs) ExistsPendingForGeometry(ctx context.Context, q postgres.Queryer, datasetID string, h hash.Digest) (bool, error) {
	return false, nil
}
func (f *fakeDiffs) Stats(ctx context.Context, datasetID string) (model.DiffStats, error) {
	return model.DiffStats{}, nil
}

var _ postgres.DiffStore = (*fakeDiffs)(nil)

func TestBatchReviewDiffsRejectsUnknownAction(t *testing.T) {
	s := New(newFakeDatasets(), nil, newFakeDiffs(), nil, nil, nil)
	_, err := s.BatchReviewDiffs(context.Background(), []string{"d1"}, "MAYBE", "alice")
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestBatchReviewDiffsRejectsWhenAnyIDMissing(t *testing.T) {
	diffs := newFakeDiffs()
	diffs.diffs["d1"] = model.Diff{ID: "d1", DatasetID: "ds-1", Status: model.ReviewPending}
	s := New(newFakeDatasets(), nil, diffs, nil, nil, nil)

	n, err := s.BatchReviewDiffs(context.Background(), []string{"d1", "missing"}, model.ReviewAccepted, "alice")
	if err == nil {
		t.Fatalf("expected error for missing id")
	}
	if n != 0 {
		t.Fatalf("expected 0 updates on all-or-nothing failure, got %d", n)
	}
	if diffs.diffs["d1"].Status != model.ReviewPending {
		t.Fatalf("d1 must not be updated when the batch is rejected")
	}
}

func TestBatchReviewDiffsRejectsWhenAnyNotPending(t *testing.T) {
	diffs := newFakeDiffs()
	diffs.diffs["d1"] = model.Diff{ID: "d1", DatasetID: "ds-1", Status: model.ReviewPending}
	diffs.diffs["d2"] = model.Diff{ID: "d2", DatasetID: "ds-1", Status: model.ReviewAccepted}
	s := New(newFakeDatasets(), nil, diffs, nil, nil, nil)

	_, err := s.BatchReviewDiffs(context.Background(), []string{"d1", "d2"}, model.ReviewRejected, "alice")
	if err == nil {
		t.Fatalf("expected error: d2 is already reviewed")
	}
	if diffs.diffs["d1"].Status != model.ReviewPending {
		t.Fatalf("d1 must not be updated when the batch is rejected")
	}
}

func TestBatchReviewDiffsAppliesAllWhenValid(t *testing.T) {
	diffs := newFakeDiffs()
	diffs.diffs["d1"] = model.Diff{ID: "d1", DatasetID: "ds-1", Status: model.ReviewPending}
	diffs.diffs["d2"] = model.Diff{ID: "d2", DatasetID: "ds-1", Status: model.ReviewPending}
	s := New(newFakeDatasets(), nil, diffs, nil, nil, nil)

	n, err := s.BatchReviewDiffs(context.Background(), []string{"d1", "d2"}, model.ReviewAccepted, "alice")
	if err != nil {
		t.Fatalf("batch review: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 updates, got %d", n)
	}
	if diffs.diffs["d1"].Status != model.ReviewAccepted || diffs.diffs["d2"].Status != model.ReviewAccepted {
		t.Fatalf("expected both diffs accepted")
	}
}

func TestReviewDiffRejectsUnknownStatus(t *testing.T) {
	s := New(newFakeDatasets(), nil, newFakeDiffs(), nil, nil, nil)
	err := s.ReviewDiff(context.Background(), "d1", "PENDING", "alice")
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateDatasetRejectsMissingRequiredFields(t *testing.T) {
	s := New(newFakeDatasets(), nil, newFakeDiffs(), nil, nil, nil)
	_, err := s.CreateDataset(context.Background(), DatasetInput{Name: "parcels"})
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateDatasetAppliesDefaults(t *testing.T) {
	datasets := newFakeDatasets()
	s := New(datasets, nil, newFakeDiffs(), nil, nil, nil)

	d, err := s.CreateDataset(context.Background(), DatasetInput{
		Name: "parcels", Host: "db.internal", Database: "gis", Table: "parcels",
	})
	if err != nil {
		t.Fatalf("create dataset: %v", err)
	}
	if d.Schema != "public" || d.GeometryColumn != "geom" || d.CheckIntervalMins != defaultCheckIntervalMins {
		t.Fatalf("expected defaults applied, got %+v", d)
	}
	if !d.Active {
		t.Fatalf("expected new dataset to be active")
	}
	if _, ok := datasets.datasets[d.ID]; !ok {
		t.Fatalf("expected dataset persisted")
	}
}

func TestPendingCountAggregatesAcrossActiveDatasets(t *testing.T) {
	datasets := newFakeDatasets()
	datasets.datasets["ds-1"] = model.Dataset{ID: "ds-1", Active: true}
	datasets.datasets["ds-2"] = model.Dataset{ID: "ds-2", Active: true}
	diffs := newFakeDiffs()
	diffs.diffs["d1"] = model.Diff{ID: "d1", DatasetID: "ds-1", Status: model.ReviewPending}
	diffs.diffs["d2"] = model.Diff{ID: "d2", DatasetID: "ds-2", Status: model.ReviewPending}
	diffs.diffs["d3"] = model.Diff{ID: "d3", DatasetID: "ds-2", Status: model.ReviewAccepted}
	s := New(datasets, nil, diffs, nil, nil, nil)

	n, err := s.PendingCount(context.Background(), "")
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pending across datasets, got %d", n)
	}
}

func TestSpatialDifferenceRejectsOneSidedDiff(t *testing.T) {
	diffs := newFakeDiffs()
	diffs.diffs["d1"] = model.Diff{ID: "d1", DatasetID: "ds-1", Type: model.DiffNew, NewSnapshotID: "snap-1"}
	s := New(newFakeDatasets(), nil, diffs, nil, nil, nil)

	_, err := s.SpatialDifference(context.Background(), "d1")
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for one-sided diff, got %v", err)
	}
}
