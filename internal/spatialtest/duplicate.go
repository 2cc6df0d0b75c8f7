package spatialtest

import (
	"context"
	"fmt"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/hash"
	"github.com/kvarga/spatialwatch/internal/model"
)

// DuplicateLookup is the narrow cross-feature read surface the
// DuplicateTester needs over the local store, grounded on the
// small-interface-over-store shape in the teacher's
// internal/cache/featurestore. The local store implements this by
// narrowing candidates with the snapshot's H3 cell bucket before
// issuing the exact PostGIS spatial-equality check.
type DuplicateLookup interface {
	// ExactMatches counts other snapshots in the dataset with an equal
	// geometry hash, returning up to 5 sample snapshot IDs.
	ExactMatches(ctx context.Context, datasetID, snapshotID string, h hash.Digest) (count int, sampleIDs []string, err error)
	// NearMatches counts other snapshots whose stored geometry is
	// spatially equal to this one but whose geometry hash differs.
	NearMatches(ctx context.Context, datasetID, snapshotID, h3Cell string, wkb []byte, geomHash hash.Digest) (count int, err error)
	// CompositeMatches counts other snapshots sharing the same
	// composite hash (identical geometry and attributes).
	CompositeMatches(ctx context.Context, datasetID, snapshotID string, h hash.Digest) (count int, err error)
}

// DuplicateTester runs the three DUPLICATE sub-checks spec.md §4.G
// names: exact, near, and composite matches against every other
// snapshot currently in the dataset.
type DuplicateTester struct {
	Lookup DuplicateLookup
}

func (DuplicateTester) Category() model.FindingCategory { return model.CategoryDuplicate }

func (t DuplicateTester) Test(ctx context.Context, snap model.Snapshot, _ geo.Scalars, _ config.Thresholds) ([]model.Finding, error) {
	if t.Lookup == nil {
		return nil, nil
	}

	var out []model.Finding

	exactCount, sampleIDs, err := t.Lookup.ExactMatches(ctx, snap.DatasetID, snap.ID, snap.GeometryHash)
	if err != nil {
		return nil, fmt.Errorf("spatialtest: duplicate exact-match lookup: %w", err)
	}
	if exactCount > 0 {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryDuplicate, model.ResultWarning,
			"exact geometry duplicate of another snapshot in this dataset",
			map[string]any{"count": exactCount, "sample_snapshot_ids": sampleIDs}))
	}

	nearCount, err := t.Lookup.NearMatches(ctx, snap.DatasetID, snap.ID, snap.H3Cell, snap.GeometryWKB, snap.GeometryHash)
	if err != nil {
		return nil, fmt.Errorf("spatialtest: duplicate near-match lookup: %w", err)
	}
	if nearCount > 0 {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryDuplicate, model.ResultWarning,
			"spatially equal to another snapshot with a different geometry hash",
			map[string]any{"count": nearCount}))
	}

	compositeCount, err := t.Lookup.CompositeMatches(ctx, snap.DatasetID, snap.ID, snap.CompositeHash)
	if err != nil {
		return nil, fmt.Errorf("spatialtest: duplicate composite-match lookup: %w", err)
	}
	if compositeCount > 0 {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryDuplicate, model.ResultFail,
			"identical geometry and attributes to another snapshot in this dataset",
			map[string]any{"count": compositeCount}))
	}

	if len(out) == 0 {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryDuplicate, model.ResultPass, "no duplicates found", nil))
	}

	return out, nil
}
