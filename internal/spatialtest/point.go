package spatialtest

import (
	"context"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/model"
)

// PointTester adds findings specific to point geometries. A point
// geometry with fewer than one point is already flagged by
// ValidityTester; this category is kept for coverage parity with
// spec.md §4.G's enumerated categories and future point-specific
// checks (e.g. coordinate precision).
type PointTester struct{}

func (PointTester) Category() model.FindingCategory { return model.CategoryPoint }

func (PointTester) Test(_ context.Context, snap model.Snapshot, s geo.Scalars, _ config.Thresholds) ([]model.Finding, error) {
	if !isPointType(s.GeomType) {
		return nil, nil
	}
	return []model.Finding{
		newFinding(snap.DatasetID, snap.ID, model.CategoryPoint, model.ResultPass, "point geometry recognised", nil),
	}, nil
}
