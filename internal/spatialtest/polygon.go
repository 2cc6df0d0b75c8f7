package spatialtest

import (
	"context"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/model"
)

// PolygonTester adds shape-analysis findings not already produced by
// TopologyTester/AreaTester (spec.md §4.G, type-specific category):
// minimum-vertex-count rings and a low area-to-bounding-box fill ratio.
// Ring orientation is TopologyTester's concern, not this tester's.
type PolygonTester struct{}

func (PolygonTester) Category() model.FindingCategory { return model.CategoryPolygon }

func (PolygonTester) Test(_ context.Context, snap model.Snapshot, s geo.Scalars, th config.Thresholds) ([]model.Finding, error) {
	if !isPolygonType(s.GeomType) {
		return nil, nil
	}

	var out []model.Finding

	if s.NumPoints == minPolygonPoints {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryPolygon, model.ResultWarning,
			"polygon has the minimum possible vertex count for its ring", map[string]any{"num_points": s.NumPoints}))
	}

	if s.Area > 0 {
		w := s.MaxX - s.MinX
		h := s.MaxY - s.MinY
		if w > 0 && h > 0 {
			bboxFill := s.Area / (w * h)
			if bboxFill < th.CompactnessThreshold {
				out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryPolygon, model.ResultWarning,
					"polygon area is a small fraction of its bounding box", map[string]any{"bbox_fill_ratio": bboxFill}))
			}
		}
	}

	if len(out) == 0 {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryPolygon, model.ResultPass, "no polygon-specific issues found", nil))
	}
	return out, nil
}

const minPolygonPoints = 4
