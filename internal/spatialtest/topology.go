package spatialtest

import (
	"context"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/model"
)

// TopologyTester reflects the simplicity flag, the combined
// topologically-clean flag (with a breakdown of which underlying
// condition failed), a clockwise-exterior-ring warning for polygons,
// and a complexity-cap warning on point count.
type TopologyTester struct{}

func (TopologyTester) Category() model.FindingCategory { return model.CategoryTopology }

func (TopologyTester) Test(_ context.Context, snap model.Snapshot, s geo.Scalars, th config.Thresholds) ([]model.Finding, error) {
	var out []model.Finding

	if s.IsSimple {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryTopology, model.ResultPass, "geometry is simple", nil))
	} else {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryTopology, model.ResultFail, "geometry is not simple (self-intersects)", nil))
	}

	if !s.TopologicallyClean {
		var failed []string
		if !s.IsValid {
			failed = append(failed, "validity")
		}
		if !s.IsSimple {
			failed = append(failed, "simplicity")
		}
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryTopology, model.ResultFail,
			"geometry is not topologically clean", map[string]any{"failed": failed}))
	}

	if isPolygonType(s.GeomType) && s.IsCCWOriented != nil && !*s.IsCCWOriented {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryTopology, model.ResultWarning, "exterior ring is clockwise", nil))
	}

	if th.ComplexPointCount > 0 && s.NumPoints > th.ComplexPointCount {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryTopology, model.ResultWarning,
			"point count exceeds complexity cap", map[string]any{"num_points": s.NumPoints, "cap": th.ComplexPointCount}))
	}

	return out, nil
}
