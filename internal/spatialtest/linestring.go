package spatialtest

import (
	"context"
	"math"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/model"
)

// LineStringTester adds shape-analysis findings specific to linear
// geometries not already produced by TopologyTester/AreaTester.
type LineStringTester struct{}

func (LineStringTester) Category() model.FindingCategory { return model.CategoryLineString }

func (LineStringTester) Test(_ context.Context, snap model.Snapshot, s geo.Scalars, th config.Thresholds) ([]model.Finding, error) {
	if !isLinearType(s.GeomType) {
		return nil, nil
	}

	var out []model.Finding

	if s.NumPoints == minLineStringPoints {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryLineString, model.ResultWarning,
			"linestring is a single straight segment", map[string]any{"num_points": s.NumPoints}))
	}

	w := s.MaxX - s.MinX
	h := s.MaxY - s.MinY
	straightLineDistance := straightLineLength(w, h)
	if s.Length > 0 && straightLineDistance > 0 {
		sinuosity := s.Length / straightLineDistance
		if th.CompactnessThreshold > 0 && sinuosity > 1 && sinuosity < 1+th.CompactnessThreshold {
			out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryLineString, model.ResultPass,
				"linestring is nearly a straight path end-to-end", map[string]any{"sinuosity": sinuosity}))
		}
	}

	if len(out) == 0 {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryLineString, model.ResultPass, "no linestring-specific issues found", nil))
	}
	return out, nil
}

const minLineStringPoints = 2

func straightLineLength(dx, dy float64) float64 {
	return math.Hypot(dx, dy)
}
