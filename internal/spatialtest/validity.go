package spatialtest

import (
	"context"
	"math"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/model"
)

// ValidityTester reflects the server-reported validity flag, plus
// extra FAIL findings for out-of-bound coordinates, NaN/infinite
// coordinates, below-minimum point counts, and degenerate geometries;
// a WARNING for an unrecognised geometry type.
type ValidityTester struct{}

func (ValidityTester) Category() model.FindingCategory { return model.CategoryValidity }

func (ValidityTester) Test(_ context.Context, snap model.Snapshot, s geo.Scalars, th config.Thresholds) ([]model.Finding, error) {
	var out []model.Finding

	if s.IsValid {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryValidity, model.ResultPass, "geometry is valid", nil))
	} else {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryValidity, model.ResultFail, s.ValidityReason, map[string]any{"reason": s.ValidityReason}))
	}

	if max := th.MaxCoordinateMagnitude; max > 0 {
		if math.Abs(s.MinX) > max || math.Abs(s.MaxX) > max || math.Abs(s.MinY) > max || math.Abs(s.MaxY) > max {
			out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryValidity, model.ResultFail,
				"coordinate extreme exceeds configured magnitude",
				map[string]any{"min_x": s.MinX, "max_x": s.MaxX, "min_y": s.MinY, "max_y": s.MaxY, "max_magnitude": max}))
		}
	}

	if hasNonFinite(s) {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryValidity, model.ResultFail, "geometry contains NaN or infinite coordinates", nil))
	}

	if min, ok := minPointsFor(s.GeomType); ok && s.NumPoints < min {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryValidity, model.ResultFail,
			"point count below type minimum", map[string]any{"num_points": s.NumPoints, "minimum": min}))
	}

	if !isPointType(s.GeomType) && s.NumPoints <= 1 {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryValidity, model.ResultFail, "degenerate geometry with at most one point", nil))
	}

	if !recognisedGeomType(s.GeomType) {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryValidity, model.ResultWarning, "unrecognised geometry type", map[string]any{"geom_type": s.GeomType}))
	}

	return out, nil
}

func hasNonFinite(s geo.Scalars) bool {
	vals := []float64{s.MinX, s.MaxX, s.MinY, s.MaxY, s.Area, s.Length}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

func minPointsFor(geomType string) (int, bool) {
	switch {
	case isPolygonType(geomType):
		return 4, true
	case isLinearType(geomType):
		return 2, true
	case isPointType(geomType):
		return 1, true
	default:
		return 0, false
	}
}

func recognisedGeomType(geomType string) bool {
	switch geomType {
	case "POINT", "MULTIPOINT", "LINESTRING", "MULTILINESTRING", "POLYGON", "MULTIPOLYGON", "GEOMETRYCOLLECTION":
		return true
	default:
		return false
	}
}
