package spatialtest

import (
	"context"
	"math"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/model"
)

// AreaTester checks size (area for polygons, length for linear
// geometries) against configured small/large thresholds, and two
// cross-metric checks: compactness and vertex density.
type AreaTester struct{}

func (AreaTester) Category() model.FindingCategory { return model.CategoryArea }

func (AreaTester) Test(_ context.Context, snap model.Snapshot, s geo.Scalars, th config.Thresholds) ([]model.Finding, error) {
	var out []model.Finding

	switch {
	case isPolygonType(s.GeomType):
		out = append(out, sizeFindings(snap, s.Area, th.ZeroAreaEpsilon, th.SmallAreaThreshold, th.LargeAreaThreshold, "area")...)
		if s.Area > 0 {
			perimeter := approxPerimeter(s)
			if perimeter > 0 {
				compactness := s.Area / (perimeter * perimeter)
				if th.CompactnessThreshold > 0 && compactness < th.CompactnessThreshold {
					out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryArea, model.ResultWarning,
						"polygon is narrow relative to its perimeter", map[string]any{"compactness": compactness}))
				}
			}
			out = append(out, densityFinding(snap, float64(s.NumPoints), s.Area, th)...)
		}
	case isLinearType(s.GeomType):
		out = append(out, sizeFindings(snap, s.Length, 0, th.SmallLengthThreshold, th.LargeLengthThreshold, "length")...)
		if s.Length > 0 {
			out = append(out, densityFinding(snap, float64(s.NumPoints), s.Length, th)...)
		}
	}

	return out, nil
}

func sizeFindings(snap model.Snapshot, value, zeroEpsilon, small, large float64, metric string) []model.Finding {
	var out []model.Finding
	if value <= zeroEpsilon {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryArea, model.ResultFail,
			metric+" is zero or negative", map[string]any{metric: value}))
		return out
	}
	if small > 0 && value < small {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryArea, model.ResultWarning,
			metric+" is below the small-"+metric+" threshold", map[string]any{metric: value, "threshold": small}))
	}
	if large > 0 && value > large {
		out = append(out, newFinding(snap.DatasetID, snap.ID, model.CategoryArea, model.ResultWarning,
			metric+" is above the large-"+metric+" threshold", map[string]any{metric: value, "threshold": large}))
	}
	return out
}

func densityFinding(snap model.Snapshot, numPoints, size float64, th config.Thresholds) []model.Finding {
	if size <= 0 {
		return nil
	}
	density := numPoints / size
	if th.DensityMin > 0 && density < th.DensityMin {
		return []model.Finding{newFinding(snap.DatasetID, snap.ID, model.CategoryArea, model.ResultWarning,
			"vertex density below configured band", map[string]any{"density": density, "min": th.DensityMin})}
	}
	if th.DensityMax > 0 && density > th.DensityMax {
		return []model.Finding{newFinding(snap.DatasetID, snap.ID, model.CategoryArea, model.ResultWarning,
			"vertex density above configured band", map[string]any{"density": density, "max": th.DensityMax})}
	}
	return nil
}

// approxPerimeter estimates a polygon's perimeter from its bounding
// box when the reader doesn't surface a true perimeter scalar; this is
// a coarse proxy sufficient for the compactness warning, not an exact
// geometric property.
func approxPerimeter(s geo.Scalars) float64 {
	w := math.Abs(s.MaxX - s.MinX)
	h := math.Abs(s.MaxY - s.MinY)
	return 2 * (w + h)
}
