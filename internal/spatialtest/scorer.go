// Package spatialtest implements the Spatial Test Engine: a runner
// that dispatches to category testers over server-derived scalars, and
// the confidence scorer shared with the Change Detector.
//
// Grounded on the teacher's internal/aggregate/geojsonagg package: a
// small interface (there, aggregate.Interface's Merge; here, Tester's
// Test) implemented by independent stages consuming a shared input and
// accumulating into one output collection.
package spatialtest

import (
	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/geo"
)

// Score computes the confidence scorer spec.md §4.G describes: an
// escalating-tiers score, a multiplicative complexity discount, and a
// "problematic" verdict that also short-circuits on any of four
// critical conditions. This is the single shared predicate spec.md §9
// calls for, replacing the source's two parallel implementations.
func Score(s geo.Scalars, th config.Thresholds) (score float64, problematic bool) {
	score = th.DefaultConfidence
	if score <= 0 {
		score = 0.5
	}

	critical := false

	if !s.IsValid {
		score = 0.95
		critical = true
	}

	if degenerate, severity := degeneracy(s); degenerate {
		if severity > score {
			score = severity
		}
		critical = true
	}

	if s.IsValid && !s.IsSimple {
		if 0.90 > score {
			score = 0.90
		}
		critical = true
	}

	if !s.TopologicallyClean {
		if 0.85 > score {
			score = 0.85
		}
		critical = true
	}

	zeroOrNegative := isZeroOrNegativeSize(s)
	if zeroOrNegative {
		if 0.90 > score {
			score = 0.90
		}
		critical = true
	}

	if exceedsMagnitude(s, th.MaxCoordinateMagnitude) {
		if 0.75 > score {
			score = 0.75
		}
	}

	if exceedsLargeThreshold(s, th) {
		if isPolygonType(s.GeomType) {
			if 0.70 > score {
				score = 0.70
			}
		} else if isLinearType(s.GeomType) {
			if 0.65 > score {
				score = 0.65
			}
		}
	}

	if s.NumPoints > th.VeryComplexPointCount {
		score *= 0.8
	} else if s.NumPoints > th.ComplexPointCount {
		score *= 0.9
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	threshold := th.ProblematicThreshold
	if threshold <= 0 {
		threshold = 0.75
	}
	problematic = critical || score >= threshold
	return score, problematic
}

// degeneracy reports whether s has too few points for its geometry
// type (polygon: <4, linestring: <2, point: !=1), and the severity
// tier to escalate to: 0.95 for a non-point geometry with at most one
// point, 0.90 for a polygon with two or three points, 0.85 for a point
// geometry whose count is not exactly one.
func degeneracy(s geo.Scalars) (bool, float64) {
	switch {
	case isPolygonType(s.GeomType):
		if s.NumPoints <= 1 {
			return true, 0.95
		}
		if s.NumPoints < 4 {
			return true, 0.90
		}
	case isLinearType(s.GeomType):
		if s.NumPoints <= 1 {
			return true, 0.95
		}
		if s.NumPoints < 2 {
			return true, 0.90
		}
	case isPointType(s.GeomType):
		if s.NumPoints != 1 {
			return true, 0.85
		}
	default:
		if s.NumPoints <= 1 {
			return true, 0.95
		}
	}
	return false, 0
}

func isZeroOrNegativeSize(s geo.Scalars) bool {
	switch {
	case isPolygonType(s.GeomType):
		return s.Area <= 0
	case isLinearType(s.GeomType):
		return s.Length <= 0
	default:
		return false
	}
}

func exceedsMagnitude(s geo.Scalars, max float64) bool {
	if max <= 0 {
		return false
	}
	abs := func(f float64) float64 {
		if f < 0 {
			return -f
		}
		return f
	}
	return abs(s.MinX) > max || abs(s.MaxX) > max || abs(s.MinY) > max || abs(s.MaxY) > max
}

func exceedsLargeThreshold(s geo.Scalars, th config.Thresholds) bool {
	switch {
	case isPolygonType(s.GeomType):
		return th.LargeAreaThreshold > 0 && s.Area > th.LargeAreaThreshold
	case isLinearType(s.GeomType):
		return th.LargeLengthThreshold > 0 && s.Length > th.LargeLengthThreshold
	default:
		return false
	}
}

func isPolygonType(geomType string) bool {
	return geomType == "POLYGON" || geomType == "MULTIPOLYGON"
}

func isLinearType(geomType string) bool {
	return geomType == "LINESTRING" || geomType == "MULTILINESTRING"
}

func isPointType(geomType string) bool {
	return geomType == "POINT" || geomType == "MULTIPOINT"
}
