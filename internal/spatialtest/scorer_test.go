package spatialtest

import (
	"testing"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/geo"
)

func defaultThresholds() config.Thresholds {
	return config.FromEnv().Thresholds
}

func TestScoreInvalidGeometryIsAlwaysProblematic(t *testing.T) {
	th := defaultThresholds()
	s := geo.Scalars{GeomType: "POLYGON", IsValid: false, IsSimple: true, TopologicallyClean: false, NumPoints: 10, Area: 5}
	score, problematic := Score(s, th)
	if score < 0.95 {
		t.Fatalf("expected score >= 0.95, got %v", score)
	}
	if !problematic {
		t.Fatalf("invalid geometry must be problematic")
	}
}

func TestScoreDegenerateNonPointShortCircuits(t *testing.T) {
	th := defaultThresholds()
	s := geo.Scalars{GeomType: "LINESTRING", IsValid: true, IsSimple: true, TopologicallyClean: true, NumPoints: 1, Length: 0}
	_, problematic := Score(s, th)
	if !problematic {
		t.Fatalf("feature with <=1 point on non-point type must short-circuit to problematic")
	}
}

func TestScoreModeratePolygonBelowThreshold(t *testing.T) {
	th := defaultThresholds()
	s := geo.Scalars{
		GeomType: "POLYGON", IsValid: true, IsSimple: true, TopologicallyClean: true,
		NumPoints: 5, Area: 100, MinX: 0, MaxX: 10, MinY: 0, MaxY: 10,
	}
	score, problematic := Score(s, th)
	if problematic {
		t.Fatalf("moderate valid polygon should not be problematic, got score %v", score)
	}
}

func TestScoreClampedToUnitInterval(t *testing.T) {
	th := defaultThresholds()
	th.VeryComplexPointCount = 1
	s := geo.Scalars{GeomType: "POLYGON", IsValid: false, IsSimple: false, TopologicallyClean: false, NumPoints: 100000, Area: -5}
	score, _ := Score(s, th)
	if score < 0 || score > 1 {
		t.Fatalf("score must be clamped to [0,1], got %v", score)
	}
}
