// Package geo adapts geometries between the wire (well-known binary,
// as emitted by the remote PostGIS source and the local store) and the
// in-process orb representation used for GeoJSON diff details, the
// spatial-difference helper, and the Change Detector's H3 centroid
// bucketing of new snapshots.
//
// The teacher's internal/core/ogc/geojsonwkt.go converts GeoJSON to WKT
// by hand, one direction only. This package generalises that to a full
// WKB round trip using paulmach/orb, the geometry-encoding library
// attested across the example pack (see DESIGN.md).
package geo

import (
	"encoding/binary"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Scalars holds the server-derived columns the External Source Reader's
// query returns for one feature (spec.md §6's remote-source query
// aliases). These are computed by PostGIS, not recomputed client-side.
type Scalars struct {
	WKB               []byte
	GeometryHash      string // hex digest as computed server-side, informational only
	IsValid           bool
	ValidityReason    string
	IsSimple          bool
	Area              float64
	Length            float64
	NumPoints         int
	GeomType          string
	IsCCWOriented     *bool // nil for non-polygons
	TopologicallyClean bool
	MinX, MaxX        float64
	MinY, MaxY        float64
}

// Decode parses a well-known binary geometry into its in-process form.
func Decode(b []byte) (orb.Geometry, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("geo: empty WKB")
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("geo: decode WKB: %w", err)
	}
	return g, nil
}

// Encode renders a geometry to its canonical (little-endian) well-known
// binary form, the same encoding the Hasher digests.
func Encode(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("geo: nil geometry")
	}
	b, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("geo: encode WKB: %w", err)
	}
	return b, nil
}

// ToGeoJSON renders a geometry as a GeoJSON geometry object, for diff
// detail responses in the control surface.
func ToGeoJSON(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	gj := geojson.NewGeometry(g)
	b, err := gj.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("geo: marshal geojson: %w", err)
	}
	return b, nil
}

// Centroid approximates a geometry's centroid as the center of its
// bounding box. Used only for H3 cell bucketing (a coarse spatial
// index, not an exact geometric property), not for area/length scalars
// (those come from the remote source's server-side computation).
func Centroid(g orb.Geometry) (orb.Point, bool) {
	if g == nil {
		return orb.Point{}, false
	}
	b := g.Bound()
	if b.IsEmpty() {
		return orb.Point{}, false
	}
	return b.Center(), true
}

// Difference is the pure-function result of comparing two geometries
// for the supplemental "spatial-difference" control-surface operation
// (grounded on original_source/backend/services/geometry_service.py's
// calculate_geometry_difference).
type Difference struct {
	CentroidDX float64
	CentroidDY float64
	AreaDelta  float64
	LengthDelta float64
}

// Compare computes the translation between two geometries' centroids
// and, for polygons/linestrings, the area/length delta between them.
func Compare(oldG, newG orb.Geometry) (Difference, error) {
	if oldG == nil || newG == nil {
		return Difference{}, fmt.Errorf("geo: compare requires two non-nil geometries")
	}
	oc, ok1 := Centroid(oldG)
	nc, ok2 := Centroid(newG)
	if !ok1 || !ok2 {
		return Difference{}, fmt.Errorf("geo: empty geometry bound")
	}
	d := Difference{
		CentroidDX: nc.X() - oc.X(),
		CentroidDY: nc.Y() - oc.Y(),
	}
	d.AreaDelta = areaOf(newG) - areaOf(oldG)
	d.LengthDelta = lengthOf(newG) - lengthOf(oldG)
	return d, nil
}

func areaOf(g orb.Geometry) float64 {
	switch v := g.(type) {
	case orb.Polygon:
		return planar.Area(v)
	case orb.MultiPolygon:
		return planar.MultiPolygonArea(v)
	default:
		return 0
	}
}

func lengthOf(g orb.Geometry) float64 {
	switch v := g.(type) {
	case orb.LineString:
		return planar.Length(v)
	case orb.MultiLineString:
		return planar.MultiLineStringLength(v)
	default:
		return 0
	}
}
