// Package h3cell buckets snapshot centroids into H3 cells, narrowing
// the DUPLICATE category tester's "near" sub-check candidate set
// before the exact ST_Equals comparison runs.
//
// Grounded on the teacher's internal/mapper/h3 package (h3.LatLng
// construction, resolution validation), generalized from "which cells
// does this polygon cover" to "which single cell does this point fall
// in".
package h3cell

import (
	"fmt"

	h3 "github.com/uber/h3-go/v4"

	"github.com/paulmach/orb"
)

// DefaultResolution buckets at roughly city-block granularity, fine
// enough to keep near-duplicate candidate sets small without missing
// features that are spatially equal but straddle a cell boundary after
// reprojection rounding (the exact ST_Equals check still runs on the
// narrowed set).
const DefaultResolution = 9

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("h3cell: invalid resolution %d (must be 0..15)", res)
	}
	return nil
}

// ForPoint returns the H3 cell index (as its canonical string form)
// containing pt, at the given resolution.
func ForPoint(pt orb.Point, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	cell := h3.LatLngToCell(h3.LatLng{Lat: pt.Y(), Lng: pt.X()}, res)
	return cell.String(), nil
}
