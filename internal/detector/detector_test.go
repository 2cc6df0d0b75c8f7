package detector

import (
	"testing"

	"github.com/kvarga/spatialwatch/internal/hash"
	"github.com/kvarga/spatialwatch/internal/model"
)

func TestClassifyNewWhenNoPriorGeometry(t *testing.T) {
	snap := model.Snapshot{ID: "snap-1", GeometryHash: hash.Geometry([]byte("geom"))}
	diff := classify("ds-1", snap, nil, 0.9)
	if diff.Type != model.DiffNew {
		t.Fatalf("expected NEW, got %s", diff.Type)
	}
	if diff.OldSnapshotID != "" {
		t.Fatalf("expected no old snapshot reference, got %q", diff.OldSnapshotID)
	}
	if !diff.GeometryChanged || diff.AttributesChanged {
		t.Fatalf("expected geometry_changed=true, attributes_changed=false, got %+v", diff)
	}
	if diff.NewSnapshotID != snap.ID {
		t.Fatalf("expected new snapshot reference %q, got %q", snap.ID, diff.NewSnapshotID)
	}
}

func TestClassifyUpdatedWhenPriorGeometryExists(t *testing.T) {
	prior := model.Snapshot{ID: "snap-old", GeometryHash: hash.Geometry([]byte("geom"))}
	snap := model.Snapshot{ID: "snap-new", GeometryHash: prior.GeometryHash}
	diff := classify("ds-1", snap, []model.Snapshot{prior}, 0.8)
	if diff.Type != model.DiffUpdated {
		t.Fatalf("expected UPDATED, got %s", diff.Type)
	}
	if diff.OldSnapshotID != prior.ID {
		t.Fatalf("expected old snapshot reference %q, got %q", prior.ID, diff.OldSnapshotID)
	}
	if diff.GeometryChanged || !diff.AttributesChanged {
		t.Fatalf("expected geometry_changed=false, attributes_changed=true, got %+v", diff)
	}
}

func TestCentroidCellInvalidWKBYieldsEmptyString(t *testing.T) {
	if cell := centroidCell(nil); cell != "" {
		t.Fatalf("expected empty cell for invalid wkb, got %q", cell)
	}
	if cell := centroidCell([]byte("not wkb")); cell != "" {
		t.Fatalf("expected empty cell for malformed wkb, got %q", cell)
	}
}
