package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/kvarga/spatialwatch/internal/hash"
	"github.com/kvarga/spatialwatch/internal/model"
)

func TestSnapshotStoreInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	store := NewSnapshotStore(mock)

	snap := model.Snapshot{
		ID:             "snap-1",
		DatasetID:      "ds-1",
		GeometryHash:   hash.Geometry([]byte("geom")),
		AttributesHash: hash.Attributes(map[string]string{"a": "1"}),
		GeometryWKB:    []byte("geom"),
		Attributes:     map[string]string{"a": "1"},
		CreatedAt:      time.Now(),
	}
	snap.CompositeHash = hash.Composite(snap.GeometryHash, snap.AttributesHash)

	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs(snap.ID, snap.DatasetID, snap.SourceID, snap.GeometryHash[:], snap.AttributesHash[:],
			snap.CompositeHash[:], snap.GeometryWKB, pgxmock.AnyArg(), snap.H3Cell, snap.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.Insert(context.Background(), mock, snap); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSnapshotStoreCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	store := NewSnapshotStore(mock)

	mock.ExpectQuery("SELECT count").
		WithArgs("ds-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.Count(context.Background(), "ds-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSnapshotStoreGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	store := NewSnapshotStore(mock)
	cols := []string{"id", "dataset_id", "source_id", "geometry_hash", "attributes_hash",
		"composite_hash", "geometry", "attributes", "h3_cell", "created_at"}

	mock.ExpectQuery("SELECT id, dataset_id, source_id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(cols))

	_, err = store.Get(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected not-found error")
	}
}
