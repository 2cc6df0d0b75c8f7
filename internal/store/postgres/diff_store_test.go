package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/kvarga/spatialwatch/internal/hash"
)

func TestDiffStoreExistsPendingForGeometry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	store := NewDiffStore(mock)
	h := hash.Geometry([]byte("geom"))

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ds-1", h[:]).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	got, err := store.ExistsPendingForGeometry(context.Background(), mock, "ds-1", h)
	if err != nil {
		t.Fatalf("exists pending: %v", err)
	}
	if !got {
		t.Fatalf("expected true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDiffStoreCountPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	store := NewDiffStore(mock)

	mock.ExpectQuery("SELECT count").
		WithArgs("ds-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	n, err := store.CountPending(context.Background(), "ds-1")
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
}

func TestDiffStoreGetManyReturnsOnlyMatched(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	store := NewDiffStore(mock)
	cols := []string{"id", "dataset_id", "type", "old_snapshot_id", "new_snapshot_id",
		"geometry_changed", "attributes_changed", "confidence_score", "status", "reviewed_at", "reviewed_by", "created_at"}

	mock.ExpectQuery("SELECT id, dataset_id, type").
		WithArgs([]string{"d1", "d2", "missing"}).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("d1", "ds-1", "NEW", "", "snap-1", true, false, 0.9, "PENDING", nil, "", time.Now()).
			AddRow("d2", "ds-1", "UPDATED", "snap-0", "snap-2", false, true, 0.8, "PENDING", nil, "", time.Now()))

	got, err := store.GetMany(context.Background(), []string{"d1", "d2", "missing"})
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 diffs, got %d", len(got))
	}
}
