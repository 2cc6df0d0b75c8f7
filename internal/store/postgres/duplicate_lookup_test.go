package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/kvarga/spatialwatch/internal/hash"
)

func TestDuplicateLookupNearMatchesEmptyCellShortCircuits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	lookup := NewDuplicateLookup(mock)
	count, err := lookup.NearMatches(context.Background(), "ds-1", "snap-1", "", nil, hash.Digest{})
	if err != nil {
		t.Fatalf("near matches: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 for empty cell, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDuplicateLookupCompositeMatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	h := hash.Composite(hash.Geometry([]byte("geom")), hash.Attributes(map[string]string{"a": "1"}))

	mock.ExpectQuery("SELECT count").
		WithArgs("ds-1", h[:], "snap-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	lookup := NewDuplicateLookup(mock)
	count, err := lookup.CompositeMatches(context.Background(), "ds-1", "snap-1", h)
	if err != nil {
		t.Fatalf("composite matches: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
