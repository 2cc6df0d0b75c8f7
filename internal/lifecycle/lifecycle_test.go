package lifecycle

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
)

func TestSmartRestartResetClearsRunStateAndMonitoring(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("DELETE FROM findings").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM diffs").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM snapshots").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("UPDATE datasets SET").WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	m := New(zerolog.Nop(), "", mock, true)
	if err := m.smartRestartReset(context.Background()); err != nil {
		t.Fatalf("smart restart reset: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyStorageOptimisationsFallsBackToPglz(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("ALTER TABLE snapshots ALTER COLUMN geometry").WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec("ALTER TABLE snapshots ALTER COLUMN attributes").WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec("toast_compression='lz4'").WillReturnError(errUnsupported)
	mock.ExpectExec("toast_compression='pglz'").WillReturnResult(pgxmock.NewResult("ALTER", 0))

	m := New(zerolog.Nop(), "", mock, true)
	if err := m.applyStorageOptimisations(context.Background()); err != nil {
		t.Fatalf("expected pglz fallback to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

var errUnsupported = fakeErr("lz4 unsupported")
