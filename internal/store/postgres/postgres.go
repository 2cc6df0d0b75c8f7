// Package postgres is spatialwatch's local store: pgxpool-backed
// SnapshotStore, DiffStore, FindingStore, and DatasetStore
// implementations, plus goose-managed schema migrations.
//
// The teacher carries no SQL driver anywhere in its tree (it is a
// read-through cache in front of GeoServer, not a system of record);
// this package adopts jackc/pgx/v5 and pressly/goose/v3 from the wider
// example pack (jordigilh-kubernaut's go.mod) and applies the teacher's
// storage idiom observed in internal/cache/featurestore: a narrow
// context-first interface, a concrete struct wrapping the underlying
// client, and errors wrapped with fmt.Errorf/%w at the store boundary.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DB is the subset of *pgxpool.Pool each store needs: enough to run
// standalone statements and, via Queryer, to participate in the Change
// Detector's run-wide transaction. pgxmock's mock pool satisfies this
// too, so stores can be tested without a live PostGIS instance.
type DB interface {
	Queryer
	Begin(ctx context.Context) (pgx.Tx, error)
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Open dials the local database and verifies connectivity.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Migrate applies all pending goose migrations against dsn. Used by
// the Lifecycle Manager at boot to ensure schema objects exist.
func Migrate(dsn string) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("postgres: open migration connection: %w", err)
	}
	defer db.Close()

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate up: %w", err)
	}
	return nil
}

// Reset drops and recreates all schema objects (the Lifecycle
// Manager's full-reset policy).
func Reset(dsn string) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("postgres: open migration connection: %w", err)
	}
	defer db.Close()

	if err := goose.DownTo(db, "migrations", 0); err != nil {
		return fmt.Errorf("postgres: migrate down: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate up: %w", err)
	}
	return nil
}
