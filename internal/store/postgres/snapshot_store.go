package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/hash"
	"github.com/kvarga/spatialwatch/internal/model"
)

// SnapshotStore is the narrow data-access interface spec.md §4.B names.
type SnapshotStore interface {
	Insert(ctx context.Context, q Queryer, s model.Snapshot) error
	Get(ctx context.Context, id string) (model.Snapshot, error)
	ListByDataset(ctx context.Context, datasetID string) ([]model.Snapshot, error)
	FindByGeometryHash(ctx context.Context, datasetID string, h hash.Digest) ([]model.Snapshot, error)
	FindByCompositeHash(ctx context.Context, datasetID string, h hash.Digest) ([]model.Snapshot, error)
	FindByH3Cell(ctx context.Context, datasetID, cell, excludeSnapshotID string) ([]model.Snapshot, error)
	Count(ctx context.Context, datasetID string) (int, error)
	DeleteAll(ctx context.Context, datasetID string) error
}

// Queryer is satisfied by both *pgxpool.Pool and pgx.Tx, letting store
// methods run either standalone or inside the Change Detector's single
// run-wide transaction.
type Queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type snapshotStore struct {
	pool DB
}

// NewSnapshotStore returns the pgxpool-backed SnapshotStore.
func NewSnapshotStore(pool DB) SnapshotStore {
	return &snapshotStore{pool: pool}
}

func (s *snapshotStore) Insert(ctx context.Context, q Queryer, snap model.Snapshot) error {
	attrs, err := json.Marshal(snap.Attributes)
	if err != nil {
		return &errs.LocalStoreError{Store: "snapshots", Op: "insert", Err: fmt.Errorf("marshal attributes: %w", err)}
	}
	_, err = q.Exec(ctx, `
		INSERT INTO snapshots
			(id, dataset_id, source_id, geometry_hash, attributes_hash, composite_hash, geometry, attributes, h3_cell, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, ST_GeomFromWKB($7), $8, $9, $10)
	`, snap.ID, snap.DatasetID, snap.SourceID,
		snap.GeometryHash[:], snap.AttributesHash[:], snap.CompositeHash[:],
		snap.GeometryWKB, attrs, snap.H3Cell, snap.CreatedAt)
	if err != nil {
		return &errs.LocalStoreError{Store: "snapshots", Op: "insert", Err: err}
	}
	return nil
}

// Get fetches one snapshot by id, used by the control surface's diff
// detail view to render old/new geometry as GeoJSON.
func (s *snapshotStore) Get(ctx context.Context, id string) (model.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, dataset_id, source_id, geometry_hash, attributes_hash, composite_hash,
		       ST_AsBinary(geometry), attributes, h3_cell, created_at
		FROM snapshots WHERE id = $1
	`, id)
	if err != nil {
		return model.Snapshot{}, &errs.LocalStoreError{Store: "snapshots", Op: "get", Err: err}
	}
	defer rows.Close()
	out, err := scanSnapshots(rows)
	if err != nil {
		return model.Snapshot{}, err
	}
	if len(out) == 0 {
		return model.Snapshot{}, &errs.ValidationError{Field: "snapshot_id", Reason: "not found"}
	}
	return out[0], nil
}

func (s *snapshotStore) ListByDataset(ctx context.Context, datasetID string) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, dataset_id, source_id, geometry_hash, attributes_hash, composite_hash,
		       ST_AsBinary(geometry), attributes, h3_cell, created_at
		FROM snapshots WHERE dataset_id = $1
	`, datasetID)
	if err != nil {
		return nil, &errs.LocalStoreError{Store: "snapshots", Op: "list_by_dataset", Err: err}
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func (s *snapshotStore) FindByGeometryHash(ctx context.Context, datasetID string, h hash.Digest) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, dataset_id, source_id, geometry_hash, attributes_hash, composite_hash,
		       ST_AsBinary(geometry), attributes, h3_cell, created_at
		FROM snapshots WHERE dataset_id = $1 AND geometry_hash = $2
	`, datasetID, h[:])
	if err != nil {
		return nil, &errs.LocalStoreError{Store: "snapshots", Op: "find_by_geometry_hash", Err: err}
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func (s *snapshotStore) FindByCompositeHash(ctx context.Context, datasetID string, h hash.Digest) ([]model.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, dataset_id, source_id, geometry_hash, attributes_hash, composite_hash,
		       ST_AsBinary(geometry), attributes, h3_cell, created_at
		FROM snapshots WHERE dataset_id = $1 AND composite_hash = $2
	`, datasetID, h[:])
	if err != nil {
		return nil, &errs.LocalStoreError{Store: "snapshots", Op: "find_by_composite_hash", Err: err}
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// FindByH3Cell returns other snapshots in the same dataset bucketed
// into the same H3 cell, excluding excludeSnapshotID. The DUPLICATE
// tester's "near" sub-check does not call it: DuplicateLookup applies
// the same h3_cell filter inside its own ST_Equals query.
func (s *snapshotStore) FindByH3Cell(ctx context.Context, datasetID, cell, excludeSnapshotID string) ([]model.Snapshot, error) {
	if cell == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, dataset_id, source_id, geometry_hash, attributes_hash, composite_hash,
		       ST_AsBinary(geometry), attributes, h3_cell, created_at
		FROM snapshots WHERE dataset_id = $1 AND h3_cell = $2 AND id != $3
	`, datasetID, cell, excludeSnapshotID)
	if err != nil {
		return nil, &errs.LocalStoreError{Store: "snapshots", Op: "find_by_h3_cell", Err: err}
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func (s *snapshotStore) Count(ctx context.Context, datasetID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM snapshots WHERE dataset_id = $1`, datasetID).Scan(&n)
	if err != nil {
		return 0, &errs.LocalStoreError{Store: "snapshots", Op: "count", Err: err}
	}
	return n, nil
}

func (s *snapshotStore) DeleteAll(ctx context.Context, datasetID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE dataset_id = $1`, datasetID)
	if err != nil {
		return &errs.LocalStoreError{Store: "snapshots", Op: "delete_all", Err: err}
	}
	return nil
}

func scanSnapshots(rows pgx.Rows) ([]model.Snapshot, error) {
	var out []model.Snapshot
	for rows.Next() {
		var (
			snap       model.Snapshot
			geomHash   []byte
			attrsHash  []byte
			compHash   []byte
			attrsJSON  []byte
		)
		if err := rows.Scan(&snap.ID, &snap.DatasetID, &snap.SourceID,
			&geomHash, &attrsHash, &compHash, &snap.GeometryWKB, &attrsJSON, &snap.H3Cell, &snap.CreatedAt); err != nil {
			return nil, &errs.LocalStoreError{Store: "snapshots", Op: "scan", Err: err}
		}
		copy(snap.GeometryHash[:], geomHash)
		copy(snap.AttributesHash[:], attrsHash)
		copy(snap.CompositeHash[:], compHash)
		if len(attrsJSON) > 0 {
			if err := json.Unmarshal(attrsJSON, &snap.Attributes); err != nil {
				return nil, &errs.LocalStoreError{Store: "snapshots", Op: "scan", Err: fmt.Errorf("unmarshal attributes: %w", err)}
			}
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.LocalStoreError{Store: "snapshots", Op: "scan", Err: err}
	}
	return out, nil
}
