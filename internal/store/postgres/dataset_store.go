package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/model"
)

// DatasetStore backs the control surface's dataset CRUD (spec.md §6);
// spec.md names it implicitly as "the external API's backing store" —
// it isn't one of the §4.B-D stores since Datasets aren't append-only,
// but it shares this package's pgxpool/manual-scan idiom.
type DatasetStore interface {
	Insert(ctx context.Context, d model.Dataset) error
	Get(ctx context.Context, id string) (model.Dataset, error)
	List(ctx context.Context, activeOnly bool) ([]model.Dataset, error)
	Update(ctx context.Context, id string, patch model.DatasetPatch) (model.Dataset, error)
	Deactivate(ctx context.Context, id string) error
	RecordCheckResult(ctx context.Context, id string, status model.ConnectionStatus, checkErr string) error
	ResetMonitoringFields(ctx context.Context, id string) error
	ResetAllMonitoringFields(ctx context.Context) error
}

type datasetStore struct {
	pool DB
}

// NewDatasetStore returns the pgxpool-backed DatasetStore.
func NewDatasetStore(pool DB) DatasetStore {
	return &datasetStore{pool: pool}
}

func (s *datasetStore) Insert(ctx context.Context, d model.Dataset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO datasets
			(id, name, description, host, port, database, schema, "table", geometry_column,
			 require_tls, check_interval_mins, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, d.ID, d.Name, d.Description, d.Host, d.Port, d.Database, d.Schema, d.Table, d.GeometryColumn,
		d.RequireTLS, d.CheckIntervalMins, d.Active, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return &errs.LocalStoreError{Store: "datasets", Op: "insert", Err: err}
	}
	return nil
}

func (s *datasetStore) Get(ctx context.Context, id string) (model.Dataset, error) {
	row := s.pool.QueryRow(ctx, datasetSelectSQL+` WHERE id = $1`, id)
	d, err := scanDataset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Dataset{}, &errs.ValidationError{Field: "dataset_id", Reason: "not found"}
		}
		return model.Dataset{}, &errs.LocalStoreError{Store: "datasets", Op: "get", Err: err}
	}
	return d, nil
}

func (s *datasetStore) List(ctx context.Context, activeOnly bool) ([]model.Dataset, error) {
	sql := datasetSelectSQL
	if activeOnly {
		sql += ` WHERE active = true`
	}
	sql += ` ORDER BY created_at`
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, &errs.LocalStoreError{Store: "datasets", Op: "list", Err: err}
	}
	defer rows.Close()

	var out []model.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, &errs.LocalStoreError{Store: "datasets", Op: "scan", Err: err}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.LocalStoreError{Store: "datasets", Op: "scan", Err: err}
	}
	return out, nil
}

func (s *datasetStore) Update(ctx context.Context, id string, patch model.DatasetPatch) (model.Dataset, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE datasets SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			check_interval_mins = COALESCE($4, check_interval_mins),
			active = COALESCE($5, active),
			updated_at = $6
		WHERE id = $1
	`, id, patch.Name, patch.Description, patch.CheckIntervalMins, patch.Active, time.Now().UTC())
	if err != nil {
		return model.Dataset{}, &errs.LocalStoreError{Store: "datasets", Op: "update", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return model.Dataset{}, &errs.ValidationError{Field: "dataset_id", Reason: "not found"}
	}
	return s.Get(ctx, id)
}

func (s *datasetStore) Deactivate(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE datasets SET active = false, updated_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return &errs.LocalStoreError{Store: "datasets", Op: "deactivate", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &errs.ValidationError{Field: "dataset_id", Reason: "not found"}
	}
	return nil
}

func (s *datasetStore) RecordCheckResult(ctx context.Context, id string, status model.ConnectionStatus, checkErr string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		UPDATE datasets SET last_check_at = $2, connection_status = $3, connection_error = $4, last_connection_test = $2
		WHERE id = $1
	`, id, now, string(status), checkErr)
	if err != nil {
		return &errs.LocalStoreError{Store: "datasets", Op: "record_check_result", Err: err}
	}
	return nil
}

// ResetMonitoringFields nulls last_check_at/last_connection_test and
// empties connection_status/connection_error for one dataset: the same
// field reset the Lifecycle Manager's smart restart applies to every
// dataset. The dataset's snapshots, diffs and findings are not touched.
func (s *datasetStore) ResetMonitoringFields(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE datasets SET last_check_at = NULL, connection_status = '', connection_error = '', last_connection_test = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return &errs.LocalStoreError{Store: "datasets", Op: "reset_monitoring_fields", Err: err}
	}
	return nil
}

func (s *datasetStore) ResetAllMonitoringFields(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE datasets SET last_check_at = NULL, connection_status = '', connection_error = '', last_connection_test = NULL
	`)
	if err != nil {
		return &errs.LocalStoreError{Store: "datasets", Op: "reset_all_monitoring_fields", Err: err}
	}
	return nil
}

const datasetSelectSQL = `
	SELECT id, name, description, host, port, database, schema, "table", geometry_column,
	       require_tls, check_interval_mins, active, last_check_at, connection_status,
	       connection_error, last_connection_test, created_at, updated_at
	FROM datasets`

func scanDataset(row rowScanner) (model.Dataset, error) {
	var d model.Dataset
	var status string
	err := row.Scan(&d.ID, &d.Name, &d.Description, &d.Host, &d.Port, &d.Database, &d.Schema, &d.Table, &d.GeometryColumn,
		&d.RequireTLS, &d.CheckIntervalMins, &d.Active, &d.LastCheckAt, &status,
		&d.ConnectionError, &d.LastConnectionTest, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return model.Dataset{}, fmt.Errorf("scan dataset: %w", err)
	}
	d.ConnectionStatus = model.ConnectionStatus(status)
	return d, nil
}
