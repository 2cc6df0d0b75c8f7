package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/hash"
	"github.com/kvarga/spatialwatch/internal/model"
)

// DiffStore is the narrow data-access interface spec.md §4.C names.
type DiffStore interface {
	Insert(ctx context.Context, q Queryer, d model.Diff) error
	List(ctx context.Context, filter model.DiffFilter) ([]model.Diff, error)
	Get(ctx context.Context, id string) (model.Diff, error)
	GetMany(ctx context.Context, ids []string) ([]model.Diff, error)
	UpdateReview(ctx context.Context, id string, status model.ReviewStatus, reviewer string) error
	BatchUpdateReview(ctx context.Context, ids []string, status model.ReviewStatus, reviewer string) (int, error)
	CountPending(ctx context.Context, datasetID string) (int, error)
	ExistsPendingForGeometry(ctx context.Context, q Queryer, datasetID string, h hash.Digest) (bool, error)
	Stats(ctx context.Context, datasetID string) (model.DiffStats, error)
}

type diffStore struct {
	pool DB
}

// NewDiffStore returns the pgxpool-backed DiffStore.
func NewDiffStore(pool DB) DiffStore {
	return &diffStore{pool: pool}
}

func (s *diffStore) Insert(ctx context.Context, q Queryer, d model.Diff) error {
	_, err := q.Exec(ctx, `
		INSERT INTO diffs
			(id, dataset_id, type, old_snapshot_id, new_snapshot_id, geometry_changed,
			 attributes_changed, confidence_score, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID, d.DatasetID, string(d.Type), d.OldSnapshotID, d.NewSnapshotID,
		d.GeometryChanged, d.AttributesChanged, d.ConfidenceScore, string(d.Status), d.CreatedAt)
	if err != nil {
		return &errs.LocalStoreError{Store: "diffs", Op: "insert", Err: err}
	}
	return nil
}

func (s *diffStore) List(ctx context.Context, filter model.DiffFilter) ([]model.Diff, error) {
	var (
		where []string
		args  []any
		i     = 1
	)
	if filter.DatasetID != "" {
		where = append(where, fmt.Sprintf("dataset_id = $%d", i))
		args = append(args, filter.DatasetID)
		i++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", i))
		args = append(args, string(filter.Status))
		i++
	}
	if filter.Type != "" {
		where = append(where, fmt.Sprintf("type = $%d", i))
		args = append(args, string(filter.Type))
		i++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	sql := `SELECT id, dataset_id, type, old_snapshot_id, new_snapshot_id, geometry_changed,
	               attributes_changed, confidence_score, status, reviewed_at, reviewed_by, created_at
	        FROM diffs`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", i, i+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, &errs.LocalStoreError{Store: "diffs", Op: "list", Err: err}
	}
	defer rows.Close()
	return scanDiffs(rows)
}

func (s *diffStore) Get(ctx context.Context, id string) (model.Diff, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, dataset_id, type, old_snapshot_id, new_snapshot_id, geometry_changed,
		       attributes_changed, confidence_score, status, reviewed_at, reviewed_by, created_at
		FROM diffs WHERE id = $1
	`, id)
	d, err := scanDiffRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.Diff{}, &errs.ValidationError{Field: "diff_id", Reason: "not found"}
		}
		return model.Diff{}, &errs.LocalStoreError{Store: "diffs", Op: "get", Err: err}
	}
	return d, nil
}

// GetMany fetches every diff in ids, in no particular order. Used by
// the control surface's batch-review operation to pre-validate that
// every requested id exists and is PENDING before updating any of
// them, matching original_source/backend/api/v1/diffs.py's
// batch_review_diffs all-or-nothing check.
func (s *diffStore) GetMany(ctx context.Context, ids []string) ([]model.Diff, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, dataset_id, type, old_snapshot_id, new_snapshot_id, geometry_changed,
		       attributes_changed, confidence_score, status, reviewed_at, reviewed_by, created_at
		FROM diffs WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, &errs.LocalStoreError{Store: "diffs", Op: "get_many", Err: err}
	}
	defer rows.Close()
	return scanDiffs(rows)
}

func (s *diffStore) UpdateReview(ctx context.Context, id string, status model.ReviewStatus, reviewer string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE diffs SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'PENDING'
	`, id, string(status), reviewer, time.Now().UTC())
	if err != nil {
		return &errs.LocalStoreError{Store: "diffs", Op: "update_review", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &errs.ValidationError{Field: "diff_id", Reason: "not found or not pending"}
	}
	return nil
}

func (s *diffStore) BatchUpdateReview(ctx context.Context, ids []string, status model.ReviewStatus, reviewer string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE diffs SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = ANY($1) AND status = 'PENDING'
	`, ids, string(status), reviewer, time.Now().UTC())
	if err != nil {
		return 0, &errs.LocalStoreError{Store: "diffs", Op: "batch_update_review", Err: err}
	}
	return int(tag.RowsAffected()), nil
}

func (s *diffStore) CountPending(ctx context.Context, datasetID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM diffs WHERE dataset_id = $1 AND status = 'PENDING'`, datasetID).Scan(&n)
	if err != nil {
		return 0, &errs.LocalStoreError{Store: "diffs", Op: "count_pending", Err: err}
	}
	return n, nil
}

// ExistsPendingForGeometry is the idempotence predicate spec.md §4.C/F
// rely on: a pending diff must never be duplicated across runs for the
// same (dataset, geometry_hash).
func (s *diffStore) ExistsPendingForGeometry(ctx context.Context, q Queryer, datasetID string, h hash.Digest) (bool, error) {
	row := q.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM diffs d
			JOIN snapshots sn ON sn.id = COALESCE(NULLIF(d.new_snapshot_id, ''), d.old_snapshot_id)
			WHERE d.dataset_id = $1 AND d.status = 'PENDING' AND sn.geometry_hash = $2
		)
	`, datasetID, h[:])
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, &errs.LocalStoreError{Store: "diffs", Op: "exists_pending_for_geometry", Err: err}
	}
	return exists, nil
}

func (s *diffStore) Stats(ctx context.Context, datasetID string) (model.DiffStats, error) {
	var st model.DiffStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status = 'PENDING'),
			count(*) FILTER (WHERE status = 'ACCEPTED'),
			count(*) FILTER (WHERE status = 'REJECTED'),
			count(*) FILTER (WHERE type = 'NEW'),
			count(*) FILTER (WHERE type = 'UPDATED'),
			count(*) FILTER (WHERE type = 'DELETED')
		FROM diffs WHERE dataset_id = $1
	`, datasetID).Scan(&st.Total, &st.Pending, &st.Accepted, &st.Rejected, &st.New, &st.Updated, &st.Deleted)
	if err != nil {
		return model.DiffStats{}, &errs.LocalStoreError{Store: "diffs", Op: "stats", Err: err}
	}
	return st, nil
}

func scanDiffs(rows pgx.Rows) ([]model.Diff, error) {
	var out []model.Diff
	for rows.Next() {
		d, err := scanDiffRow(rows)
		if err != nil {
			return nil, &errs.LocalStoreError{Store: "diffs", Op: "scan", Err: err}
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.LocalStoreError{Store: "diffs", Op: "scan", Err: err}
	}
	return out, nil
}

// rowScanner is satisfied by both pgx.Row (single-row QueryRow result)
// and pgx.Rows (positioned at a current row via Next).
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiffRow(row rowScanner) (model.Diff, error) {
	var (
		d            model.Diff
		typ          string
		status       string
		reviewedAt   *time.Time
	)
	err := row.Scan(&d.ID, &d.DatasetID, &typ, &d.OldSnapshotID, &d.NewSnapshotID,
		&d.GeometryChanged, &d.AttributesChanged, &d.ConfidenceScore, &status, &reviewedAt, &d.ReviewedBy, &d.CreatedAt)
	if err != nil {
		return model.Diff{}, err
	}
	d.Type = model.DiffType(typ)
	d.Status = model.ReviewStatus(status)
	d.ReviewedAt = reviewedAt
	return d, nil
}
