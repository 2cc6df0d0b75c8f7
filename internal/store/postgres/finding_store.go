package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/model"
)

// FindingStore is the narrow data-access interface spec.md §4.D names.
type FindingStore interface {
	InsertMany(ctx context.Context, q Queryer, findings []model.Finding) error
	DeleteByDataset(ctx context.Context, q Queryer, datasetID string) error
	Summarise(ctx context.Context, datasetID string) (model.FindingSummary, error)
}

type findingStore struct {
	pool DB
}

// NewFindingStore returns the pgxpool-backed FindingStore.
func NewFindingStore(pool DB) FindingStore {
	return &findingStore{pool: pool}
}

func (s *findingStore) InsertMany(ctx context.Context, q Queryer, findings []model.Finding) error {
	for _, f := range findings {
		detail, err := json.Marshal(f.Detail)
		if err != nil {
			return &errs.LocalStoreError{Store: "findings", Op: "insert_many", Err: fmt.Errorf("marshal detail: %w", err)}
		}
		_, err = q.Exec(ctx, `
			INSERT INTO findings (id, dataset_id, snapshot_id, category, result, message, detail, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, f.ID, f.DatasetID, f.SnapshotID, string(f.Category), string(f.Result), f.Message, detail, f.CreatedAt)
		if err != nil {
			return &errs.LocalStoreError{Store: "findings", Op: "insert_many", Err: err}
		}
	}
	return nil
}

func (s *findingStore) DeleteByDataset(ctx context.Context, q Queryer, datasetID string) error {
	_, err := q.Exec(ctx, `DELETE FROM findings WHERE dataset_id = $1`, datasetID)
	if err != nil {
		return &errs.LocalStoreError{Store: "findings", Op: "delete_by_dataset", Err: err}
	}
	return nil
}

func (s *findingStore) Summarise(ctx context.Context, datasetID string) (model.FindingSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category, result, count(*) FROM findings
		WHERE dataset_id = $1 GROUP BY category, result
	`, datasetID)
	if err != nil {
		return nil, &errs.LocalStoreError{Store: "findings", Op: "summarise", Err: err}
	}
	defer rows.Close()

	summary := model.FindingSummary{}
	for rows.Next() {
		var (
			category string
			result   string
			n        int
		)
		if err := rows.Scan(&category, &result, &n); err != nil {
			return nil, &errs.LocalStoreError{Store: "findings", Op: "summarise", Err: err}
		}
		cat := model.FindingCategory(category)
		if summary[cat] == nil {
			summary[cat] = map[model.FindingResult]int{}
		}
		summary[cat][model.FindingResult(result)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.LocalStoreError{Store: "findings", Op: "summarise", Err: err}
	}
	return summary, nil
}
