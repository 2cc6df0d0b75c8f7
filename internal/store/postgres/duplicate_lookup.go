package postgres

import (
	"context"

	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/hash"
)

// DuplicateLookup mirrors spatialtest.DuplicateLookup's method set.
// Declared independently (rather than imported) so that postgres,
// which spatialtest.Runner wires against directly, has no import
// pointing back at spatialtest; Go's structural typing lets a
// *duplicateLookup satisfy spatialtest.DuplicateLookup at the call
// site without either package naming the other.
type DuplicateLookup interface {
	ExactMatches(ctx context.Context, datasetID, snapshotID string, h hash.Digest) (count int, sampleIDs []string, err error)
	NearMatches(ctx context.Context, datasetID, snapshotID, h3Cell string, wkb []byte, geomHash hash.Digest) (count int, err error)
	CompositeMatches(ctx context.Context, datasetID, snapshotID string, h hash.Digest) (count int, err error)
}

// duplicateLookup implements DuplicateLookup against the local store:
// the H3 cell bucket narrows the near-match candidate set before the
// exact ST_Equals comparison, instead of a full-table spatial scan.
type duplicateLookup struct {
	pool DB
}

// NewDuplicateLookup returns the pgxpool-backed DuplicateLookup.
func NewDuplicateLookup(pool DB) DuplicateLookup {
	return &duplicateLookup{pool: pool}
}

const maxDuplicateSamples = 5

func (d *duplicateLookup) ExactMatches(ctx context.Context, datasetID, snapshotID string, h hash.Digest) (int, []string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id FROM snapshots
		WHERE dataset_id = $1 AND geometry_hash = $2 AND id != $3
		ORDER BY id LIMIT $4
	`, datasetID, h[:], snapshotID, maxDuplicateSamples)
	if err != nil {
		return 0, nil, &errs.LocalStoreError{Store: "snapshots", Op: "duplicate_exact_matches", Err: err}
	}
	defer rows.Close()

	var samples []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, nil, &errs.LocalStoreError{Store: "snapshots", Op: "duplicate_exact_matches", Err: err}
		}
		samples = append(samples, id)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, &errs.LocalStoreError{Store: "snapshots", Op: "duplicate_exact_matches", Err: err}
	}

	var total int
	err = d.pool.QueryRow(ctx, `
		SELECT count(*) FROM snapshots
		WHERE dataset_id = $1 AND geometry_hash = $2 AND id != $3
	`, datasetID, h[:], snapshotID).Scan(&total)
	if err != nil {
		return 0, nil, &errs.LocalStoreError{Store: "snapshots", Op: "duplicate_exact_matches", Err: err}
	}

	return total, samples, nil
}

func (d *duplicateLookup) NearMatches(ctx context.Context, datasetID, snapshotID, h3Cell string, wkb []byte, geomHash hash.Digest) (int, error) {
	if h3Cell == "" || len(wkb) == 0 {
		return 0, nil
	}

	var count int
	err := d.pool.QueryRow(ctx, `
		SELECT count(*) FROM snapshots
		WHERE dataset_id = $1
		  AND h3_cell = $2
		  AND id != $3
		  AND geometry_hash != $4
		  AND ST_Equals(geometry, ST_GeomFromWKB($5))
	`, datasetID, h3Cell, snapshotID, geomHash[:], wkb).Scan(&count)
	if err != nil {
		return 0, &errs.LocalStoreError{Store: "snapshots", Op: "duplicate_near_matches", Err: err}
	}
	return count, nil
}

func (d *duplicateLookup) CompositeMatches(ctx context.Context, datasetID, snapshotID string, h hash.Digest) (int, error) {
	var count int
	err := d.pool.QueryRow(ctx, `
		SELECT count(*) FROM snapshots
		WHERE dataset_id = $1 AND composite_hash = $2 AND id != $3
	`, datasetID, h[:], snapshotID).Scan(&count)
	if err != nil {
		return 0, &errs.LocalStoreError{Store: "snapshots", Op: "duplicate_composite_matches", Err: err}
	}
	return count, nil
}
