package spatialtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/externalsource"
	"github.com/kvarga/spatialwatch/internal/hash"
	"github.com/kvarga/spatialwatch/internal/metrics"
	"github.com/kvarga/spatialwatch/internal/model"
	"github.com/kvarga/spatialwatch/internal/store/postgres"
)

// ProgressFunc is called after every feature processed, letting the
// Scheduler's quality-check dispatch update QualityCheckStatus. total
// is the feature count observed when the source was opened; it does
// not change across calls.
type ProgressFunc func(current, total int)

// Summary is the Runner's per-run report: total findings by
// (category, result), and how many FAIL results were produced.
type Summary struct {
	Counts      model.FindingSummary
	FailCount   int
	FeaturesRun int
}

// Runner is the Spatial Test Engine's entry point (spec.md §4.G): it
// deletes prior findings, streams the external source, matches each
// feature to its snapshot, runs every enabled category tester, and
// writes the accumulated findings.
//
// Grounded on the teacher's internal/aggregate/geojsonagg.Aggregator:
// one small interface (Tester) implemented by independent stages, all
// consuming the same input and folding their output into one
// accumulator.
type Runner struct {
	Snapshots  postgres.SnapshotStore
	Findings   postgres.FindingStore
	Testers    []Tester
	Thresholds config.Thresholds
}

// Run executes one quality-check pass for a dataset, reading features
// from reader (already opened by the caller against the dataset's
// remote source) and writing findings through q (the caller's
// transaction or standalone connection).
func (r *Runner) Run(ctx context.Context, q postgres.Queryer, datasetID string, reader *externalsource.Reader, progress ProgressFunc) (Summary, error) {
	if err := r.Findings.DeleteByDataset(ctx, q, datasetID); err != nil {
		return Summary{}, err
	}

	snapshots, err := r.Snapshots.ListByDataset(ctx, datasetID)
	if err != nil {
		return Summary{}, err
	}
	byGeometryHash := make(map[string]model.Snapshot, len(snapshots))
	for _, snap := range snapshots {
		byGeometryHash[snap.GeometryHash.String()] = snap
	}

	summary := Summary{Counts: model.FindingSummary{}}
	var pending []model.Finding

	current := 0
	for reader.Next() {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		row, err := reader.Scan()
		if err != nil {
			return summary, &errs.RemoteSourceError{DatasetID: datasetID, Op: "scan", Err: err}
		}
		current++

		snap, ok := byGeometryHash[hash.Geometry(row.Scalars.WKB).String()]
		if ok {
			summary.FeaturesRun++
			for _, tester := range r.Testers {
				findings, err := tester.Test(ctx, snap, row.Scalars, r.Thresholds)
				if err != nil {
					return summary, fmt.Errorf("spatialtest: %s tester: %w", tester.Category(), err)
				}
				for i := range findings {
					findings[i].ID = uuid.NewString()
					findings[i].CreatedAt = time.Now().UTC()
				}
				pending = append(pending, findings...)
				for _, f := range findings {
					if summary.Counts[f.Category] == nil {
						summary.Counts[f.Category] = map[model.FindingResult]int{}
					}
					summary.Counts[f.Category][f.Result]++
					metrics.IncFinding(string(f.Category), string(f.Result))
					if f.Result == model.ResultFail {
						summary.FailCount++
					}
				}
			}
		}
		// Features with no matching snapshot are skipped: change
		// detection hasn't produced one yet (spec.md §4.G).

		if progress != nil {
			progress(current, reader.Total())
		}
	}
	if err := reader.Err(); err != nil {
		return summary, &errs.RemoteSourceError{DatasetID: datasetID, Op: "iterate", Err: err}
	}

	if len(pending) > 0 {
		if err := r.Findings.InsertMany(ctx, q, pending); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// EnabledTesters builds the Tester slice the Runner dispatches to, per
// the configured category toggles.
func EnabledTesters(toggles config.CategoryToggles, dup DuplicateLookup) []Tester {
	var testers []Tester
	if toggles.Validity {
		testers = append(testers, ValidityTester{})
	}
	if toggles.Topology {
		testers = append(testers, TopologyTester{})
	}
	if toggles.Area {
		testers = append(testers, AreaTester{})
	}
	if toggles.Duplicate {
		testers = append(testers, DuplicateTester{Lookup: dup})
	}
	if toggles.Polygon {
		testers = append(testers, PolygonTester{})
	}
	if toggles.LineString {
		testers = append(testers, LineStringTester{})
	}
	if toggles.Point {
		testers = append(testers, PointTester{})
	}
	return testers
}
