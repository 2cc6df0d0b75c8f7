package spatialtest

import (
	"context"

	"github.com/kvarga/spatialwatch/internal/config"
	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/model"
)

// Tester is one category check in the Spatial Test Engine (spec.md
// §4.G). Each tester consumes the server-derived scalars the External
// Source Reader computed; cross-feature checks (duplicate lookup) also
// receive the snapshot being tested, for identity exclusion.
type Tester interface {
	Category() model.FindingCategory
	Test(ctx context.Context, snap model.Snapshot, scalars geo.Scalars, th config.Thresholds) ([]model.Finding, error)
}

func newFinding(datasetID, snapshotID string, cat model.FindingCategory, result model.FindingResult, msg string, detail map[string]any) model.Finding {
	return model.Finding{
		DatasetID:  datasetID,
		SnapshotID: snapshotID,
		Category:   cat,
		Result:     result,
		Message:    msg,
		Detail:     detail,
	}
}
