package spatialtest

import (
	"context"
	"testing"

	"github.com/kvarga/spatialwatch/internal/geo"
	"github.com/kvarga/spatialwatch/internal/hash"
	"github.com/kvarga/spatialwatch/internal/model"
)

type fakeDuplicateLookup struct {
	exactCount     int
	exactSamples   []string
	nearCount      int
	compositeCount int
}

func (f fakeDuplicateLookup) ExactMatches(context.Context, string, string, hash.Digest) (int, []string, error) {
	return f.exactCount, f.exactSamples, nil
}

func (f fakeDuplicateLookup) NearMatches(context.Context, string, string, string, []byte, hash.Digest) (int, error) {
	return f.nearCount, nil
}

func (f fakeDuplicateLookup) CompositeMatches(context.Context, string, string, hash.Digest) (int, error) {
	return f.compositeCount, nil
}

func testSnapshot() model.Snapshot {
	return model.Snapshot{
		ID:          "snap-1",
		DatasetID:   "ds-1",
		GeometryWKB: []byte("geom"),
		H3Cell:      "891234567ffffff",
	}
}

func TestDuplicateTesterNoMatchesPasses(t *testing.T) {
	tester := DuplicateTester{Lookup: fakeDuplicateLookup{}}
	findings, err := tester.Test(context.Background(), testSnapshot(), geo.Scalars{}, defaultThresholds())
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if len(findings) != 1 || findings[0].Result != model.ResultPass {
		t.Fatalf("expected single PASS finding, got %+v", findings)
	}
}

func TestDuplicateTesterExactMatchWarns(t *testing.T) {
	tester := DuplicateTester{Lookup: fakeDuplicateLookup{exactCount: 2, exactSamples: []string{"snap-2", "snap-3"}}}
	findings, err := tester.Test(context.Background(), testSnapshot(), geo.Scalars{}, defaultThresholds())
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if len(findings) != 1 || findings[0].Result != model.ResultWarning {
		t.Fatalf("expected single WARNING finding, got %+v", findings)
	}
}

func TestDuplicateTesterCompositeMatchFails(t *testing.T) {
	tester := DuplicateTester{Lookup: fakeDuplicateLookup{compositeCount: 1}}
	findings, err := tester.Test(context.Background(), testSnapshot(), geo.Scalars{}, defaultThresholds())
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if len(findings) != 1 || findings[0].Result != model.ResultFail {
		t.Fatalf("expected single FAIL finding, got %+v", findings)
	}
}

func TestDuplicateTesterNilLookupIsNoop(t *testing.T) {
	tester := DuplicateTester{}
	findings, err := tester.Test(context.Background(), testSnapshot(), geo.Scalars{}, defaultThresholds())
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if findings != nil {
		t.Fatalf("expected nil findings, got %+v", findings)
	}
}
