package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestInitDisabledIsNoop(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, false)

	if Enabled() {
		t.Fatal("expected disabled")
	}
	AddSnapshotsCreated("ds-1", "incremental", 5)
	IncDiffCreated("ds-1", "NEW")
	ObserveHTTP("GET", "/datasets", "200", time.Millisecond)

	if n := testutil_CollectAndCount(reg); n != 0 {
		t.Fatalf("expected no collectors registered when disabled, got %d", n)
	}
}

func TestInitEnabledRegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	defer func() { enabled.Store(false) }()

	if !Enabled() {
		t.Fatal("expected enabled")
	}

	AddSnapshotsCreated("ds-1", "baseline", 3)
	IncDiffCreated("ds-1", "NEW")
	IncDeletionDiff("ds-1")
	ObserveChangeDetectionRun("ds-1", "ok", 10*time.Millisecond)
	IncFinding("VALIDITY", "FAIL")
	SetQualityChecksRunning(2)
	ObserveHTTP("GET", "/datasets", "200", 5*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}

	body := rr.Body.String()
	for _, want := range []string{
		`spatialwatch_snapshots_created_total{dataset_id="ds-1",run_kind="baseline"} 3`,
		`spatialwatch_diffs_created_total{dataset_id="ds-1",diff_type="NEW"} 1`,
		`spatialwatch_deletion_diffs_total{dataset_id="ds-1"} 1`,
		`spatialwatch_findings_total{category="VALIDITY",result="FAIL"} 1`,
		`spatialwatch_quality_checks_running 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q;\n---\n%s", want, body)
		}
	}
}

func TestZeroValueHelpersNeverPanicBeforeInit(t *testing.T) {
	enabled.Store(false)
	AddSnapshotsCreated("ds-1", "incremental", 0)
	IncUnchanged("ds-1")
	ObserveQualityCheckRun("ds-1", "ok", time.Second)
	ObserveSchedulerTick(time.Second, 4)
	IncDiffEventPublished("ok")
}

func testutil_CollectAndCount(reg *prometheus.Registry) int {
	mfs, err := reg.Gather()
	if err != nil {
		return -1
	}
	return len(mfs)
}
