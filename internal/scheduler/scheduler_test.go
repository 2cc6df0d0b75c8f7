package scheduler

import (
	"testing"
	"time"

	"github.com/kvarga/spatialwatch/internal/model"
)

func TestEligibleNilLastCheck(t *testing.T) {
	d := model.Dataset{CheckIntervalMins: 60}
	if !eligible(d, time.Now()) {
		t.Fatal("expected eligible when last_check_at is nil")
	}
}

func TestEligibleBeforeInterval(t *testing.T) {
	now := time.Now()
	last := now.Add(-30 * time.Minute)
	d := model.Dataset{CheckIntervalMins: 60, LastCheckAt: &last}
	if eligible(d, now) {
		t.Fatal("expected not eligible before the interval elapses")
	}
}

func TestEligibleAfterInterval(t *testing.T) {
	now := time.Now()
	last := now.Add(-90 * time.Minute)
	d := model.Dataset{CheckIntervalMins: 60, LastCheckAt: &last}
	if !eligible(d, now) {
		t.Fatal("expected eligible once the interval has elapsed")
	}
}

func TestStatusTableReportsRunningAfterStart(t *testing.T) {
	st := newStatusTable(time.Now, time.Minute)
	st.start("ds-1", "Ds One")
	if !st.isRunning("ds-1") {
		t.Fatal("expected running after start")
	}
}

func TestStatusTableCompleteClearsRunning(t *testing.T) {
	st := newStatusTable(time.Now, time.Minute)
	st.start("ds-1", "Ds One")
	st.complete("ds-1", model.FindingSummary{})
	if st.isRunning("ds-1") {
		t.Fatal("expected not running after complete")
	}
	status, ok := st.get("ds-1")
	if !ok || status.State != model.RunCompleted {
		t.Fatalf("expected completed status, got %+v ok=%v", status, ok)
	}
}

func TestStatusTableSweepRemovesOnlyExpiredFinished(t *testing.T) {
	clockTime := time.Unix(0, 0).UTC()
	clock := func() time.Time { return clockTime }
	st := newStatusTable(clock, time.Minute)

	st.start("done-old", "Old")
	st.complete("done-old", model.FindingSummary{})

	st.start("running", "Running")

	clockTime = clockTime.Add(2 * time.Minute)

	st.start("done-new", "New")
	st.complete("done-new", model.FindingSummary{})

	st.sweep()

	if _, ok := st.get("done-old"); ok {
		t.Fatal("expected expired completed entry to be swept")
	}
	if _, ok := st.get("running"); !ok {
		t.Fatal("running entry must never be swept")
	}
	if _, ok := st.get("done-new"); !ok {
		t.Fatal("recently completed entry must survive the sweep")
	}
}

func TestStatusTableFailRecordsError(t *testing.T) {
	st := newStatusTable(time.Now, time.Minute)
	st.start("ds-1", "Ds One")
	st.fail("ds-1", errBoom{})
	status, ok := st.get("ds-1")
	if !ok || status.State != model.RunFailed || status.Error == "" {
		t.Fatalf("expected failed status with error set, got %+v ok=%v", status, ok)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
