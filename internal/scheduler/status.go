package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kvarga/spatialwatch/internal/model"
)

// statusTable is process-local, non-persistent storage for
// QualityCheckStatus (spec.md §3), one entry per dataset. Completed or
// failed entries are swept after ttl so the map doesn't grow unbounded
// across a long-running process; a running entry is never swept.
type statusTable struct {
	mu  sync.RWMutex
	m   map[string]*entry
	now func() time.Time
	ttl time.Duration
}

type entry struct {
	status model.QualityCheckStatus
	doneAt time.Time // zero while running
}

func newStatusTable(now func() time.Time, ttl time.Duration) *statusTable {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &statusTable{m: make(map[string]*entry), now: now, ttl: ttl}
}

func (t *statusTable) isRunning(datasetID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.m[datasetID]
	return ok && e.status.State == model.RunRunning
}

func (t *statusTable) start(datasetID, datasetName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[datasetID] = &entry{status: model.QualityCheckStatus{
		DatasetID:   datasetID,
		DatasetName: datasetName,
		State:       model.RunRunning,
		StartedAt:   t.now(),
		Progress:    model.Progress{Phase: model.PhaseInitializing},
	}}
}

func (t *statusTable) setPhase(datasetID string, phase model.RunPhase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[datasetID]
	if !ok {
		return
	}
	e.status.Progress.Phase = phase
}

func (t *statusTable) updateProgress(datasetID string, current, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[datasetID]
	if !ok {
		return
	}
	e.status.Progress.Current = current
	e.status.Progress.Total = total
}

func (t *statusTable) complete(datasetID string, summary model.FindingSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[datasetID]
	if !ok {
		return
	}
	now := t.now()
	e.status.State = model.RunCompleted
	e.status.Progress.Phase = model.PhaseDone
	e.status.CompletedAt = now
	e.status.Summary = summary
	e.doneAt = now
}

func (t *statusTable) fail(datasetID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[datasetID]
	if !ok {
		return
	}
	now := t.now()
	e.status.State = model.RunFailed
	e.status.Error = err.Error()
	e.status.CompletedAt = now
	e.doneAt = now
}

// runningCount reports how many datasets currently have a running
// quality check, for the qualityChecksRunning gauge.
func (t *statusTable) runningCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.m {
		if e.status.State == model.RunRunning {
			n++
		}
	}
	return n
}

func (t *statusTable) get(datasetID string) (model.QualityCheckStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.m[datasetID]
	if !ok {
		return model.QualityCheckStatus{}, false
	}
	return e.status, true
}

// sweep removes entries that finished (completed or failed) more than
// ttl ago. Running entries are never removed regardless of age.
func (t *statusTable) sweep() {
	cutoff := t.now().Add(-t.ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, e := range t.m {
		if e.status.State == model.RunRunning {
			continue
		}
		if e.doneAt.Before(cutoff) {
			delete(t.m, id)
		}
	}
}

func (s *Scheduler) runStatusSweep(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.status.sweep()
		}
	}
}
