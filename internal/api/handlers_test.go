package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kvarga/spatialwatch/internal/controlsurface"
	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/model"
	"github.com/kvarga/spatialwatch/internal/store/postgres"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteErrorMapsValidationErrorTo400(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &errs.ValidationError{Field: "dataset_id", Reason: "not found"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWriteErrorMapsConcurrencyErrorTo409(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &errs.ConcurrencyError{DatasetID: "ds-1", Reason: "already running"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestWriteErrorMapsUnknownErrorTo500(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, &errs.LocalStoreError{Store: "datasets", Op: "get", Err: context.DeadlineExceeded})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

type emptyDatasets struct{}

func (emptyDatasets) Insert(ctx context.Context, d model.Dataset) error { return nil }
func (emptyDatasets) Get(ctx context.Context, id string) (model.Dataset, error) {
	return model.Dataset{}, &errs.ValidationError{Field: "dataset_id", Reason: "not found"}
}
func (emptyDatasets) List(ctx context.Context, activeOnly bool) ([]model.Dataset, error) {
	return nil, nil
}
func (emptyDatasets) Update(ctx context.Context, id string, patch model.DatasetPatch) (model.Dataset, error) {
	return model.Dataset{}, nil
}
func (emptyDatasets) Deactivate(ctx context.Context, id string) error { return nil }
func (emptyDatasets) RecordCheckResult(ctx context.Context, id string, status model.ConnectionStatus, checkErr string) error {
	return nil
}
func (emptyDatasets) ResetMonitoringFields(ctx context.Context, id string) error { return nil }
func (emptyDatasets) ResetAllMonitoringFields(ctx context.Context) error         { return nil }

var _ postgres.DatasetStore = emptyDatasets{}

func TestListDatasetsRouteReturnsEmptyArray(t *testing.T) {
	surface := controlsurface.New(emptyDatasets{}, nil, nil, nil, nil, nil)
	r := NewRouter(discardLogger(), surface, nil)

	req := httptest.NewRequest(http.MethodGet, "/datasets/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out []model.Dataset
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty list, got %d", len(out))
	}
}

func TestHealthzRouteIsUnauthenticated(t *testing.T) {
	surface := controlsurface.New(emptyDatasets{}, nil, nil, nil, nil, nil)
	r := NewRouter(discardLogger(), surface, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
