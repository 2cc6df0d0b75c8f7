// Package api exposes the control surface's operations over HTTP with
// a chi.Router, following the teacher's internal/core/server/server.go
// shape (chi router, middleware stack, signal-to-context shutdown) and
// internal/core/router/router.go's validate-then-dispatch handler
// style, generalized from one GeoServer-proxy route to the route list
// of spec.md §6 / original_source/backend/api/v1/diffs.py and
// monitoring.py.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kvarga/spatialwatch/internal/controlsurface"
	"github.com/kvarga/spatialwatch/internal/errs"
	"github.com/kvarga/spatialwatch/internal/model"
)

// Handlers wires a controlsurface.Surface to HTTP.
type Handlers struct {
	Surface *controlsurface.Surface
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	var ce *errs.ConcurrencyError
	if errors.As(err, &ce) {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
}

type datasetRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	Host              string `json:"host"`
	Port              int    `json:"port"`
	Database          string `json:"database"`
	Schema            string `json:"schema"`
	Table             string `json:"table"`
	GeometryColumn    string `json:"geometry_column"`
	RequireTLS        bool   `json:"require_tls"`
	CheckIntervalMins int    `json:"check_interval_mins"`
}

func (h *Handlers) createDataset(w http.ResponseWriter, r *http.Request) {
	var req datasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &errs.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	d, err := h.Surface.CreateDataset(r.Context(), controlsurface.DatasetInput(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handlers) listDatasets(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") != "false"
	out, err := h.Surface.ListDatasets(r.Context(), activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []model.Dataset{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getDataset(w http.ResponseWriter, r *http.Request) {
	d, err := h.Surface.GetDataset(r.Context(), chi.URLParam(r, "datasetID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type datasetPatchRequest struct {
	Name              *string `json:"name"`
	Description       *string `json:"description"`
	CheckIntervalMins *int    `json:"check_interval_mins"`
	Active            *bool   `json:"active"`
}

func (h *Handlers) updateDataset(w http.ResponseWriter, r *http.Request) {
	var req datasetPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &errs.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	d, err := h.Surface.UpdateDataset(r.Context(), chi.URLParam(r, "datasetID"), model.DatasetPatch(req))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) deactivateDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.Surface.DeactivateDataset(r.Context(), chi.URLParam(r, "datasetID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "dataset deactivated"})
}

func (h *Handlers) datasetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Surface.DatasetStats(r.Context(), chi.URLParam(r, "datasetID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) listDiffs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.DiffFilter{
		DatasetID: q.Get("dataset_id"),
		Status:    model.ReviewStatus(q.Get("status")),
		Type:      model.DiffType(q.Get("diff_type")),
	}
	if v, err := strconv.Atoi(q.Get("skip")); err == nil {
		filter.Offset = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	out, err := h.Surface.ListDiffs(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getDiffDetail(w http.ResponseWriter, r *http.Request) {
	d, err := h.Surface.GetDiffDetail(r.Context(), chi.URLParam(r, "diffID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type reviewRequest struct {
	Status     model.ReviewStatus `json:"status"`
	ReviewedBy string              `json:"reviewed_by"`
}

func (h *Handlers) reviewDiff(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &errs.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	if err := h.Surface.ReviewDiff(r.Context(), chi.URLParam(r, "diffID"), req.Status, req.ReviewedBy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reviewed"})
}

type batchReviewRequest struct {
	DiffIDs    []string `json:"diff_ids"`
	Action     string   `json:"action"`
	ReviewedBy string   `json:"reviewed_by"`
}

func (h *Handlers) batchReviewDiffs(w http.ResponseWriter, r *http.Request) {
	var req batchReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &errs.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	var status model.ReviewStatus
	switch req.Action {
	case "ACCEPT":
		status = model.ReviewAccepted
	case "REJECT":
		status = model.ReviewRejected
	default:
		writeError(w, &errs.ValidationError{Field: "action", Reason: "must be ACCEPT or REJECT"})
		return
	}
	n, err := h.Surface.BatchReviewDiffs(r.Context(), req.DiffIDs, status, req.ReviewedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *Handlers) spatialDifference(w http.ResponseWriter, r *http.Request) {
	diff, err := h.Surface.SpatialDifference(r.Context(), chi.URLParam(r, "diffID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (h *Handlers) pendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.Surface.PendingCount(r.Context(), r.URL.Query().Get("dataset_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending_count": n})
}

func (h *Handlers) requestQualityCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "datasetID")
	if err := h.Surface.RequestQualityCheck(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "dataset_id": id})
}

func (h *Handlers) qualityCheckStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "datasetID")
	status, ok := h.Surface.PollQualityCheck(id)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"dataset_id": id, "status": model.RunIdle})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) resetDatasetMonitoring(w http.ResponseWriter, r *http.Request) {
	if err := h.Surface.ResetDatasetMonitoring(r.Context(), chi.URLParam(r, "datasetID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handlers) resetMonitoringData(w http.ResponseWriter, r *http.Request) {
	if err := h.Surface.ResetMonitoringData(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "success",
		"preserved": "dataset connections and configurations",
		"cleared":   "snapshots, diffs, findings, and monitoring state",
	})
}
