package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kvarga/spatialwatch/internal/controlsurface"
	"github.com/kvarga/spatialwatch/internal/health"
	"github.com/kvarga/spatialwatch/internal/middleware"
)

// NewRouter builds the chi.Router exposing every control-surface
// operation, plus liveness and (if metricsHandler is non-nil) a
// Prometheus scrape endpoint.
func NewRouter(logger *slog.Logger, surface *controlsurface.Surface, metricsHandler http.Handler) chi.Router {
	h := &Handlers{Surface: surface}

	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if metricsHandler != nil {
		r.Get("/metrics", metricsHandler.ServeHTTP)
	}

	r.Route("/datasets", func(r chi.Router) {
		r.Post("/", h.createDataset)
		r.Get("/", h.listDatasets)
		r.Route("/{datasetID}", func(r chi.Router) {
			r.Get("/", h.getDataset)
			r.Put("/", h.updateDataset)
			r.Delete("/", h.deactivateDataset)
			r.Get("/stats", h.datasetStats)
			r.Post("/reset-monitoring", h.resetDatasetMonitoring)
			r.Post("/quality-checks/start", h.requestQualityCheck)
			r.Get("/quality-checks/status", h.qualityCheckStatus)
		})
	})

	r.Route("/diffs", func(r chi.Router) {
		r.Get("/", h.listDiffs)
		r.Get("/pending/count", h.pendingCount)
		r.Post("/batch-review", h.batchReviewDiffs)
		r.Route("/{diffID}", func(r chi.Router) {
			r.Get("/", h.getDiffDetail)
			r.Put("/review", h.reviewDiff)
			r.Get("/spatial-difference", h.spatialDifference)
		})
	})

	r.Route("/monitoring", func(r chi.Router) {
		r.Post("/reset-monitoring", h.resetMonitoringData)
	})

	return r
}
