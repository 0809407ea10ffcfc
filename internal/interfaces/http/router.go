package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"curator-backend/internal/config"
)

// NewRouter assembles the chi router for the service.
func NewRouter(h *Handler, cfg *config.Config, registry *prometheus.Registry, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	if cfg.Metrics.Enabled && registry != nil {
		r.Method(http.MethodGet, cfg.Metrics.Path,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/candidates", h.RouteCandidate)
		r.Post("/candidates/batch", h.RouteBatch)
		r.Get("/artifacts/{artifactID}", h.GetArtifact)
		r.Get("/folders", h.ListFolders)
		r.Get("/folders/{folderID}", h.GetFolder)
		r.Get("/concepts/{conceptID}/related", h.GetRelated)
		r.Post("/reorganization/analyze", h.AnalyzeReorganization)
		r.Get("/audit", h.RecentDecisions)
	})

	return r
}

// requestLogger emits one structured line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestId", middleware.GetReqID(r.Context())),
			)
		})
	}
}
