// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// the lifecycle service, and encode; business rules stay out of this
// package.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"traincheck/internal/audit"
	"traincheck/internal/lifecycle"
	"traincheck/internal/platform/metrics"
	"traincheck/internal/platform/middleware"
)

// Handler handles all API endpoints.
type Handler struct {
	lifecycle    *lifecycle.Service
	auditlog     audit.Store
	logger       *slog.Logger
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	health       []func() error
}

func New(
	svc *lifecycle.Service,
	auditlog audit.Store,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
	health ...func() error,
) *Handler {
	return &Handler{
		lifecycle:    svc,
		auditlog:     auditlog,
		logger:       logger,
		metrics:      m,
		jwtValidator: jwtValidator,
		health:       health,
	}
}

// NewRouter wires all endpoints. Record routes require a bearer token;
// override and the audit query additionally require the compliance admin
// role. Health and metrics stay open for the platform.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Latency(h.metrics))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

		r.Post("/records", h.handleAssign)
		r.Get("/records/{recordID}", h.handleGetRecord)
		r.Post("/records/{recordID}/view", h.handleViewDocument)
		r.Post("/records/{recordID}/acknowledge", h.handleAcknowledge)
		r.Post("/records/{recordID}/assessment/start", h.handleStartAssessment)
		r.Post("/records/{recordID}/assessment/submit", h.handleSubmitAssessment)
		r.Get("/users/{userID}/records", h.handleListUserRecords)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleComplianceAdmin, h.logger))
			r.Post("/records/{recordID}/override", h.handleAdminOverride)
			r.Get("/audit", h.handleAuditQuery)
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.health {
		if err := check(); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
