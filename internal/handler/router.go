package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/lendgrid/export-profiles/internal/domain"
	"github.com/lendgrid/export-profiles/internal/infra/observability"
	"github.com/lendgrid/export-profiles/internal/port"
	"github.com/lendgrid/export-profiles/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services bundles what the router serves.
type Services struct {
	Profiles *service.ProfileService
	Resolver *service.Resolver
	Auth     *service.AuthService
	// Store is pinged by /healthz and /readyz.
	Store   port.Pinger
	DevAuth bool
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store))
	r.Get("/readyz", readyzHandler(svc.Store, logger))
	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(OrgAuthMiddleware(svc.Auth, svc.DevAuth, logger))

		// =============================================
		// Catalog
		// =============================================
		r.Get("/platforms", listPlatformsHandler())
		r.Get("/platforms/{platform}/defaults", platformDefaultsHandler(logger))
		r.Get("/catalog", catalogHandler())

		// =============================================
		// Mapping profiles
		// =============================================
		if svc.Profiles != nil {
			r.Route("/profiles", func(r chi.Router) {
				r.Get("/", listProfilesHandler(svc.Profiles, logger))
				r.Post("/", createProfileHandler(svc.Profiles, logger))

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", getProfileHandler(svc.Profiles, logger))
					r.Patch("/", updateProfileHandler(svc.Profiles, logger))
					r.Delete("/", deleteProfileHandler(svc.Profiles, logger))
					r.Post("/duplicate", duplicateProfileHandler(svc.Profiles, logger))
					r.Post("/activate", setActiveHandler(svc.Profiles, true, logger))
					r.Post("/deactivate", setActiveHandler(svc.Profiles, false, logger))
					r.Put("/default", setDefaultHandler(svc.Profiles, logger))
					r.Delete("/default", clearDefaultHandler(svc.Profiles, logger))
					r.Get("/mapping", exportMappingHandler(svc.Profiles, logger))
					r.Put("/mapping", importMappingHandler(svc.Profiles, logger))
				})
			})
		}

		// =============================================
		// Resolution (export orchestrator)
		// =============================================
		if svc.Resolver != nil {
			r.Get("/resolve", resolveHandler(svc.Resolver, logger))
		}

		// =============================================
		// Engine metrics
		// =============================================
		if metrics != nil {
			r.Get("/metrics/engine", engineMetricsHandler(metrics))
		}
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(store port.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "export-profiles", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			start := time.Now()
			err := store.Ping(ctx)
			status := "healthy"
			if err != nil {
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "profile_store", Status: status,
				LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler(store port.Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				logger.Warn("readiness: store unavailable", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func engineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
