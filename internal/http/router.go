package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yatrago/hold-engine/internal/observability"
	"github.com/yatrago/hold-engine/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	if rl != nil {
		r.Use(RateLimitMiddleware(rl))
	}

	r.With(IdempotencyMiddleware).Post("/v1/holds", h.CreateHold)
	r.Post("/v1/holds/{id}/release", h.ReleaseHold)
	r.Post("/v1/holds/{id}/convert", h.ConvertHold)
	r.Get("/v1/schedules/{scheduleID}/classes/{class}/quota", h.QuotaStatus)

	r.Post("/v1/admin/schedules", h.CreateSchedule)
	r.Delete("/v1/admin/schedules/{id}", h.RetireSchedule)
	r.Put("/v1/admin/partners/{id}/policy", h.UpdatePartnerPolicy)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
