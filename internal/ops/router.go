// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

// Package ops serves the operational HTTP surface of the Rewardloop server:
// Prometheus metrics, a health probe and read-only views of the bandit state.
// It is not a recommendation API; selection and event ingestion happen
// in-process through the engine.
package ops

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/logging"
	"github.com/tomtom215/rewardloop/internal/recommend"
	"github.com/tomtom215/rewardloop/internal/recommend/engine"
)

// Engine is the read-only view of the engine the ops handlers need.
// Satisfied by *engine.Engine.
type Engine interface {
	Stats() engine.Stats
	ArmStats(armID string) (engine.ArmStats, bool)
	Ranking(limit int) []recommend.ScoredArm
}

// RouterConfig holds ops router settings.
type RouterConfig struct {
	// RateLimitReqs per RateLimitWindow per client IP. 0 disables limiting.
	RateLimitReqs   int
	RateLimitWindow time.Duration
}

// NewRouter builds the ops router.
//
//	GET /metrics         Prometheus exposition
//	GET /healthz         liveness and tracker summary
//	GET /v1/stats        engine statistics
//	GET /v1/ranking      arms by posterior mean (?limit=N)
//	GET /v1/arms/{id}    one arm's Beta, linear and buffered state
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewRouter(e Engine, cfg RouterConfig, logger zerolog.Logger) http.Handler {
	h := &handler{
		engine:  e,
		logger:  logger.With().Str("component", "ops").Logger(),
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(requestIDWithLogging(h.logger))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(instrument)

	// Scrapers and probes are never rate limited.
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(cfg))
		r.Get("/stats", h.stats)
		r.Get("/ranking", h.ranking)
		r.Get("/arms/{id}", h.arm)
	})
	return r
}

// rateLimit returns an httprate per-IP limiter, or a no-op when disabled.
func rateLimit(cfg RouterConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitReqs <= 0 || cfg.RateLimitWindow <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow)
}

// requestIDWithLogging wraps chi's RequestID middleware and stores the id and
// a request-scoped logger in the context for logging.Ctx.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func requestIDWithLogging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		chiRequestID := chimiddleware.RequestID(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(chimiddleware.RequestIDHeader)
			if requestID == "" {
				requestID = logging.GenerateRequestID()
				r.Header.Set(chimiddleware.RequestIDHeader, requestID)
			}
			ctx := logging.ContextWithLogger(r.Context(), logger)
			ctx = logging.ContextWithRequestID(ctx, requestID)
			w.Header().Set(chimiddleware.RequestIDHeader, requestID)
			chiRequestID.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
