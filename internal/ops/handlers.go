// Rewardloop - Online Bandit Selection and Reward Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/rewardloop

package ops

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/rewardloop/internal/logging"
)

// maxRankingLimit caps ?limit on /v1/ranking.
const maxRankingLimit = 1000

type handler struct {
	engine  Engine
	logger  zerolog.Logger
	started time.Time
}

// Response is the JSON envelope of every ops endpoint.
type Response struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError is a machine-readable error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Health is the /healthz payload.
type Health struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Arms          int     `json:"arms"`
	Pending       int     `json:"pending_attributions"`
	Buffered      int     `json:"buffered_events"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()
	h.respond(w, r, http.StatusOK, Health{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.started).Seconds(),
		Arms:          stats.TotalArms,
		Pending:       stats.Tracker.PendingCount,
		Buffered:      stats.Tracker.BufferSize,
	})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK, h.engine.Stats())
}

func (h *handler) ranking(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxRankingLimit {
			h.respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR",
				"limit must be an integer between 0 and "+strconv.Itoa(maxRankingLimit))
			return
		}
		limit = n
	}
	h.respond(w, r, http.StatusOK, h.engine.Ranking(limit))
}

func (h *handler) arm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stats, ok := h.engine.ArmStats(id)
	if !ok {
		h.respondError(w, r, http.StatusNotFound, "NOT_FOUND", "unknown arm")
		return
	}
	h.respond(w, r, http.StatusOK, stats)
}

func (h *handler) respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	h.write(w, r, status, &Response{
		Status: "success",
		Data:   data,
		Metadata: Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
	})
}

func (h *handler) respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	logging.Ctx(r.Context()).Debug().Str("code", code).Str("path", r.URL.Path).Msg("ops request rejected")
	h.write(w, r, status, &Response{
		Status: "error",
		Metadata: Metadata{
			Timestamp: time.Now().UTC(),
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Error: &APIError{Code: code, Message: message},
	})
}

func (h *handler) write(w http.ResponseWriter, r *http.Request, status int, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write JSON response")
	}
}
