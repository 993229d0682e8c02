package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/yndnr/authmesh-go/internal/core/domain"
	"github.com/yndnr/authmesh-go/internal/infra/buildinfo"
)

// readyTimeout bounds the storage probe behind /ready.
const readyTimeout = 2 * time.Second

var processStart = time.Now()

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

type readyResponse struct {
	Status  string `json:"status"`
	Latency string `json:"storage_latency"`
}

// handleHealth answers liveness probes without touching storage.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, healthResponse{
		Status:  "healthy",
		Version: buildinfo.Version,
		Uptime:  time.Since(processStart).Truncate(time.Second).String(),
	})
}

// handleReady opens one read transaction and reports 503 if it fails.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	start := time.Now()
	if err := h.auth.Ready(ctx); err != nil {
		h.handleServiceError(w, r, domain.ErrServiceUnavailable.WithCause(err))
		return
	}
	h.writeJSON(w, r, http.StatusOK, readyResponse{
		Status:  "ready",
		Latency: time.Since(start).String(),
	})
}
