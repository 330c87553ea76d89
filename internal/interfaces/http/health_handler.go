package httpapi

import (
	"context"
	"net/http"

	"forgetful-backend/pkg/api"
)

// Pinger is the readiness dependency, satisfied by the repository.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler wires the handler.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// Health handles GET /health: process liveness only.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /ready: the store must answer a ping.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		api.Error(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "ready"})
}
