package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"forgetful-backend/internal/auth"
	"forgetful-backend/internal/events"
	"forgetful-backend/internal/service/backup"
	reembedsvc "forgetful-backend/internal/service/reembed"
	"forgetful-backend/pkg/api"
)

// AdminHandler serves the operational endpoints: re-embedding, backups, and
// the activity feed. Re-embed rewrites every vector in the store; callers are
// expected to snapshot first.
type AdminHandler struct {
	reembed   *reembedsvc.Service
	backups   backup.Service
	bus       *events.Bus
	backupDir string
	logger    *zap.Logger
}

// NewAdminHandler wires the handler. bus may be nil when the feed is off.
func NewAdminHandler(reembed *reembedsvc.Service, backups backup.Service, bus *events.Bus, backupDir string, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		reembed:   reembed,
		backups:   backups,
		bus:       bus,
		backupDir: backupDir,
		logger:    logger.Named("admin_handler"),
	}
}

// Reembed handles POST /api/v1/admin/reembed. The run is synchronous: the
// response carries the final result and validation verdict. Cancellation via
// client disconnect keeps committed batches.
func (h *AdminHandler) Reembed(w http.ResponseWriter, r *http.Request) {
	result, err := h.reembed.Run(r.Context(), func(p reembedsvc.Progress) {
		h.logger.Info("re-embed progress",
			zap.Int("processed", p.Processed),
			zap.Int("total", p.Total),
			zap.Int("batch", p.Batch),
		)
	})
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, result)
}

// Backup handles POST /api/v1/admin/backup.
func (h *AdminHandler) Backup(w http.ResponseWriter, r *http.Request) {
	path, err := h.backups.Snapshot(r.Context(), h.backupDir)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"snapshot": path})
}

// Activity handles GET /api/v1/activity: the caller's recent events, newest
// first.
func (h *AdminHandler) Activity(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFrom(r.Context())

	limit, err := queryInt(r, "limit")
	if err != nil {
		api.WriteError(w, err)
		return
	}
	n := 50
	if limit != nil {
		n = *limit
	}

	recent := []events.Event{}
	if h.bus != nil {
		recent = h.bus.Recent(userID, n)
	}
	api.Success(w, http.StatusOK, map[string]interface{}{"events": recent})
}
