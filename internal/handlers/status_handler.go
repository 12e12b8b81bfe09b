package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/services/scheduler"
)

// StatusHandler serves /api/status, /api/health and /api/version.
type StatusHandler struct {
	scheduler *scheduler.Scheduler
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(sched *scheduler.Scheduler, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		scheduler: sched,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// HandleStatus serves GET /api/status.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"version":        common.GetVersion(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"scheduler":      h.scheduler.Status(),
	})
}

// HandleHealth serves GET /api/health.
func (h *StatusHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status := "healthy"
	if !h.scheduler.Status().Running {
		status = "degraded"
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": status})
}

// HandleVersion serves GET /api/version.
func (h *StatusHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"full":    common.GetFullVersion(),
	})
}
