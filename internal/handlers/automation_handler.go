package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
	"github.com/ternarybob/compleo/internal/services/scheduler"
)

// AutomationHandler serves /api/automation: starting, stopping, and
// inspecting fill jobs.
type AutomationHandler struct {
	scheduler *scheduler.Scheduler
	sites     interfaces.SiteStorage
	jobs      interfaces.JobStorage
	history   interfaces.HistoryStorage
	logger    arbor.ILogger
}

// NewAutomationHandler creates an automation handler.
func NewAutomationHandler(
	sched *scheduler.Scheduler,
	sites interfaces.SiteStorage,
	jobs interfaces.JobStorage,
	history interfaces.HistoryStorage,
	logger arbor.ILogger,
) *AutomationHandler {
	return &AutomationHandler{
		scheduler: sched,
		sites:     sites,
		jobs:      jobs,
		history:   history,
		logger:    logger,
	}
}

type startRequest struct {
	ProfileID string `json:"profile_id"`
	URL       string `json:"url,omitempty"`
	SiteID    string `json:"site_id,omitempty"`
	Submit    bool   `json:"submit,omitempty"`
	Headless  *bool  `json:"headless,omitempty"`
}

// HandleStart serves POST /api/automation/start.
func (h *AutomationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req startRequest
	if err := DecodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if req.ProfileID == "" {
		WriteError(w, http.StatusBadRequest, "profile_id is required")
		return
	}
	if req.URL == "" && req.SiteID == "" {
		WriteError(w, http.StatusBadRequest, "either url or site_id is required")
		return
	}

	url := req.URL
	if url == "" {
		site, err := h.sites.Get(r.Context(), req.SiteID)
		if err != nil || site == nil {
			WriteError(w, http.StatusNotFound, "Site not found")
			return
		}
		if !site.Enabled {
			WriteError(w, http.StatusConflict, "Site is disabled")
			return
		}
		url = site.URL
	}

	headless := true
	if req.Headless != nil {
		headless = *req.Headless
	}

	job, err := h.scheduler.Enqueue(r.Context(), scheduler.JobRequest{
		URL:       url,
		SiteID:    req.SiteID,
		ProfileID: req.ProfileID,
		Options:   models.JobOptions{Submit: req.Submit, Headless: headless},
	})
	if err != nil {
		switch {
		case strings.Contains(err.Error(), string(models.ErrLicenseInvalid)):
			WriteErrorCode(w, http.StatusForbidden, string(models.ErrLicenseInvalid), "license check failed")
		case strings.Contains(err.Error(), string(models.ErrCapacityExhausted)):
			WriteErrorCode(w, http.StatusTooManyRequests, string(models.ErrCapacityExhausted), "all job slots are busy")
		default:
			WriteError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// HandleStop serves POST /api/automation/stop and /api/automation/stop/{job_id}.
func (h *AutomationHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/automation/stop"), "/")

	if jobID != "" {
		if err := h.scheduler.Cancel(jobID); err != nil {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	stopped := h.scheduler.CancelAll()
	WriteJSON(w, http.StatusOK, map[string]int{"stopped": stopped})
}

// HandleJobs serves GET /api/jobs and /api/jobs/{id}.
func (h *AutomationHandler) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/jobs"), "/")
	if id != "" {
		job, err := h.jobs.Get(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "Failed to load job")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		WriteJSON(w, http.StatusOK, job)
		return
	}

	limit := GetLimitParam(r, 50, 500)
	jobs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

// HandleHistory serves GET /api/history.
func (h *AutomationHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := GetLimitParam(r, 100, 1000)
	entries, err := h.history.List(r.Context(), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list history")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"history": entries, "count": len(entries)})
}
