package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
)

// SiteHandler serves the /api/sites surface.
type SiteHandler struct {
	sites  interfaces.SiteStorage
	logger arbor.ILogger
}

// NewSiteHandler creates a site handler.
func NewSiteHandler(sites interfaces.SiteStorage, logger arbor.ILogger) *SiteHandler {
	return &SiteHandler{sites: sites, logger: logger}
}

// HandleSites dispatches /api/sites, /api/sites/{id}, /api/sites/{id}/toggle.
func (h *SiteHandler) HandleSites(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sites"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.list(w, r)
	case rest == "" && r.Method == http.MethodPost:
		h.create(w, r)
	case len(parts) == 2 && parts[1] == "toggle" && r.Method == http.MethodPost:
		h.toggle(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.get(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodPut:
		h.update(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.delete(w, r, parts[0])
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// list returns all sites plus aggregate stats.
func (h *SiteHandler) list(w http.ResponseWriter, r *http.Request) {
	sites, err := h.sites.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list sites")
		WriteError(w, http.StatusInternalServerError, "Failed to list sites")
		return
	}

	stats := models.SiteStats{Total: len(sites)}
	for _, site := range sites {
		if site.Enabled {
			stats.Enabled++
		}
		switch site.LastStatus {
		case models.SiteStatusSuccess:
			stats.Succeeded++
		case models.SiteStatusFailed:
			stats.Failed++
		}
	}
	if ran := stats.Succeeded + stats.Failed; ran > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(ran)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"sites": sites, "stats": stats})
}

func (h *SiteHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	site, err := h.sites.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load site")
		return
	}
	if site == nil {
		WriteError(w, http.StatusNotFound, "Site not found")
		return
	}
	WriteJSON(w, http.StatusOK, site)
}

type createSiteRequest struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

func (h *SiteHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSiteRequest
	if err := DecodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid site payload: "+err.Error())
		return
	}
	if err := common.ValidateSiteURL(req.URL); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := req.Name
	if name == "" {
		if domain, err := common.RegistrableDomain(req.URL); err == nil {
			name = domain
		} else {
			name = req.URL
		}
	}

	site := &models.Site{
		ID:         common.NewSiteID(),
		URL:        req.URL,
		Name:       name,
		Enabled:    true,
		LastStatus: models.SiteStatusPending,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := h.sites.Save(r.Context(), site); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save site")
		WriteError(w, http.StatusInternalServerError, "Failed to save site")
		return
	}

	h.logger.Info().Str("site_id", site.ID).Str("url", site.URL).Msg("Site created")
	WriteJSON(w, http.StatusCreated, site)
}

type updateSiteRequest struct {
	URL     *string `json:"url,omitempty"`
	Name    *string `json:"name,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

func (h *SiteHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	site, err := h.sites.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load site")
		return
	}
	if site == nil {
		WriteError(w, http.StatusNotFound, "Site not found")
		return
	}

	var req updateSiteRequest
	if err := DecodeBody(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid site payload: "+err.Error())
		return
	}

	if req.URL != nil {
		if err := common.ValidateSiteURL(*req.URL); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		site.URL = *req.URL
	}
	if req.Name != nil {
		site.Name = *req.Name
	}
	if req.Enabled != nil {
		site.Enabled = *req.Enabled
	}
	site.UpdatedAt = time.Now()

	if err := h.sites.Save(r.Context(), site); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to save site")
		return
	}
	WriteJSON(w, http.StatusOK, site)
}

func (h *SiteHandler) toggle(w http.ResponseWriter, r *http.Request, id string) {
	site, err := h.sites.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load site")
		return
	}
	if site == nil {
		WriteError(w, http.StatusNotFound, "Site not found")
		return
	}

	site.Enabled = !site.Enabled
	site.UpdatedAt = time.Now()
	if err := h.sites.Save(r.Context(), site); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to save site")
		return
	}
	WriteJSON(w, http.StatusOK, site)
}

func (h *SiteHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.sites.Delete(r.Context(), id); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to delete site")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
