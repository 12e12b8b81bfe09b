package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
)

// ProfileHandler serves the /api/profiles surface.
type ProfileHandler struct {
	profiles interfaces.ProfileStorage
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewProfileHandler creates a profile handler.
func NewProfileHandler(profiles interfaces.ProfileStorage, logger arbor.ILogger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleProfiles dispatches /api/profiles and /api/profiles/{id}.
func (h *ProfileHandler) HandleProfiles(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/profiles")
	id = strings.Trim(id, "/")

	switch {
	case id == "" && r.Method == http.MethodGet:
		h.list(w, r)
	case id == "" && r.Method == http.MethodPost:
		h.create(w, r)
	case id != "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case id != "" && r.Method == http.MethodPut:
		h.update(w, r, id)
	case id != "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list profiles")
		WriteError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"profiles": profiles, "count": len(profiles)})
}

func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	profile, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}
	if profile == nil {
		WriteError(w, http.StatusNotFound, "Profile not found")
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) create(w http.ResponseWriter, r *http.Request) {
	var profile models.Profile
	if err := DecodeBody(r, &profile); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid profile payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(&profile); err != nil {
		WriteError(w, http.StatusBadRequest, "Profile validation failed: "+err.Error())
		return
	}

	if profile.ID == "" {
		profile.ID = common.NewProfileID()
	}
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = profile.CreatedAt

	if err := h.profiles.Save(r.Context(), &profile); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save profile")
		WriteError(w, http.StatusInternalServerError, "Failed to save profile")
		return
	}

	h.logger.Info().Str("profile_id", profile.ID).Msg("Profile created")
	WriteJSON(w, http.StatusCreated, profile)
}

func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	existing, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}
	if existing == nil {
		WriteError(w, http.StatusNotFound, "Profile not found")
		return
	}

	var profile models.Profile
	if err := DecodeBody(r, &profile); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid profile payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(&profile); err != nil {
		WriteError(w, http.StatusBadRequest, "Profile validation failed: "+err.Error())
		return
	}

	profile.ID = id
	profile.CreatedAt = existing.CreatedAt
	profile.UpdatedAt = time.Now()

	if err := h.profiles.Save(r.Context(), &profile); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to save profile")
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.profiles.Delete(r.Context(), id); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to delete profile")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
