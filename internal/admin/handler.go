package admin

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/handlers"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
)

// Handler serves the central admin surface: heartbeats from nodes, the client
// roster, and command queueing/results.
type Handler struct {
	storage     interfaces.AdminStorage
	config      *common.AdminServerConfig
	heartbeatIn time.Duration
	logger      arbor.ILogger
}

// NewHandler creates the admin handler. heartbeatInterval is the expected node
// heartbeat spacing, used to compute online status.
func NewHandler(storage interfaces.AdminStorage, config *common.AdminServerConfig, heartbeatInterval time.Duration, logger arbor.ILogger) *Handler {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 5 * time.Second
	}
	return &Handler{
		storage:     storage,
		config:      config,
		heartbeatIn: heartbeatInterval,
		logger:      logger,
	}
}

// HandleHeartbeat serves POST /api/heartbeat. Registers or refreshes the
// client record and returns any pending commands, which are marked delivered.
func (h *Handler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodPost) {
		return
	}

	var hb models.Heartbeat
	if err := handlers.DecodeBody(r, &hb); err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "Invalid heartbeat payload: "+err.Error())
		return
	}
	if hb.MachineID == "" {
		handlers.WriteError(w, http.StatusBadRequest, "machine_id is required")
		return
	}

	client := &models.ClientInfo{
		MachineID:       hb.MachineID,
		Hostname:        hb.Hostname,
		LocalIP:         hb.LocalIP,
		Platform:        hb.Platform,
		PlatformVersion: hb.PlatformVersion,
		Version:         hb.Version,
		LicenseKey:      hb.LicenseKey,
		LastSeen:        time.Now(),
	}
	if err := h.storage.SaveClient(r.Context(), client); err != nil {
		h.logger.Error().Err(err).Str("machine_id", hb.MachineID).Msg("Failed to save client")
		handlers.WriteError(w, http.StatusInternalServerError, "Failed to register client")
		return
	}

	ack := models.HeartbeatAck{
		Status:       "ok",
		LicenseValid: h.licenseValid(hb.LicenseKey),
	}

	pending, err := h.storage.PendingCommands(r.Context(), hb.MachineID)
	if err != nil {
		h.logger.Warn().Err(err).Str("machine_id", hb.MachineID).Msg("Failed to load pending commands")
	}
	for _, cmd := range pending {
		if err := h.storage.MarkDelivered(r.Context(), cmd.ID); err != nil {
			h.logger.Warn().Err(err).Str("command_id", cmd.ID).Msg("Failed to mark command delivered")
			continue
		}
		ack.Commands = append(ack.Commands, cmd)
	}

	handlers.WriteJSON(w, http.StatusOK, ack)
}

// HandleClients serves GET /api/clients. A client is online when its last
// heartbeat is younger than three intervals.
func (h *Handler) HandleClients(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodGet) {
		return
	}

	clients, err := h.storage.ListClients(r.Context())
	if err != nil {
		handlers.WriteError(w, http.StatusInternalServerError, "Failed to list clients")
		return
	}

	cutoff := time.Now().Add(-3 * h.heartbeatIn)
	for _, client := range clients {
		client.IsOnline = client.LastSeen.After(cutoff)
	}

	handlers.WriteJSON(w, http.StatusOK, map[string]interface{}{"clients": clients, "count": len(clients)})
}

type sendCommandRequest struct {
	MachineID string                 `json:"machine_id"`
	Kind      models.CommandKind     `json:"kind"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// HandleSendCommand serves POST /api/send_command.
func (h *Handler) HandleSendCommand(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req sendCommandRequest
	if err := handlers.DecodeBody(r, &req); err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "Invalid command payload: "+err.Error())
		return
	}
	if req.MachineID == "" || req.Kind == "" {
		handlers.WriteError(w, http.StatusBadRequest, "machine_id and kind are required")
		return
	}

	cmd := &models.Command{
		ID:        common.NewCommandID(),
		MachineID: req.MachineID,
		Kind:      req.Kind,
		Params:    req.Params,
		CreatedAt: time.Now(),
	}
	if err := h.storage.QueueCommand(r.Context(), cmd); err != nil {
		h.logger.Error().Err(err).Str("machine_id", req.MachineID).Msg("Failed to queue command")
		handlers.WriteError(w, http.StatusInternalServerError, "Failed to queue command")
		return
	}

	h.logger.Info().
		Str("command_id", cmd.ID).
		Str("machine_id", cmd.MachineID).
		Str("kind", string(cmd.Kind)).
		Msg("Command queued")
	handlers.WriteJSON(w, http.StatusCreated, cmd)
}

// HandleCommandResult serves POST /api/command_result. Duplicate reports for
// the same command id are acknowledged but stored once.
func (h *Handler) HandleCommandResult(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodPost) {
		return
	}

	var result models.CommandResult
	if err := handlers.DecodeBody(r, &result); err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "Invalid result payload: "+err.Error())
		return
	}
	if result.CommandID == "" {
		handlers.WriteError(w, http.StatusBadRequest, "command_id is required")
		return
	}

	if err := h.storage.SaveResult(r.Context(), &result); err != nil {
		handlers.WriteError(w, http.StatusInternalServerError, "Failed to save result")
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// HandleCommandResults serves GET /api/command_results?machine_id=&limit=.
func (h *Handler) HandleCommandResults(w http.ResponseWriter, r *http.Request) {
	if !handlers.RequireMethod(w, r, http.MethodGet) {
		return
	}

	machineID := r.URL.Query().Get("machine_id")
	limit := handlers.GetLimitParam(r, 100, 1000)

	results, err := h.storage.ListResults(r.Context(), machineID, limit)
	if err != nil {
		handlers.WriteError(w, http.StatusInternalServerError, "Failed to list results")
		return
	}
	handlers.WriteJSON(w, http.StatusOK, map[string]interface{}{"results": results, "count": len(results)})
}

// licenseValid accepts any key when no keys are configured.
func (h *Handler) licenseValid(key string) bool {
	if h.config == nil || len(h.config.LicenseKeys) == 0 {
		return true
	}
	for _, valid := range h.config.LicenseKeys {
		if key == valid {
			return true
		}
	}
	return false
}
