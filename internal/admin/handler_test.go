package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/models"
)

type memAdminStorage struct {
	mu       sync.Mutex
	clients  map[string]*models.ClientInfo
	commands map[string]*models.Command
	results  map[string]*models.CommandResult
}

func newMemAdminStorage() *memAdminStorage {
	return &memAdminStorage{
		clients:  make(map[string]*models.ClientInfo),
		commands: make(map[string]*models.Command),
		results:  make(map[string]*models.CommandResult),
	}
}

func (m *memAdminStorage) SaveClient(_ context.Context, client *models.ClientInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *client
	m.clients[client.MachineID] = &copied
	return nil
}

func (m *memAdminStorage) ListClients(_ context.Context) ([]*models.ClientInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ClientInfo, 0, len(m.clients))
	for _, c := range m.clients {
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out, nil
}

func (m *memAdminStorage) QueueCommand(_ context.Context, cmd *models.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *cmd
	m.commands[cmd.ID] = &copied
	return nil
}

func (m *memAdminStorage) PendingCommands(_ context.Context, machineID string) ([]*models.Command, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Command
	for _, cmd := range m.commands {
		if cmd.MachineID == machineID && !cmd.Delivered {
			copied := *cmd
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memAdminStorage) MarkDelivered(_ context.Context, commandID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd, ok := m.commands[commandID]
	if !ok {
		return assert.AnError
	}
	cmd.Delivered = true
	return nil
}

func (m *memAdminStorage) SaveResult(_ context.Context, result *models.CommandResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.results[result.CommandID]; exists {
		return nil
	}
	copied := *result
	m.results[result.CommandID] = &copied
	return nil
}

func (m *memAdminStorage) ListResults(_ context.Context, machineID string, limit int) ([]*models.CommandResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.CommandResult
	for _, r := range m.results {
		if machineID == "" || r.MachineID == machineID {
			copied := *r
			out = append(out, &copied)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestHandler(store *memAdminStorage, config *common.AdminServerConfig) *Handler {
	return NewHandler(store, config, 5*time.Second, arbor.GetLogger())
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHeartbeatRegistersClient(t *testing.T) {
	store := newMemAdminStorage()
	h := newTestHandler(store, nil)

	rec := postJSON(t, h.HandleHeartbeat, "/api/heartbeat", models.Heartbeat{
		MachineID: "MACHINE-abc123",
		Hostname:  "node-1",
		Platform:  "linux",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var ack models.HeartbeatAck
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
	assert.Equal(t, "ok", ack.Status)
	assert.True(t, ack.LicenseValid, "no configured keys means any license passes")
	assert.Empty(t, ack.Commands)

	clients, err := store.ListClients(context.Background())
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "node-1", clients[0].Hostname)
}

func TestHeartbeatRejectsMissingMachineID(t *testing.T) {
	h := newTestHandler(newMemAdminStorage(), nil)
	rec := postJSON(t, h.HandleHeartbeat, "/api/heartbeat", models.Heartbeat{Hostname: "node-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHeartbeatLicenseValidation(t *testing.T) {
	config := &common.AdminServerConfig{LicenseKeys: []string{"LIC-GOOD"}}
	h := newTestHandler(newMemAdminStorage(), config)

	rec := postJSON(t, h.HandleHeartbeat, "/api/heartbeat", models.Heartbeat{
		MachineID:  "MACHINE-abc123",
		LicenseKey: "LIC-BAD",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var ack models.HeartbeatAck
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
	assert.False(t, ack.LicenseValid)

	rec = postJSON(t, h.HandleHeartbeat, "/api/heartbeat", models.Heartbeat{
		MachineID:  "MACHINE-abc123",
		LicenseKey: "LIC-GOOD",
	})
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
	assert.True(t, ack.LicenseValid)
}

func TestHeartbeatDeliversPendingCommandsOnce(t *testing.T) {
	store := newMemAdminStorage()
	h := newTestHandler(store, nil)

	require.NoError(t, store.QueueCommand(context.Background(), &models.Command{
		ID:        "cmd_1",
		MachineID: "MACHINE-abc123",
		Kind:      models.CmdPing,
		CreatedAt: time.Now(),
	}))

	rec := postJSON(t, h.HandleHeartbeat, "/api/heartbeat", models.Heartbeat{MachineID: "MACHINE-abc123"})
	var ack models.HeartbeatAck
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ack))
	require.Len(t, ack.Commands, 1)
	assert.Equal(t, "cmd_1", ack.Commands[0].ID)

	// Second heartbeat: command was marked delivered, not re-sent
	rec = postJSON(t, h.HandleHeartbeat, "/api/heartbeat", models.Heartbeat{MachineID: "MACHINE-abc123"})
	var second models.HeartbeatAck
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&second))
	assert.Empty(t, second.Commands)
}

func TestClientsOnlineWindow(t *testing.T) {
	store := newMemAdminStorage()
	h := newTestHandler(store, nil) // 5s interval, 15s online window

	now := time.Now()
	require.NoError(t, store.SaveClient(context.Background(), &models.ClientInfo{
		MachineID: "MACHINE-fresh", Hostname: "a", LastSeen: now.Add(-2 * time.Second),
	}))
	require.NoError(t, store.SaveClient(context.Background(), &models.ClientInfo{
		MachineID: "MACHINE-stale", Hostname: "b", LastSeen: now.Add(-30 * time.Second),
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/clients", nil)
	rec := httptest.NewRecorder()
	h.HandleClients(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Clients []*models.ClientInfo `json:"clients"`
		Count   int                  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 2, resp.Count)

	byID := map[string]bool{}
	for _, c := range resp.Clients {
		byID[c.MachineID] = c.IsOnline
	}
	assert.True(t, byID["MACHINE-fresh"])
	assert.False(t, byID["MACHINE-stale"])
}

func TestSendCommandQueues(t *testing.T) {
	store := newMemAdminStorage()
	h := newTestHandler(store, nil)

	rec := postJSON(t, h.HandleSendCommand, "/api/send_command", map[string]interface{}{
		"machine_id": "MACHINE-abc123",
		"kind":       "ping",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var cmd models.Command
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cmd))
	assert.NotEmpty(t, cmd.ID)
	assert.Equal(t, models.CmdPing, cmd.Kind)

	pending, err := store.PendingCommands(context.Background(), "MACHINE-abc123")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSendCommandRequiresFields(t *testing.T) {
	h := newTestHandler(newMemAdminStorage(), nil)
	rec := postJSON(t, h.HandleSendCommand, "/api/send_command", map[string]interface{}{"kind": "ping"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommandResultStoredOnce(t *testing.T) {
	store := newMemAdminStorage()
	h := newTestHandler(store, nil)

	result := models.CommandResult{
		CommandID: "cmd_1",
		MachineID: "MACHINE-abc123",
		Kind:      models.CmdPing,
		Status:    "success",
	}
	rec := postJSON(t, h.HandleCommandResult, "/api/command_result", result)
	require.Equal(t, http.StatusOK, rec.Code)

	// Duplicate report is acknowledged but not duplicated
	rec = postJSON(t, h.HandleCommandResult, "/api/command_result", result)
	require.Equal(t, http.StatusOK, rec.Code)

	results, err := store.ListResults(context.Background(), "MACHINE-abc123", 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestListCommandResultsFiltersByMachine(t *testing.T) {
	store := newMemAdminStorage()
	h := newTestHandler(store, nil)

	require.NoError(t, store.SaveResult(context.Background(), &models.CommandResult{
		CommandID: "cmd_1", MachineID: "MACHINE-a", Status: "success",
	}))
	require.NoError(t, store.SaveResult(context.Background(), &models.CommandResult{
		CommandID: "cmd_2", MachineID: "MACHINE-b", Status: "success",
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/command_results?machine_id=MACHINE-a", nil)
	rec := httptest.NewRecorder()
	h.HandleCommandResults(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []*models.CommandResult `json:"results"`
		Count   int                     `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "cmd_1", resp.Results[0].CommandID)
}
