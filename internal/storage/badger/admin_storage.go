package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AdminStorage implements interfaces.AdminStorage for Badger
type AdminStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAdminStorage creates a new AdminStorage instance
func NewAdminStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AdminStorage {
	return &AdminStorage{db: db, logger: logger}
}

func (s *AdminStorage) SaveClient(ctx context.Context, client *models.ClientInfo) error {
	if client.MachineID == "" {
		return fmt.Errorf("client machine ID is required")
	}

	if err := s.db.Store().Upsert(client.MachineID, client); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

func (s *AdminStorage) ListClients(ctx context.Context) ([]*models.ClientInfo, error) {
	var clients []models.ClientInfo
	if err := s.db.Store().Find(&clients, badgerhold.Where("MachineID").Ne("").SortBy("Hostname")); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	result := make([]*models.ClientInfo, len(clients))
	for i := range clients {
		result[i] = &clients[i]
	}
	return result, nil
}

func (s *AdminStorage) QueueCommand(ctx context.Context, cmd *models.Command) error {
	if cmd.ID == "" {
		return fmt.Errorf("command ID is required")
	}
	if cmd.MachineID == "" {
		return fmt.Errorf("command machine ID is required")
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(cmd.ID, cmd); err != nil {
		return fmt.Errorf("failed to queue command: %w", err)
	}
	return nil
}

func (s *AdminStorage) PendingCommands(ctx context.Context, machineID string) ([]*models.Command, error) {
	var commands []models.Command
	query := badgerhold.Where("MachineID").Eq(machineID).And("Delivered").Eq(false).SortBy("CreatedAt")
	if err := s.db.Store().Find(&commands, query); err != nil {
		return nil, fmt.Errorf("failed to list pending commands: %w", err)
	}

	result := make([]*models.Command, len(commands))
	for i := range commands {
		result[i] = &commands[i]
	}
	return result, nil
}

func (s *AdminStorage) MarkDelivered(ctx context.Context, commandID string) error {
	var cmd models.Command
	if err := s.db.Store().Get(commandID, &cmd); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("command not found: %s", commandID)
		}
		return fmt.Errorf("failed to get command: %w", err)
	}

	cmd.Delivered = true
	if err := s.db.Store().Upsert(commandID, &cmd); err != nil {
		return fmt.Errorf("failed to mark command delivered: %w", err)
	}
	return nil
}

// SaveResult stores a command result. Keyed on command id, so a duplicate
// report from a client leaves exactly one row.
func (s *AdminStorage) SaveResult(ctx context.Context, result *models.CommandResult) error {
	if result.CommandID == "" {
		return fmt.Errorf("result command ID is required")
	}
	if result.ReportedAt.IsZero() {
		result.ReportedAt = time.Now()
	}

	if err := s.db.Store().Insert(result.CommandID, result); err != nil {
		if err == badgerhold.ErrKeyExists {
			return nil
		}
		return fmt.Errorf("failed to save command result: %w", err)
	}
	return nil
}

func (s *AdminStorage) ListResults(ctx context.Context, machineID string, limit int) ([]*models.CommandResult, error) {
	query := badgerhold.Where("CommandID").Ne("")
	if machineID != "" {
		query = badgerhold.Where("MachineID").Eq(machineID)
	}
	query = query.SortBy("ReportedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var results []models.CommandResult
	if err := s.db.Store().Find(&results, query); err != nil {
		return nil, fmt.Errorf("failed to list command results: %w", err)
	}

	out := make([]*models.CommandResult, len(results))
	for i := range results {
		out[i] = &results[i]
	}
	return out, nil
}
