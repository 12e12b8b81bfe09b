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

// HistoryStorage implements interfaces.HistoryStorage for Badger
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a new HistoryStorage instance
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HistoryStorage {
	return &HistoryStorage{db: db, logger: logger}
}

// Append stores a history entry. Keyed on job id, so repeated appends for the
// same job leave exactly one row.
func (s *HistoryStorage) Append(ctx context.Context, entry *models.FillHistoryEntry) error {
	if entry.JobID == "" {
		return fmt.Errorf("history entry requires a job ID")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	if err := s.db.Store().Insert(entry.JobID, entry); err != nil {
		if err == badgerhold.ErrKeyExists {
			// Idempotent on job id
			return nil
		}
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (s *HistoryStorage) List(ctx context.Context, limit int) ([]*models.FillHistoryEntry, error) {
	query := badgerhold.Where("JobID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var entries []models.FillHistoryEntry
	if err := s.db.Store().Find(&entries, query); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	result := make([]*models.FillHistoryEntry, len(entries))
	for i := range entries {
		result[i] = &entries[i]
	}
	return result, nil
}

func (s *HistoryStorage) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var entries []models.FillHistoryEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("CreatedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find stale history: %w", err)
	}

	deleted := 0
	for i := range entries {
		if err := s.db.Store().Delete(entries[i].JobID, &models.FillHistoryEntry{}); err != nil {
			s.logger.Warn().Err(err).Str("job_id", entries[i].JobID).Msg("Failed to delete history entry")
			continue
		}
		deleted++
	}
	return deleted, nil
}
