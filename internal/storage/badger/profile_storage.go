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

// ProfileStorage implements interfaces.ProfileStorage for Badger
type ProfileStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewProfileStorage creates a new ProfileStorage instance
func NewProfileStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ProfileStorage {
	return &ProfileStorage{db: db, logger: logger}
}

func (s *ProfileStorage) Get(ctx context.Context, id string) (*models.Profile, error) {
	var profile models.Profile
	if err := s.db.Store().Get(id, &profile); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("profile not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

func (s *ProfileStorage) List(ctx context.Context) ([]*models.Profile, error) {
	var profiles []models.Profile
	if err := s.db.Store().Find(&profiles, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}

	result := make([]*models.Profile, len(profiles))
	for i := range profiles {
		result[i] = &profiles[i]
	}
	return result, nil
}

func (s *ProfileStorage) Save(ctx context.Context, profile *models.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("profile ID is required")
	}
	profile.UpdatedAt = time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = profile.UpdatedAt
	}

	if err := s.db.Store().Upsert(profile.ID, profile); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *ProfileStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Profile{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("profile not found: %s", id)
		}
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}
