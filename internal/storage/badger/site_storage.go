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

// SiteStorage implements interfaces.SiteStorage for Badger
type SiteStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSiteStorage creates a new SiteStorage instance
func NewSiteStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SiteStorage {
	return &SiteStorage{db: db, logger: logger}
}

func (s *SiteStorage) Get(ctx context.Context, id string) (*models.Site, error) {
	var site models.Site
	if err := s.db.Store().Get(id, &site); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("site not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return &site, nil
}

func (s *SiteStorage) List(ctx context.Context) ([]*models.Site, error) {
	var sites []models.Site
	if err := s.db.Store().Find(&sites, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}

	result := make([]*models.Site, len(sites))
	for i := range sites {
		result[i] = &sites[i]
	}
	return result, nil
}

func (s *SiteStorage) ListEnabled(ctx context.Context) ([]*models.Site, error) {
	var sites []models.Site
	if err := s.db.Store().Find(&sites, badgerhold.Where("Enabled").Eq(true).SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list enabled sites: %w", err)
	}

	result := make([]*models.Site, len(sites))
	for i := range sites {
		result[i] = &sites[i]
	}
	return result, nil
}

func (s *SiteStorage) Save(ctx context.Context, site *models.Site) error {
	if site.ID == "" {
		return fmt.Errorf("site ID is required")
	}
	site.UpdatedAt = time.Now()
	if site.CreatedAt.IsZero() {
		site.CreatedAt = site.UpdatedAt
	}
	if site.LastStatus == "" {
		site.LastStatus = models.SiteStatusPending
	}

	if err := s.db.Store().Upsert(site.ID, site); err != nil {
		return fmt.Errorf("failed to save site: %w", err)
	}
	return nil
}

func (s *SiteStorage) Delete(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Site{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("site not found: %s", id)
		}
		return fmt.Errorf("failed to delete site: %w", err)
	}
	return nil
}

func (s *SiteStorage) UpdateStatus(ctx context.Context, id string, status models.SiteStatus, fieldsFilled int, lastRun time.Time) error {
	site, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	site.LastStatus = status
	site.LastFieldsFilled = fieldsFilled
	site.LastRun = &lastRun

	return s.Save(ctx, site)
}

func (s *SiteStorage) UpdateCachedPlan(ctx context.Context, id string, plan *models.FieldPlan) error {
	site, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	site.CachedPlan = plan.Clone()

	return s.Save(ctx, site)
}
