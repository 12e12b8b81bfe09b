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

// MappingStorage implements interfaces.MappingStorage for Badger.
// The whole mapping record is replaced on Put, so readers always see a
// consistent snapshot. Per-domain write serialization is the resolver's job.
type MappingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewMappingStorage creates a new MappingStorage instance
func NewMappingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.MappingStorage {
	return &MappingStorage{db: db, logger: logger}
}

func (s *MappingStorage) Get(ctx context.Context, domain string) (*models.DomainMapping, error) {
	var mapping models.DomainMapping
	if err := s.db.Store().Get(domain, &mapping); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get domain mapping: %w", err)
	}

	// Deep-copy entries so callers cannot mutate the stored record
	entries := make([]models.FieldEntry, len(mapping.Entries))
	copy(entries, mapping.Entries)
	mapping.Entries = entries

	return &mapping, nil
}

// Put replaces the mapping for a domain atomically, advancing its version by
// one relative to the stored record. Entries must already be deduplicated.
func (s *MappingStorage) Put(ctx context.Context, domain string, entries []models.FieldEntry, url string) (int, error) {
	if domain == "" {
		return 0, fmt.Errorf("domain is required")
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("refusing to store empty mapping for %s", domain)
	}

	existing, err := s.Get(ctx, domain)
	if err != nil {
		return 0, err
	}

	version := 1
	firstURL := url
	if existing != nil {
		version = existing.Version + 1
		if existing.URL != "" {
			firstURL = existing.URL // URL of first learning is retained
		}
	}

	stored := make([]models.FieldEntry, len(entries))
	copy(stored, entries)

	mapping := &models.DomainMapping{
		Domain:    domain,
		Entries:   stored,
		URL:       firstURL,
		Version:   version,
		UpdatedAt: time.Now(),
	}

	if err := s.db.Store().Upsert(domain, mapping); err != nil {
		return 0, fmt.Errorf("failed to store domain mapping: %w", err)
	}

	s.logger.Debug().
		Str("domain", domain).
		Int("entries", len(entries)).
		Int("version", version).
		Msg("Domain mapping stored")

	return version, nil
}

func (s *MappingStorage) Delete(ctx context.Context, domain string) error {
	if err := s.db.Store().Delete(domain, &models.DomainMapping{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete domain mapping: %w", err)
	}
	return nil
}

func (s *MappingStorage) List(ctx context.Context) ([]*models.DomainMapping, error) {
	var mappings []models.DomainMapping
	if err := s.db.Store().Find(&mappings, badgerhold.Where("Domain").Ne("").SortBy("Domain")); err != nil {
		return nil, fmt.Errorf("failed to list domain mappings: %w", err)
	}

	result := make([]*models.DomainMapping, len(mappings))
	for i := range mappings {
		result[i] = &mappings[i]
	}
	return result, nil
}
