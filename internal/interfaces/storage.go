package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/compleo/internal/models"
)

// ProfileStorage provides typed access to profiles.
type ProfileStorage interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	List(ctx context.Context) ([]*models.Profile, error)
	Save(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id string) error
}

// SiteStorage provides typed access to sites.
type SiteStorage interface {
	Get(ctx context.Context, id string) (*models.Site, error)
	List(ctx context.Context) ([]*models.Site, error)
	ListEnabled(ctx context.Context) ([]*models.Site, error)
	Save(ctx context.Context, site *models.Site) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status models.SiteStatus, fieldsFilled int, lastRun time.Time) error
	UpdateCachedPlan(ctx context.Context, id string, plan *models.FieldPlan) error
}

// MappingStorage caches learned field plans per registrable domain.
// Put replaces the whole mapping atomically and is serialized per domain by
// the caller (resolver) via its keyed mutex; Get returns an immutable snapshot.
type MappingStorage interface {
	Get(ctx context.Context, domain string) (*models.DomainMapping, error)
	Put(ctx context.Context, domain string, entries []models.FieldEntry, url string) (int, error)
	Delete(ctx context.Context, domain string) error
	List(ctx context.Context) ([]*models.DomainMapping, error)
}

// HistoryStorage appends fill history. Append is idempotent on job id.
type HistoryStorage interface {
	Append(ctx context.Context, entry *models.FillHistoryEntry) error
	List(ctx context.Context, limit int) ([]*models.FillHistoryEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// JobStorage persists jobs for status queries and retention.
type JobStorage interface {
	Save(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	List(ctx context.Context, limit int) ([]*models.Job, error)
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// AdminStorage backs the central admin server.
type AdminStorage interface {
	SaveClient(ctx context.Context, client *models.ClientInfo) error
	ListClients(ctx context.Context) ([]*models.ClientInfo, error)
	QueueCommand(ctx context.Context, cmd *models.Command) error
	PendingCommands(ctx context.Context, machineID string) ([]*models.Command, error)
	MarkDelivered(ctx context.Context, commandID string) error
	SaveResult(ctx context.Context, result *models.CommandResult) error
	ListResults(ctx context.Context, machineID string, limit int) ([]*models.CommandResult, error)
}

// StorageManager aggregates all stores behind one lifecycle.
type StorageManager interface {
	Profiles() ProfileStorage
	Sites() SiteStorage
	Mappings() MappingStorage
	History() HistoryStorage
	Jobs() JobStorage
	Close() error
}
