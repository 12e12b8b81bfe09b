package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/common"
	"github.com/ternarybob/compleo/internal/interfaces"
)

// Manager aggregates the typed stores behind a single lifecycle.
type Manager struct {
	db       *BadgerDB
	profiles interfaces.ProfileStorage
	sites    interfaces.SiteStorage
	mappings interfaces.MappingStorage
	history  interfaces.HistoryStorage
	jobs     interfaces.JobStorage
}

// NewManager opens the database and wires all stores.
func NewManager(config *common.BadgerConfig, logger arbor.ILogger) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:       db,
		profiles: NewProfileStorage(db, logger),
		sites:    NewSiteStorage(db, logger),
		mappings: NewMappingStorage(db, logger),
		history:  NewHistoryStorage(db, logger),
		jobs:     NewJobStorage(db, logger),
	}, nil
}

func (m *Manager) Profiles() interfaces.ProfileStorage { return m.profiles }
func (m *Manager) Sites() interfaces.SiteStorage       { return m.sites }
func (m *Manager) Mappings() interfaces.MappingStorage { return m.mappings }
func (m *Manager) History() interfaces.HistoryStorage  { return m.history }
func (m *Manager) Jobs() interfaces.JobStorage         { return m.jobs }

// DB exposes the underlying connection for admin-side stores.
func (m *Manager) DB() *BadgerDB { return m.db }

func (m *Manager) Close() error {
	return m.db.Close()
}
