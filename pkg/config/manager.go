package config

import (
	"sync"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
	"github.com/core-tools/hsu-kiosk/pkg/logging"
)

// Manager owns the live configuration. Readers get snapshots; every write goes
// through Save, which validates, persists and then swaps the in-memory copy.
type Manager struct {
	store   Store
	logger  logging.Logger
	mutex   sync.Mutex
	current LaunchConfig
}

// NewManager loads the configuration once from store
func NewManager(store Store, logger logging.Logger) (*Manager, error) {
	config, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Manager{
		store:   store,
		logger:  logger,
		current: config,
	}, nil
}

// Snapshot returns an independent copy of the current configuration
func (m *Manager) Snapshot() LaunchConfig {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.current.Clone()
}

// Save validates and persists config, then makes it current
func (m *Manager) Save(config LaunchConfig) error {
	if err := ValidateConfig(&config); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.store.Save(config); err != nil {
		return errors.NewIOError("failed to persist configuration", err)
	}
	m.current = config.Clone()
	return nil
}

// Reload re-reads the store, picking up edits made by the settings editor
func (m *Manager) Reload() error {
	config, err := m.store.Load()
	if err != nil {
		return err
	}

	m.mutex.Lock()
	m.current = config
	m.mutex.Unlock()

	m.logger.Infof("Configuration reloaded")
	return nil
}
