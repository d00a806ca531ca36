package config

import "sync/atomic"

// Manager holds the active configuration and swaps it atomically on reload.
// A failed reload leaves the previous document in effect; the system is
// never left without a valid configuration.
type Manager struct {
	path   string
	active atomic.Pointer[Config]
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Load performs the initial load and publishes the result.
func (m *Manager) Load() (*Config, error) {
	c, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.active.Store(c)
	return c, nil
}

// Current returns the active configuration, nil before the first Load.
func (m *Manager) Current() *Config {
	return m.active.Load()
}

// Reload re-reads the file. On success the new document becomes active and
// is returned; on failure the error is returned and Current() is unchanged.
func (m *Manager) Reload() (*Config, error) {
	c, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.active.Store(c)
	return c, nil
}

// Path returns the file the manager loads from.
func (m *Manager) Path() string { return m.path }
