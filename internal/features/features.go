package features

import "sync"

// Flag names used across the API surface.
const (
	FlagAlerts          = "alerts"
	FlagRecommendations = "recommendations"
	FlagIngest          = "ingest"
	FlagResponseCache   = "response_cache"
)

// FeatureFlag represents a feature flag configuration.
type FeatureFlag struct {
	Name        string `json:"name"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

// Manager manages feature flags.
type Manager struct {
	mu    sync.RWMutex
	flags map[string]FeatureFlag
}

// NewManager creates a new feature flag manager.
func NewManager() *Manager {
	return &Manager{flags: make(map[string]FeatureFlag)}
}

// Register registers a new feature flag.
func (m *Manager) Register(name string, enabled bool, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flags[name] = FeatureFlag{Name: name, Enabled: enabled, Description: description}
}

// IsEnabled reports whether a flag is enabled. Unknown flags are enabled:
// gating only applies to flags something registered.
func (m *Manager) IsEnabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flag, ok := m.flags[name]
	if !ok {
		return true
	}
	return flag.Enabled
}

// Set updates the state of a registered flag.
func (m *Manager) Set(name string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if flag, ok := m.flags[name]; ok {
		flag.Enabled = enabled
		m.flags[name] = flag
	}
}

// List returns all registered flags.
func (m *Manager) List() []FeatureFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flags := make([]FeatureFlag, 0, len(m.flags))
	for _, flag := range m.flags {
		flags = append(flags, flag)
	}
	return flags
}
