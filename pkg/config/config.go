package config

import (
	"fmt"
	"sync"
)

// Section is one named group of settings persisted in the config file.
type Section interface {
	ID() string
	Title() string
	Description() string
	Data() map[string]interface{}
	SetData(data map[string]interface{}) error
	Validate() error
	Reset()
}

// ChangeNotifier is told when a section's values change through the Manager.
type ChangeNotifier interface {
	SectionChanged(sectionID string)
}

// NotifierFunc adapts a function to ChangeNotifier.
type NotifierFunc func(sectionID string)

// SectionChanged calls f.
func (f NotifierFunc) SectionChanged(sectionID string) { f(sectionID) }

// Manager owns the registered sections, their backing store and the change
// notifier. Callers construct one and pass it around; there is no global instance.
type Manager struct {
	mu       sync.RWMutex
	store    Store
	notifier ChangeNotifier
	sections map[string]Section
	order    []string
}

// NewManager creates a manager over store. notifier may be nil.
func NewManager(store Store, notifier ChangeNotifier) *Manager {
	return &Manager{
		store:    store,
		notifier: notifier,
		sections: make(map[string]Section),
	}
}

// Open loads ~/.issuebridge/config.json (or path) and registers the settings section.
func Open(path string, notifier ChangeNotifier) (*Manager, *SettingsSection, error) {
	store, err := NewFileStore(path)
	if err != nil {
		return nil, nil, err
	}
	manager := NewManager(store, notifier)
	settings := NewSettingsSection()
	if err := manager.RegisterSection(settings); err != nil {
		return nil, nil, err
	}
	if err := manager.LoadAll(); err != nil {
		return nil, nil, err
	}
	return manager, settings, nil
}

// Store returns the backing store.
func (m *Manager) Store() Store {
	return m.store
}

// RegisterSection adds a section. IDs must be unique.
func (m *Manager) RegisterSection(section Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := section.ID()
	if _, exists := m.sections[id]; exists {
		return fmt.Errorf("section %q already registered", id)
	}
	m.sections[id] = section
	m.order = append(m.order, id)
	return nil
}

// GetSection returns a registered section by ID.
func (m *Manager) GetSection(id string) (Section, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	section, ok := m.sections[id]
	return section, ok
}

// GetSections returns all sections in registration order.
func (m *Manager) GetSections() []Section {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Section, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sections[id])
	}
	return out
}

// LoadAll reloads the store and applies stored data to every section.
func (m *Manager) LoadAll() error {
	if err := m.store.Load(); err != nil {
		return err
	}
	for _, section := range m.GetSections() {
		data, err := m.store.GetSection(section.ID())
		if err != nil {
			return fmt.Errorf("failed to read section %s: %w", section.ID(), err)
		}
		if len(data) == 0 {
			continue
		}
		if err := section.SetData(data); err != nil {
			return fmt.Errorf("failed to apply section %s: %w", section.ID(), err)
		}
	}
	return nil
}

// SaveAll validates every section and writes them to the store.
func (m *Manager) SaveAll() error {
	for _, section := range m.GetSections() {
		if err := section.Validate(); err != nil {
			return fmt.Errorf("invalid section %s: %w", section.ID(), err)
		}
		if err := m.store.SetSection(section.ID(), section.Data()); err != nil {
			return fmt.Errorf("failed to store section %s: %w", section.ID(), err)
		}
	}
	return m.store.Save()
}

// Update applies data to one section, validates, persists and notifies.
// When validation or persisting fails the section is restored to its
// previous values.
func (m *Manager) Update(sectionID string, data map[string]interface{}) error {
	section, ok := m.GetSection(sectionID)
	if !ok {
		return fmt.Errorf("unknown section %q", sectionID)
	}

	previous := section.Data()
	if err := section.SetData(data); err != nil {
		_ = section.SetData(previous)
		return err
	}
	if err := section.Validate(); err != nil {
		_ = section.SetData(previous)
		return err
	}
	if err := m.SaveAll(); err != nil {
		_ = section.SetData(previous)
		_ = m.store.SetSection(sectionID, previous)
		return err
	}

	if m.notifier != nil {
		m.notifier.SectionChanged(sectionID)
	}
	return nil
}

// ResetAll restores every section to defaults.
func (m *Manager) ResetAll() {
	for _, section := range m.GetSections() {
		section.Reset()
	}
}
