package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// SectionIDSettings is the identifier for the bridge settings section
	SectionIDSettings = "bridge"

	// StoreBackendFile keeps the intent slot in a JSON file
	StoreBackendFile = "file"
	// StoreBackendSQLite keeps the intent slot in a sqlite database
	StoreBackendSQLite = "sqlite"

	defaultEnabled         = true
	defaultStoreBackend    = StoreBackendFile
	defaultHeadless        = false
	defaultCopyURLFallback = true
)

// SettingsSection holds the user-controlled bridge configuration: whether the
// bridge is enabled, where the Tracker lives, how Board projects map to
// Tracker project keys and where the pending intent is kept.
type SettingsSection struct {
	Enabled            bool     `json:"enabled"`
	BaseURL            string   `json:"base_url"`
	ProjectMappings    string   `json:"project_mappings"`
	TrackerURLPatterns []string `json:"tracker_url_patterns"`
	StoreBackend       string   `json:"store_backend"`
	StorePath          string   `json:"store_path"`
	Headless           bool     `json:"headless"`
	CopyURLFallback    bool     `json:"copy_url_fallback"`
	TimingsFile        string   `json:"timings_file"`
	mu                 sync.RWMutex
}

// NewSettingsSection creates a settings section with defaults.
func NewSettingsSection() *SettingsSection {
	s := &SettingsSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *SettingsSection) ID() string {
	return SectionIDSettings
}

// Title returns the section title.
func (s *SettingsSection) Title() string {
	return "Board → Tracker bridge"
}

// Description returns the section description.
func (s *SettingsSection) Description() string {
	return "Tracker base URL, Board-to-Tracker project mappings and pending-intent storage."
}

// Data returns the current configuration data.
func (s *SettingsSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"enabled":              s.Enabled,
		"base_url":             s.BaseURL,
		"project_mappings":     s.ProjectMappings,
		"tracker_url_patterns": append([]string(nil), s.TrackerURLPatterns...),
		"store_backend":        s.StoreBackend,
		"store_path":           s.StorePath,
		"headless":             s.Headless,
		"copy_url_fallback":    s.CopyURLFallback,
		"timings_file":         s.TimingsFile,
	}
}

// SetData updates the configuration from the provided data. Unknown keys are
// ignored for forward compatibility.
func (s *SettingsSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		switch key {
		case "enabled", "headless", "copy_url_fallback":
			b, ok := value.(bool)
			if !ok {
				return fmt.Errorf("invalid value type for %s: expected bool, got %T", key, value)
			}
			switch key {
			case "enabled":
				s.Enabled = b
			case "headless":
				s.Headless = b
			default:
				s.CopyURLFallback = b
			}

		case "base_url", "project_mappings", "store_backend", "store_path", "timings_file":
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for %s: expected string, got %T", key, value)
			}
			switch key {
			case "base_url":
				s.BaseURL = strings.TrimSpace(str)
			case "project_mappings":
				s.ProjectMappings = str
			case "store_backend":
				s.StoreBackend = strings.ToLower(strings.TrimSpace(str))
			case "store_path":
				s.StorePath = str
			default:
				s.TimingsFile = str
			}

		case "tracker_url_patterns":
			patterns, err := toStringSlice(value)
			if err != nil {
				return fmt.Errorf("invalid value for tracker_url_patterns: %w", err)
			}
			s.TrackerURLPatterns = patterns
		}
	}
	return nil
}

func toStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string element, got %T", item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected list of strings, got %T", value)
	}
}

// Validate validates the current configuration. An empty base URL is allowed
// here; the producer reports it when an intent would be created.
func (s *SettingsSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.StoreBackend {
	case StoreBackendFile, StoreBackendSQLite:
	default:
		return fmt.Errorf("store_backend must be %q or %q, got %q", StoreBackendFile, StoreBackendSQLite, s.StoreBackend)
	}

	if s.BaseURL != "" {
		if _, err := NormalizeBaseURL(s.BaseURL); err != nil {
			return err
		}
	}
	if _, err := NewURLMatcher(s.TrackerURLPatterns); err != nil {
		return err
	}
	if s.StorePath != "" && !filepath.IsAbs(s.StorePath) {
		return fmt.Errorf("store_path must be absolute, got %q", s.StorePath)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *SettingsSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Enabled = defaultEnabled
	s.BaseURL = ""
	s.ProjectMappings = ""
	s.TrackerURLPatterns = nil
	s.StoreBackend = defaultStoreBackend
	s.StorePath = ""
	s.Headless = defaultHeadless
	s.CopyURLFallback = defaultCopyURLFallback
	s.TimingsFile = ""
}

// IsEnabled reports whether the bridge is enabled.
func (s *SettingsSection) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Enabled
}

// GetBaseURL returns the configured Tracker base URL as entered.
func (s *SettingsSection) GetBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.BaseURL
}

// TrackerURL returns the normalised Tracker base URL, or "" when unset.
func (s *SettingsSection) TrackerURL() (string, error) {
	s.mu.RLock()
	raw := s.BaseURL
	s.mu.RUnlock()
	if raw == "" {
		return "", nil
	}
	return NormalizeBaseURL(raw)
}

// ResolveProjectKey maps a Board project id to a Tracker project key.
func (s *SettingsSection) ResolveProjectKey(sourceProjectID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ResolveProjectKey(s.ProjectMappings, sourceProjectID)
}

// URLMatcher builds the matcher for pages the consumer may act on. Without
// explicit patterns, every page on the base URL's host matches.
func (s *SettingsSection) URLMatcher() (*URLMatcher, error) {
	s.mu.RLock()
	patterns := append([]string(nil), s.TrackerURLPatterns...)
	s.mu.RUnlock()

	if len(patterns) == 0 {
		base, err := s.TrackerURL()
		if err != nil {
			return nil, err
		}
		patterns = DefaultURLPatterns(base)
	}
	return NewURLMatcher(patterns)
}

// GetStore returns the intent store backend and path.
func (s *SettingsSection) GetStore() (backend, path string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.StoreBackend, s.StorePath
}

// IsHeadless reports whether the watcher should run the browser headless.
func (s *SettingsSection) IsHeadless() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Headless
}

// ShouldCopyURLFallback reports whether the source URL goes to the clipboard
// when the external-link field cannot be found.
func (s *SettingsSection) ShouldCopyURLFallback() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CopyURLFallback
}

// GetTimingsFile returns the optional YAML timing override path.
func (s *SettingsSection) GetTimingsFile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.TimingsFile
}
