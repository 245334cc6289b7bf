package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SourceConfig describes one configured photo source
type SourceConfig struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Tier     int    `json:"tier"` // 1 device, 2 archive, 3 third-party, 4 aggregator
	Enabled  bool   `json:"enabled"`
	PoolPath string `json:"poolPath,omitempty"` // optional JSON pool file loaded at startup
	FetchURL string `json:"fetchUrl,omitempty"` // optional remote endpoint for fetch triggers
}

// UserSettings represents persistent user preferences and core tuning
type UserSettings struct {
	// Selection caps
	MaxAreaPhotos  int `json:"maxAreaPhotos"`
	MaxRangePhotos int `json:"maxRangePhotos"`

	// Default navigation range in meters, derived from the viewport when
	// the map reports one
	DefaultRangeMeters float64 `json:"defaultRangeMeters"`

	// Scheduler tuning
	QueueCapacity      int     `json:"queueCapacity"`
	MaxTaskAgeMs       int     `json:"maxTaskAgeMs"`
	DebounceViewportMs int     `json:"debounceViewportMs"`
	DebounceBearingMs  int     `json:"debounceBearingMs"`
	DebounceDistanceMs int     `json:"debounceDistanceMs"`
	DebounceFetchMs    int     `json:"debounceFetchMs"`
	HighWaterFraction  float64 `json:"highWaterFraction"`

	// Result cache
	ResultCacheSize int `json:"resultCacheSize"`

	// Operational surface
	StatusListenAddr string `json:"statusListenAddr"`

	// Configured photo sources
	Sources []SourceConfig `json:"sources"`
}

// DefaultSettings returns default user settings
func DefaultSettings() *UserSettings {
	return &UserSettings{
		MaxAreaPhotos:      100,
		MaxRangePhotos:     20,
		DefaultRangeMeters: 1000,
		QueueCapacity:      64,
		MaxTaskAgeMs:       10000,
		DebounceViewportMs: 250,
		DebounceBearingMs:  50,
		DebounceDistanceMs: 100,
		DebounceFetchMs:    500,
		HighWaterFraction:  0.8,
		ResultCacheSize:    32,
		StatusListenAddr:   "127.0.0.1:8790",
		Sources: []SourceConfig{
			{ID: "device", Name: "Device Photos", Tier: 1, Enabled: true},
			{ID: "archive", Name: "Photo Archive", Tier: 2, Enabled: true},
		},
	}
}

// GetSettingsPath returns the OS-specific settings file path
func GetSettingsPath() string {
	homeDir, _ := os.UserHomeDir()

	baseDir := filepath.Join(homeDir, ".photomap", "desktop", "settings")
	os.MkdirAll(baseDir, 0755)

	return filepath.Join(baseDir, "settings.json")
}

// LoadSettings loads user settings from disk, merging defaults for any
// missing fields
func LoadSettings() (*UserSettings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom loads settings from an explicit path
func LoadSettingsFrom(settingsPath string) (*UserSettings, error) {
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	defaults := DefaultSettings()
	if settings.MaxAreaPhotos == 0 {
		settings.MaxAreaPhotos = defaults.MaxAreaPhotos
	}
	if settings.MaxRangePhotos == 0 {
		settings.MaxRangePhotos = defaults.MaxRangePhotos
	}
	if settings.DefaultRangeMeters == 0 {
		settings.DefaultRangeMeters = defaults.DefaultRangeMeters
	}
	if settings.QueueCapacity == 0 {
		settings.QueueCapacity = defaults.QueueCapacity
	}
	if settings.MaxTaskAgeMs == 0 {
		settings.MaxTaskAgeMs = defaults.MaxTaskAgeMs
	}
	if settings.DebounceViewportMs == 0 {
		settings.DebounceViewportMs = defaults.DebounceViewportMs
	}
	if settings.DebounceBearingMs == 0 {
		settings.DebounceBearingMs = defaults.DebounceBearingMs
	}
	if settings.DebounceDistanceMs == 0 {
		settings.DebounceDistanceMs = defaults.DebounceDistanceMs
	}
	if settings.DebounceFetchMs == 0 {
		settings.DebounceFetchMs = defaults.DebounceFetchMs
	}
	if settings.HighWaterFraction == 0 {
		settings.HighWaterFraction = defaults.HighWaterFraction
	}
	if settings.ResultCacheSize == 0 {
		settings.ResultCacheSize = defaults.ResultCacheSize
	}
	if settings.StatusListenAddr == "" {
		settings.StatusListenAddr = defaults.StatusListenAddr
	}
	if len(settings.Sources) == 0 {
		settings.Sources = defaults.Sources
	}

	return &settings, nil
}

// SaveSettings saves user settings to disk
func SaveSettings(settings *UserSettings) error {
	return SaveSettingsTo(GetSettingsPath(), settings)
}

// SaveSettingsTo saves settings to an explicit path
func SaveSettingsTo(settingsPath string, settings *UserSettings) error {
	dir := filepath.Dir(settingsPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(settingsPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// ValidateSource validates a source configuration entry
func ValidateSource(source *SourceConfig) error {
	if source.ID == "" {
		return fmt.Errorf("source id is required")
	}
	if source.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if source.Tier < 1 || source.Tier > 4 {
		return fmt.Errorf("invalid source tier: %d (must be 1-4)", source.Tier)
	}
	return nil
}
