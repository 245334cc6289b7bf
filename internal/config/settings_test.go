package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSettingsFromMissingFileReturnsDefaults(t *testing.T) {
	settings, err := LoadSettingsFrom(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defaults := DefaultSettings()
	if settings.MaxAreaPhotos != defaults.MaxAreaPhotos {
		t.Errorf("MaxAreaPhotos = %d, want default %d", settings.MaxAreaPhotos, defaults.MaxAreaPhotos)
	}
	if settings.StatusListenAddr != defaults.StatusListenAddr {
		t.Errorf("StatusListenAddr = %q, want default %q", settings.StatusListenAddr, defaults.StatusListenAddr)
	}
	if len(settings.Sources) != 2 {
		t.Errorf("default sources = %v", settings.Sources)
	}
}

func TestLoadSettingsFromMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	partial := []byte(`{"maxAreaPhotos": 42, "statusListenAddr": "127.0.0.1:9999"}`)
	if err := os.WriteFile(path, partial, 0644); err != nil {
		t.Fatal(err)
	}

	settings, err := LoadSettingsFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settings.MaxAreaPhotos != 42 {
		t.Errorf("MaxAreaPhotos = %d, want explicit 42", settings.MaxAreaPhotos)
	}
	if settings.StatusListenAddr != "127.0.0.1:9999" {
		t.Errorf("StatusListenAddr = %q, want explicit value", settings.StatusListenAddr)
	}

	defaults := DefaultSettings()
	if settings.MaxRangePhotos != defaults.MaxRangePhotos {
		t.Errorf("MaxRangePhotos = %d, want merged default %d", settings.MaxRangePhotos, defaults.MaxRangePhotos)
	}
	if settings.DebounceViewportMs != defaults.DebounceViewportMs {
		t.Errorf("DebounceViewportMs = %d, want merged default %d", settings.DebounceViewportMs, defaults.DebounceViewportMs)
	}
	if settings.HighWaterFraction != defaults.HighWaterFraction {
		t.Errorf("HighWaterFraction = %v, want merged default %v", settings.HighWaterFraction, defaults.HighWaterFraction)
	}
	if len(settings.Sources) != len(defaults.Sources) {
		t.Errorf("sources = %v, want merged defaults", settings.Sources)
	}
}

func TestLoadSettingsFromMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSettingsFrom(path); err == nil {
		t.Error("malformed settings accepted")
	}
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	settings := DefaultSettings()
	settings.MaxAreaPhotos = 7
	settings.Sources = append(settings.Sources, SourceConfig{
		ID: "community", Name: "Community Photos", Tier: 3, Enabled: false,
	})

	if err := SaveSettingsTo(path, settings); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadSettingsFrom(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.MaxAreaPhotos != 7 {
		t.Errorf("MaxAreaPhotos = %d after round trip, want 7", loaded.MaxAreaPhotos)
	}
	if len(loaded.Sources) != 3 || loaded.Sources[2].ID != "community" {
		t.Errorf("sources after round trip = %v", loaded.Sources)
	}
	if loaded.Sources[2].Enabled {
		t.Error("disabled source re-enabled by round trip")
	}
}

func TestValidateSource(t *testing.T) {
	cases := []struct {
		name    string
		source  SourceConfig
		wantErr bool
	}{
		{"valid", SourceConfig{ID: "s", Name: "S", Tier: 1}, false},
		{"missing id", SourceConfig{Name: "S", Tier: 1}, true},
		{"missing name", SourceConfig{ID: "s", Tier: 2}, true},
		{"tier too low", SourceConfig{ID: "s", Name: "S", Tier: 0}, true},
		{"tier too high", SourceConfig{ID: "s", Name: "S", Tier: 5}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSource(&tc.source)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateSource(%+v) error = %v, wantErr %v", tc.source, err, tc.wantErr)
			}
		})
	}
}
