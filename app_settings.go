package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/goccy/go-json"

	"photomap-desktop/internal/config"
)

// ===================
// Settings Management
// ===================

// GetSettings returns a copy of the current user settings
func (a *App) GetSettings() *config.UserSettings {
	a.mu.Lock()
	defer a.mu.Unlock()

	settingsCopy := *a.settings
	return &settingsCopy
}

// UpdateSettings validates, persists, and applies new user settings.
// Scheduler tuning requires a restart to take effect; selection caps and
// source configuration apply immediately.
func (a *App) UpdateSettings(settings *config.UserSettings) error {
	if settings.MaxAreaPhotos <= 0 {
		return fmt.Errorf("maxAreaPhotos must be positive")
	}
	if settings.MaxRangePhotos <= 0 {
		return fmt.Errorf("maxRangePhotos must be positive")
	}
	for i := range settings.Sources {
		if err := config.ValidateSource(&settings.Sources[i]); err != nil {
			return err
		}
	}

	if err := config.SaveSettings(settings); err != nil {
		return err
	}

	a.mu.Lock()
	a.settings = settings
	a.mu.Unlock()

	a.orch.SetSelectionCaps(settings.MaxAreaPhotos, settings.MaxRangePhotos)
	a.orch.ConfigureSources(sourcesFromSettings(settings))
	log.Printf("Settings saved. Scheduler tuning will apply on next restart.")
	return nil
}

func (a *App) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.GetSettings())
}

func (a *App) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings config.UserSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "invalid settings payload", http.StatusBadRequest)
		return
	}
	if err := a.UpdateSettings(&settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
