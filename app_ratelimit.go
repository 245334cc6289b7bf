package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"photomap-desktop/internal/geo"
	"photomap-desktop/internal/loader"
	"photomap-desktop/internal/ratelimit"
)

// fetchTimeout bounds a single remote pool request
const fetchTimeout = 15 * time.Second

// fetchSources is the fetch-trigger implementation installed into the
// orchestrator. For every enabled source with a remote endpoint it
// requests the photos covering the given bounds and appends them to the
// source's pool. Sources in a rate-limit backoff window are skipped.
func (a *App) fetchSources(ctx context.Context, bounds geo.Bounds) error {
	settings := a.currentSettings()

	var lastErr error
	for _, src := range settings.Sources {
		if !src.Enabled || src.FetchURL == "" {
			continue
		}
		if a.limiter.IsLimited(src.ID) {
			log.Printf("[App] Skipping fetch for rate-limited source %s", src.ID)
			continue
		}
		if err := a.fetchSource(ctx, src.ID, src.FetchURL, bounds); err != nil {
			log.Printf("[App] Fetch failed for source %s: %v", src.ID, err)
			lastErr = err
		}
	}
	return lastErr
}

// fetchSource requests one source's photos for the bounds and feeds them
// into the orchestrator
func (a *App) fetchSource(ctx context.Context, sourceID, baseURL string, bounds geo.Bounds) error {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	url := fmt.Sprintf("%s?minLat=%f&maxLat=%f&minLon=%f&maxLon=%f",
		baseURL,
		bounds.BottomRight.Lat, bounds.TopLeft.Lat,
		bounds.TopLeft.Lon, bounds.BottomRight.Lon)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build fetch request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if a.limiter.CheckResponse(sourceID, resp) {
		return fmt.Errorf("source %s rate limited (HTTP %d)", sourceID, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("source %s returned HTTP %d", sourceID, resp.StatusCode)
	}

	data, err := io.ReadAll(http.MaxBytesReader(nil, resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read pool response: %w", err)
	}

	pool, err := loader.ParsePool(data)
	if err != nil {
		return fmt.Errorf("source %s returned invalid pool: %w", sourceID, err)
	}

	a.orch.AppendSourcePhotos(sourceID, pool)
	log.Printf("[App] Fetched %d photo(s) for source %s", len(pool), sourceID)
	return nil
}

// handleRateLimits reports which sources are currently in backoff
func (a *App) handleRateLimits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.limiter.States())
}

// handleRateLimitReset clears a source's backoff on user request, for
// example after switching networks
func (a *App) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	sourceID := mux.Vars(r)["source"]
	a.limiter.Reset(sourceID)
	w.WriteHeader(http.StatusNoContent)
}

func newLimiter() *ratelimit.Handler {
	h := ratelimit.NewHandler(nil)
	h.SetOnLimited(func(event ratelimit.Event) {
		log.Printf("[App] %s", event.Message)
	})
	h.SetOnRecovered(func(sourceID string) {
		log.Printf("[App] Source %s fetching resumed", sourceID)
	})
	return h
}
