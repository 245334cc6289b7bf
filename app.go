package main

import (
	"context"
	"io"
	"log"
	"net/http"
	goruntime "runtime"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/posthog/posthog-go"

	"photomap-desktop/internal/config"
	"photomap-desktop/internal/geo"
	"photomap-desktop/internal/loader"
	"photomap-desktop/internal/metrics"
	"photomap-desktop/internal/orchestrator"
	"photomap-desktop/internal/photo"
	"photomap-desktop/internal/ratelimit"
	"photomap-desktop/internal/sensors"
	"photomap-desktop/internal/taskqueue"
)

// Linker flags
var (
	PostHogKey  string
	PostHogHost string
	AppVersion  string = "0.0.0-dev"
)

// sensorConsumerName identifies the orchestrator as a sensor consumer
const sensorConsumerName = "orchestrator"

// App wires the selection core to its collaborators: settings, the
// orchestrator, the sensor handle, analytics, and the status HTTP surface
type App struct {
	mu       sync.Mutex
	settings *config.UserSettings
	orch     *orchestrator.Orchestrator
	sensors  *sensors.Handle
	sensorTk string
	limiter  *ratelimit.Handler
	phClient posthog.Client
	server   *http.Server
}

// desktopSensorService is the desktop stand-in for the platform sensor
// bridge; real GPS/compass fusion only exists on mobile builds
type desktopSensorService struct{}

func (desktopSensorService) Start() error {
	log.Printf("[Sensors] Desktop build: no hardware sensors, accepting injected events only")
	return nil
}

func (desktopSensorService) Stop() error { return nil }

// NewApp creates the application, loading settings and seeding source
// pools from any configured pool files
func NewApp() *App {
	settings, err := config.LoadSettings()
	if err != nil {
		log.Printf("Failed to load settings, using defaults: %v", err)
		settings = config.DefaultSettings()
	}

	var phClient posthog.Client
	if PostHogKey != "" {
		client, err := posthog.NewWithConfig(PostHogKey, posthog.Config{Endpoint: PostHogHost})
		if err != nil {
			log.Printf("Failed to initialize PostHog: %v", err)
		} else {
			phClient = client
		}
	}

	a := &App{
		settings: settings,
		sensors:  sensors.NewHandle(desktopSensorService{}),
		limiter:  newLimiter(),
		phClient: phClient,
	}

	a.orch = orchestrator.New(orchestratorConfig(settings), orchestrator.Callbacks{
		OnAreaUpdate: func(result orchestrator.AreaResult) {
			log.Printf("[App] Photos in area: %d selected of %d", result.Stats.SelectedCount, result.Stats.TotalInput)
		},
		OnRangeUpdate: func(result orchestrator.RangeResult) {
			log.Printf("[App] Photos in range: %d within %.0fm", len(result.Photos), result.RangeMeters)
		},
	})

	a.orch.SetFetchFunc(a.fetchSources)
	a.orch.ConfigureSources(sourcesFromSettings(settings))
	a.seedPools(settings)

	token, err := a.sensors.Acquire(sensorConsumerName)
	if err != nil {
		log.Printf("Failed to acquire sensor service: %v", err)
	} else {
		a.sensorTk = token
	}

	a.TrackEvent("app_started", map[string]interface{}{
		"version": AppVersion,
		"os":      goruntime.GOOS,
		"arch":    goruntime.GOARCH,
	})

	return a
}

// seedPools loads any pool files named in the settings
func (a *App) seedPools(settings *config.UserSettings) {
	for _, src := range settings.Sources {
		if src.PoolPath == "" || !src.Enabled {
			continue
		}
		pool, err := loader.LoadPool(src.PoolPath)
		if err != nil {
			log.Printf("[App] Failed to load pool for source %s: %v", src.ID, err)
			continue
		}
		a.orch.ReplaceSourcePhotos(src.ID, pool)
		log.Printf("[App] Seeded source %s with %d photo(s)", src.ID, len(pool))
	}
}

// Serve starts the status/event HTTP server and blocks until it exits
func (a *App) Serve(addr string) error {
	r := mux.NewRouter()

	r.HandleFunc("/api/status", a.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/area", a.handleArea).Methods(http.MethodGet)
	r.HandleFunc("/api/range", a.handleRange).Methods(http.MethodGet)
	r.HandleFunc("/api/coverage", a.handleCoverage).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", a.handleGetSettings).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", a.handleUpdateSettings).Methods(http.MethodPut)
	r.HandleFunc("/api/ratelimits", a.handleRateLimits).Methods(http.MethodGet)
	r.HandleFunc("/api/ratelimits/{source}/reset", a.handleRateLimitReset).Methods(http.MethodPost)

	// Event intake: the map shell and sensor bridge post changes here
	r.HandleFunc("/api/events/viewport", a.handleViewportEvent).Methods(http.MethodPost)
	r.HandleFunc("/api/events/bearing", a.handleBearingEvent).Methods(http.MethodPost)
	r.HandleFunc("/api/events/center", a.handleCenterEvent).Methods(http.MethodPost)
	r.HandleFunc("/api/events/pool/{source}", a.handlePoolEvent).Methods(http.MethodPost)
	r.HandleFunc("/api/events/fetch", a.handleFetchEvent).Methods(http.MethodPost)

	r.Handle("/metrics", metrics.Handler())

	a.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[App] Status server listening on %s", addr)
	err := a.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown cleans up resources
func (a *App) Shutdown(ctx context.Context) {
	if a.server != nil {
		a.server.Shutdown(ctx)
	}
	if a.sensorTk != "" {
		if err := a.sensors.Release(a.sensorTk); err != nil {
			log.Printf("Failed to release sensor service: %v", err)
		}
	}
	if a.orch != nil {
		a.orch.Close()
	}
	if a.phClient != nil {
		a.phClient.Close()
	}
}

// TrackEvent sends an event to PostHog
func (a *App) TrackEvent(event string, props map[string]interface{}) {
	if a.phClient != nil {
		a.phClient.Enqueue(posthog.Capture{
			DistinctId: "backend_user",
			Event:      event,
			Properties: props,
		})
	}
}

type statusResponse struct {
	Version       string      `json:"version"`
	Queue         interface{} `json:"queue"`
	AreaPhotos    int         `json:"areaPhotos"`
	RangePhotos   int         `json:"rangePhotos"`
	SensorHolders []string    `json:"sensorHolders"`
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Version:       AppVersion,
		Queue:         a.orch.QueueStatus(),
		SensorHolders: a.sensors.Consumers(),
	}
	if area := a.orch.LastArea(); area != nil {
		resp.AreaPhotos = len(area.Photos)
	}
	if rng := a.orch.LastRange(); rng != nil {
		resp.RangePhotos = len(rng.Photos)
	}
	writeJSON(w, resp)
}

func (a *App) handleArea(w http.ResponseWriter, _ *http.Request) {
	area := a.orch.LastArea()
	if area == nil {
		http.Error(w, "no viewport selection published yet", http.StatusNotFound)
		return
	}
	writeJSON(w, area)
}

func (a *App) handleRange(w http.ResponseWriter, _ *http.Request) {
	rng := a.orch.LastRange()
	if rng == nil {
		http.Error(w, "no range selection published yet", http.StatusNotFound)
		return
	}
	writeJSON(w, rng)
}

func (a *App) handleCoverage(w http.ResponseWriter, _ *http.Request) {
	area := a.orch.LastArea()
	if area == nil {
		http.Error(w, "no viewport selection published yet", http.StatusNotFound)
		return
	}
	writeJSON(w, area.Stats)
}

type viewportEvent struct {
	TopLeft     geo.Coordinate `json:"topLeft"`
	BottomRight geo.Coordinate `json:"bottomRight"`
	RangeMeters float64        `json:"rangeMeters"`
}

func (a *App) handleViewportEvent(w http.ResponseWriter, r *http.Request) {
	var ev viewportEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid viewport event", http.StatusBadRequest)
		return
	}
	bounds := geo.NewBounds(ev.TopLeft.Lat, ev.TopLeft.Lon, ev.BottomRight.Lat, ev.BottomRight.Lon)
	rangeMeters := ev.RangeMeters
	if rangeMeters <= 0 {
		rangeMeters = a.currentSettings().DefaultRangeMeters
	}
	a.orch.SetViewport(bounds, rangeMeters)
	a.orch.SetCenter(bounds.Center())
	w.WriteHeader(http.StatusAccepted)
}

type bearingEvent struct {
	Bearing  float64 `json:"bearing"`
	Accuracy float64 `json:"accuracy"`
}

func (a *App) handleBearingEvent(w http.ResponseWriter, r *http.Request) {
	var ev bearingEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid bearing event", http.StatusBadRequest)
		return
	}
	a.orch.SetBearing(ev.Bearing, ev.Accuracy)
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) handleCenterEvent(w http.ResponseWriter, r *http.Request) {
	var ev geo.Coordinate
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid center event", http.StatusBadRequest)
		return
	}
	a.orch.SetCenter(ev)
	w.WriteHeader(http.StatusAccepted)
}

func (a *App) handlePoolEvent(w http.ResponseWriter, r *http.Request) {
	sourceID := mux.Vars(r)["source"]

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read pool payload", http.StatusBadRequest)
		return
	}

	pool, err := loader.ParsePool(body)
	if err != nil {
		http.Error(w, "invalid pool payload", http.StatusBadRequest)
		return
	}

	if r.URL.Query().Get("append") == "true" {
		a.orch.AppendSourcePhotos(sourceID, pool)
	} else {
		a.orch.ReplaceSourcePhotos(sourceID, pool)
	}
	w.WriteHeader(http.StatusAccepted)
}

type fetchEvent struct {
	TopLeft     geo.Coordinate `json:"topLeft"`
	BottomRight geo.Coordinate `json:"bottomRight"`
}

func (a *App) handleFetchEvent(w http.ResponseWriter, r *http.Request) {
	var ev fetchEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid fetch event", http.StatusBadRequest)
		return
	}
	a.orch.TriggerFetch(geo.NewBounds(ev.TopLeft.Lat, ev.TopLeft.Lon, ev.BottomRight.Lat, ev.BottomRight.Lon))
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[App] Failed to encode response: %v", err)
	}
}

func (a *App) currentSettings() *config.UserSettings {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings
}

func orchestratorConfig(settings *config.UserSettings) orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.MaxAreaPhotos = settings.MaxAreaPhotos
	cfg.MaxRangePhotos = settings.MaxRangePhotos
	cfg.ResultCacheSize = settings.ResultCacheSize
	cfg.Queue.Capacity = settings.QueueCapacity
	cfg.Queue.MaxTaskAge = time.Duration(settings.MaxTaskAgeMs) * time.Millisecond
	cfg.Queue.HighWaterFraction = settings.HighWaterFraction
	cfg.Queue.Debounce = map[taskqueue.TaskType]time.Duration{
		taskqueue.TaskViewportFilter:    time.Duration(settings.DebounceViewportMs) * time.Millisecond,
		taskqueue.TaskBearingUpdate:     time.Duration(settings.DebounceBearingMs) * time.Millisecond,
		taskqueue.TaskDistanceRecompute: time.Duration(settings.DebounceDistanceMs) * time.Millisecond,
		taskqueue.TaskFetchTrigger:      time.Duration(settings.DebounceFetchMs) * time.Millisecond,
	}
	return cfg
}

func sourcesFromSettings(settings *config.UserSettings) []photo.Source {
	sources := make([]photo.Source, 0, len(settings.Sources))
	for _, src := range settings.Sources {
		if err := config.ValidateSource(&src); err != nil {
			log.Printf("[App] Skipping invalid source config: %v", err)
			continue
		}
		sources = append(sources, photo.Source{
			ID:      src.ID,
			Name:    src.Name,
			Tier:    photo.SourceTier(src.Tier),
			Enabled: src.Enabled,
		})
	}
	return sources
}
