package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"photomap-desktop/internal/culling"
	"photomap-desktop/internal/geo"
	"photomap-desktop/internal/metrics"
	"photomap-desktop/internal/photo"
	"photomap-desktop/internal/spatialindex"
	"photomap-desktop/internal/taskqueue"
)

// AreaResult is the published "photos in area" selection, replaced
// wholesale on every successful recomputation
type AreaResult struct {
	Bounds geo.Bounds            `json:"bounds"`
	Photos []photo.PhotoRecord   `json:"photos"`
	Stats  culling.CoverageStats `json:"stats"`
}

// RangeResult is the published "photos in range" navigation selection
type RangeResult struct {
	Center      geo.Coordinate      `json:"center"`
	Bearing     float64             `json:"bearing"`
	RangeMeters float64             `json:"rangeMeters"`
	Photos      []photo.PhotoRecord `json:"photos"`
}

// Callbacks receive published outputs. They are invoked from the task
// goroutine and must not block.
type Callbacks struct {
	OnAreaUpdate  func(AreaResult)
	OnRangeUpdate func(RangeResult)
}

// FetchFunc is the hook for the external-fetch-trigger task type; actual
// network fetching lives outside this core
type FetchFunc func(ctx context.Context, bounds geo.Bounds) error

// Config tunes the orchestrator
type Config struct {
	// MaxAreaPhotos caps the viewport selection
	MaxAreaPhotos int
	// MaxRangePhotos caps the navigation selection
	MaxRangePhotos int
	// MaxIndexCandidates caps how many ids one index query may return
	MaxIndexCandidates int
	// ResultCacheSize bounds the LRU of recent viewport selections
	ResultCacheSize int
	// Queue tunes the underlying task queue
	Queue taskqueue.Config
}

// DefaultConfig returns the shipped tuning
func DefaultConfig() Config {
	return Config{
		MaxAreaPhotos:      100,
		MaxRangePhotos:     20,
		MaxIndexCandidates: 10000,
		ResultCacheSize:    32,
		Queue:              taskqueue.DefaultConfig(),
	}
}

// Orchestrator wires viewport, bearing, and source events to queued
// recomputation tasks and publishes culled results. It owns the source
// pools and the spatial index; both are mutated only inside task bodies,
// which the queue runs one at a time. It holds no selection logic itself.
type Orchestrator struct {
	cfg   Config
	queue *taskqueue.QueueManager
	index *spatialindex.Index
	cb    Callbacks

	mu      sync.Mutex
	sources map[string]photo.Source
	pools   map[string][]photo.PhotoRecord
	indexed map[string]map[string]struct{} // source id -> keys currently pooled and indexed
	poolRev uint64                         // bumped on any pool or source config change

	viewport    geo.Bounds
	hasViewport bool
	rangeMeters float64
	center      geo.Coordinate
	hasCenter   bool
	bearing     float64

	lastArea  *AreaResult
	lastRange *RangeResult

	areaCache *lru.Cache[string, *AreaResult]
	fetchFn   FetchFunc
}

// New creates an orchestrator with its own task queue
func New(cfg Config, cb Callbacks) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxAreaPhotos <= 0 {
		cfg.MaxAreaPhotos = def.MaxAreaPhotos
	}
	if cfg.MaxRangePhotos <= 0 {
		cfg.MaxRangePhotos = def.MaxRangePhotos
	}
	if cfg.MaxIndexCandidates <= 0 {
		cfg.MaxIndexCandidates = def.MaxIndexCandidates
	}
	if cfg.ResultCacheSize <= 0 {
		cfg.ResultCacheSize = def.ResultCacheSize
	}

	cache, _ := lru.New[string, *AreaResult](cfg.ResultCacheSize)

	return &Orchestrator{
		cfg:       cfg,
		queue:     taskqueue.NewQueueManager(cfg.Queue),
		index:     spatialindex.New(),
		cb:        cb,
		sources:   make(map[string]photo.Source),
		pools:     make(map[string][]photo.PhotoRecord),
		indexed:   make(map[string]map[string]struct{}),
		areaCache: cache,
	}
}

// SetFetchFunc installs the external fetch hook
func (o *Orchestrator) SetFetchFunc(fn FetchFunc) {
	o.mu.Lock()
	o.fetchFn = fn
	o.mu.Unlock()
}

// Close shuts down the task queue
func (o *Orchestrator) Close() {
	o.queue.Close()
}

// QueueStatus exposes the scheduler state for operational visibility
func (o *Orchestrator) QueueStatus() taskqueue.QueueStatus {
	return o.queue.Status()
}

// SetViewport records new viewport bounds and the derived query range,
// then schedules a debounced viewport refilter
func (o *Orchestrator) SetViewport(bounds geo.Bounds, rangeMeters float64) {
	o.mu.Lock()
	o.viewport = bounds
	o.hasViewport = true
	o.rangeMeters = rangeMeters
	o.mu.Unlock()

	o.queue.Enqueue(taskqueue.TaskViewportFilter, taskqueue.PriorityNormal, taskqueue.ModeReplace, nil, o.viewportTask)
}

// SetBearing records a new compass bearing. Accuracy is informational;
// the bearing is normalized regardless.
func (o *Orchestrator) SetBearing(bearing float64, accuracy float64) {
	_ = accuracy
	o.mu.Lock()
	o.bearing = geo.NormalizeBearing(bearing)
	o.mu.Unlock()

	o.queue.Enqueue(taskqueue.TaskBearingUpdate, taskqueue.PriorityHigh, taskqueue.ModeReplace, nil, o.rangeTask)
}

// SetCenter records a new position and schedules a distance recompute
func (o *Orchestrator) SetCenter(center geo.Coordinate) {
	o.mu.Lock()
	o.center = center
	o.hasCenter = true
	o.mu.Unlock()

	o.queue.Enqueue(taskqueue.TaskDistanceRecompute, taskqueue.PriorityNormal, taskqueue.ModeReplace, nil, o.rangeTask)
}

// ReplaceSourcePhotos swaps a source's pool wholesale
func (o *Orchestrator) ReplaceSourcePhotos(sourceID string, photos []photo.PhotoRecord) {
	o.queue.Enqueue(taskqueue.TaskViewportFilter, taskqueue.PriorityNormal, taskqueue.ModeQueue, nil,
		func(ctx context.Context, _ interface{}) error {
			o.applyPool(sourceID, photos, false)
			return o.recompute(ctx)
		})
}

// AppendSourcePhotos adds incrementally loaded photos to a source's pool
func (o *Orchestrator) AppendSourcePhotos(sourceID string, photos []photo.PhotoRecord) {
	o.queue.Enqueue(taskqueue.TaskViewportFilter, taskqueue.PriorityNormal, taskqueue.ModeQueue, nil,
		func(ctx context.Context, _ interface{}) error {
			o.applyPool(sourceID, photos, true)
			return o.recompute(ctx)
		})
}

// ConfigureSources replaces the source configuration (enable state and
// effective priority ordering) and schedules a refilter
func (o *Orchestrator) ConfigureSources(sources []photo.Source) {
	o.mu.Lock()
	o.sources = make(map[string]photo.Source, len(sources))
	for _, src := range sources {
		o.sources[src.ID] = src
	}
	o.poolRev++
	o.areaCache.Purge()
	o.mu.Unlock()

	o.queue.Enqueue(taskqueue.TaskViewportFilter, taskqueue.PriorityNormal, taskqueue.ModeReplace, nil, o.viewportTask)
}

// SetSelectionCaps applies new area and range selection caps and
// schedules a refilter. Non-positive values leave the current cap alone.
func (o *Orchestrator) SetSelectionCaps(maxArea, maxRange int) {
	o.mu.Lock()
	if maxArea > 0 {
		o.cfg.MaxAreaPhotos = maxArea
	}
	if maxRange > 0 {
		o.cfg.MaxRangePhotos = maxRange
	}
	o.poolRev++
	o.areaCache.Purge()
	o.mu.Unlock()

	o.queue.Enqueue(taskqueue.TaskViewportFilter, taskqueue.PriorityNormal, taskqueue.ModeReplace, nil, o.viewportTask)
}

// TriggerFetch asks the external loader layer to fetch photos for the
// given bounds. Queue mode, low priority: fetch triggers are advisory.
func (o *Orchestrator) TriggerFetch(bounds geo.Bounds) {
	o.queue.Enqueue(taskqueue.TaskFetchTrigger, taskqueue.PriorityLow, taskqueue.ModeQueue, nil,
		func(ctx context.Context, _ interface{}) error {
			o.mu.Lock()
			fn := o.fetchFn
			o.mu.Unlock()
			if fn == nil {
				return nil
			}
			return fn(ctx, bounds)
		})
}

// LastArea returns the most recently published viewport selection
func (o *Orchestrator) LastArea() *AreaResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastArea
}

// LastRange returns the most recently published navigation selection
func (o *Orchestrator) LastRange() *RangeResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRange
}

// applyPool installs or extends a source pool and keeps the spatial
// index in sync. Runs inside a task body only.
//
// Records whose key is already pooled are skipped, which keeps per-source
// identifiers unique and makes the whole operation idempotent: a task
// body re-run after preemption applies nothing twice.
func (o *Orchestrator) applyPool(sourceID string, photos []photo.PhotoRecord, appendMode bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !appendMode {
		for key := range o.indexed[sourceID] {
			o.index.Remove(key)
		}
		o.indexed[sourceID] = nil
		o.pools[sourceID] = nil
	}

	keys := o.indexed[sourceID]
	if keys == nil {
		keys = make(map[string]struct{}, len(photos))
		o.indexed[sourceID] = keys
	}

	for i := range photos {
		photos[i].SourceID = sourceID
		key := photos[i].Key()
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		o.index.Insert(key, photos[i].Lat, photos[i].Lon)
		o.pools[sourceID] = append(o.pools[sourceID], photos[i])
	}
	o.poolRev++
	o.areaCache.Purge()

	metrics.PoolSize.WithLabelValues(sourceID).Set(float64(len(o.pools[sourceID])))
	log.Printf("[Orchestrator] Source %s pool now %d photo(s)", sourceID, len(o.pools[sourceID]))
}

// viewportTask recomputes and publishes both selections for the current
// viewport snapshot
func (o *Orchestrator) viewportTask(ctx context.Context, _ interface{}) error {
	return o.recompute(ctx)
}

// rangeTask recomputes only the navigation selection against the last
// published area; cheaper than a full refilter
func (o *Orchestrator) rangeTask(ctx context.Context, _ interface{}) error {
	o.publishRange(ctx)
	return ctx.Err()
}

// recompute runs the full pipeline: spatial index candidates ->
// viewport grid culling -> area publication -> range culling -> range
// publication. Aborts between stages when the task is cancelled.
func (o *Orchestrator) recompute(ctx context.Context) error {
	o.mu.Lock()
	if !o.hasViewport {
		o.mu.Unlock()
		return nil
	}
	bounds := o.viewport
	rev := o.poolRev
	maxArea := o.cfg.MaxAreaPhotos
	sources := make([]photo.Source, 0, len(o.sources))
	for _, src := range o.sources {
		sources = append(sources, src)
	}
	pools := o.pools
	o.mu.Unlock()

	key := cacheKey(bounds, maxArea, rev)
	if cached, ok := o.areaCache.Get(key); ok {
		o.publishArea(cached)
		o.publishRange(ctx)
		return ctx.Err()
	}

	start := time.Now()

	// Narrow each pool to index candidates before the grid sweep
	candidates := o.index.Query(bounds, o.cfg.MaxIndexCandidates)
	inBounds := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		inBounds[id] = struct{}{}
	}
	narrowed := make(map[string][]photo.PhotoRecord, len(pools))
	for sourceID, pool := range pools {
		kept := make([]photo.PhotoRecord, 0, len(pool))
		for _, rec := range pool {
			if _, ok := inBounds[rec.Key()]; ok {
				kept = append(kept, rec)
			}
		}
		narrowed[sourceID] = kept
	}

	selected, err := culling.CullForViewport(ctx, bounds, sources, narrowed, maxArea)
	if err != nil {
		return err
	}
	stats := culling.ComputeCoverage(bounds, sources, narrowed, selected)
	metrics.CullDurationMs.WithLabelValues("area").Observe(float64(time.Since(start).Milliseconds()))

	result := &AreaResult{Bounds: bounds, Photos: selected, Stats: stats}
	o.areaCache.Add(key, result)
	o.publishArea(result)

	o.publishRange(ctx)
	return ctx.Err()
}

// publishArea stores and emits a viewport selection
func (o *Orchestrator) publishArea(result *AreaResult) {
	o.mu.Lock()
	o.lastArea = result
	o.mu.Unlock()

	metrics.PhotosSelected.WithLabelValues("area").Set(float64(len(result.Photos)))
	if o.cb.OnAreaUpdate != nil {
		o.cb.OnAreaUpdate(*result)
	}
}

// publishRange derives the navigation selection from the last published
// area and the current center/bearing, then emits it
func (o *Orchestrator) publishRange(ctx context.Context) {
	o.mu.Lock()
	area := o.lastArea
	center := o.center
	hasCenter := o.hasCenter
	bearing := o.bearing
	rangeMeters := o.rangeMeters
	maxRange := o.cfg.MaxRangePhotos
	o.mu.Unlock()

	if area == nil || !hasCenter || rangeMeters <= 0 || ctx.Err() != nil {
		return
	}

	start := time.Now()
	ref := bearing
	selected := culling.CullByRange(area.Photos, culling.RangeQuery{
		Center:           center,
		RangeMeters:      rangeMeters,
		MaxPhotos:        maxRange,
		ReferenceBearing: &ref,
	})
	metrics.CullDurationMs.WithLabelValues("range").Observe(float64(time.Since(start).Milliseconds()))

	result := &RangeResult{
		Center:      center,
		Bearing:     bearing,
		RangeMeters: rangeMeters,
		Photos:      selected,
	}

	o.mu.Lock()
	o.lastRange = result
	o.mu.Unlock()

	metrics.PhotosSelected.WithLabelValues("range").Set(float64(len(selected)))
	if o.cb.OnRangeUpdate != nil {
		o.cb.OnRangeUpdate(*result)
	}
}

func cacheKey(bounds geo.Bounds, maxPhotos int, rev uint64) string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f|%d|%d",
		bounds.TopLeft.Lat, bounds.TopLeft.Lon,
		bounds.BottomRight.Lat, bounds.BottomRight.Lon,
		maxPhotos, rev)
}
