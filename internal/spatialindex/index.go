package spatialindex

import (
	"log"
	"math"
	"sync"

	"photomap-desktop/internal/geo"
)

const (
	// DefaultCellSizeDeg buckets points into roughly 1 km cells
	DefaultCellSizeDeg = 0.01

	// maxQueryCells is the hard ceiling on cells a query may touch.
	// Queries above it are treated as degenerate input and return nothing.
	maxQueryCells = 100000

	// strideCellThreshold is the cell count above which the query strides
	// over cells instead of visiting every one, trading recall for latency
	strideCellThreshold = 1000
)

type cellKey struct {
	Row int
	Col int
}

type point struct {
	lat float64
	lon float64
}

// Index is a grid-bucketed spatial index mapping bounds queries to photo
// ids in O(cells touched) instead of a full pool scan
type Index struct {
	mu       sync.RWMutex
	cellSize float64
	cells    map[cellKey]map[string]point
	byID     map[string]cellKey // id -> last known cell, makes Remove O(1)
}

// New creates an index with the default cell size
func New() *Index {
	return NewWithCellSize(DefaultCellSizeDeg)
}

// NewWithCellSize creates an index with a custom cell size in degrees
func NewWithCellSize(cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = DefaultCellSizeDeg
	}
	return &Index{
		cellSize: cellSize,
		cells:    make(map[cellKey]map[string]point),
		byID:     make(map[string]cellKey),
	}
}

func (idx *Index) keyFor(lat, lon float64) cellKey {
	return cellKey{
		Row: int(math.Floor(lat / idx.cellSize)),
		Col: int(math.Floor(geo.NormalizeLon(lon) / idx.cellSize)),
	}
}

// Insert adds a point to the index. Re-inserting an existing id first
// removes its stale bucket membership, so Insert is idempotent.
func (idx *Index) Insert(id string, lat, lon float64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, exists := idx.byID[id]; exists {
		idx.removeFromCell(old, id)
	}

	key := idx.keyFor(lat, lon)
	bucket, ok := idx.cells[key]
	if !ok {
		bucket = make(map[string]point)
		idx.cells[key] = bucket
	}
	bucket[id] = point{lat: lat, lon: lon}
	idx.byID[id] = key
}

// Remove deletes an id from the index. Unknown ids are a no-op.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key, exists := idx.byID[id]
	if !exists {
		return
	}
	idx.removeFromCell(key, id)
	delete(idx.byID, id)
}

func (idx *Index) removeFromCell(key cellKey, id string) {
	if bucket, ok := idx.cells[key]; ok {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(idx.cells, key)
		}
	}
}

// Len returns the number of indexed points
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}

// colSpan is a contiguous range of grid columns; bounds that wrap the
// antimeridian enumerate as two spans
type colSpan struct {
	min int
	max int
}

// Query returns up to maxResults ids whose points fall within bounds.
// Grid cells are conservative, so every candidate is re-checked for exact
// containment. Degenerate inputs return an empty result, never an error.
func (idx *Index) Query(bounds geo.Bounds, maxResults int) []string {
	if maxResults <= 0 || bounds.LatSpan() < 0 {
		return nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	minRow := int(math.Floor(bounds.BottomRight.Lat / idx.cellSize))
	maxRow := int(math.Floor(bounds.TopLeft.Lat / idx.cellSize))

	var spans []colSpan
	if bounds.Wraps() {
		spans = []colSpan{
			{min: int(math.Floor(bounds.TopLeft.Lon / idx.cellSize)), max: int(math.Floor(180.0/idx.cellSize)) - 1},
			{min: int(math.Floor(-180.0 / idx.cellSize)), max: int(math.Floor(bounds.BottomRight.Lon / idx.cellSize))},
		}
	} else {
		spans = []colSpan{
			{min: int(math.Floor(bounds.TopLeft.Lon / idx.cellSize)), max: int(math.Floor(bounds.BottomRight.Lon / idx.cellSize))},
		}
	}

	rows := maxRow - minRow + 1
	cols := 0
	for _, s := range spans {
		cols += s.max - s.min + 1
	}
	totalCells := rows * cols
	if totalCells <= 0 {
		return nil
	}
	if totalCells > maxQueryCells {
		log.Printf("[SpatialIndex] Query spans %d cells (ceiling %d), returning empty result", totalCells, maxQueryCells)
		return nil
	}

	stride := 1
	if totalCells > strideCellThreshold {
		stride = totalCells/strideCellThreshold + 1
	}

	results := make([]string, 0, maxResults)
	seen := make(map[string]struct{})
	visit := 0

	for row := minRow; row <= maxRow; row++ {
		for _, span := range spans {
			for col := span.min; col <= span.max; col++ {
				visit++
				if stride > 1 && visit%stride != 0 {
					continue
				}
				bucket, ok := idx.cells[cellKey{Row: row, Col: col}]
				if !ok {
					continue
				}
				for id, pt := range bucket {
					if _, dup := seen[id]; dup {
						continue
					}
					if !bounds.Contains(pt.lat, pt.lon) {
						continue
					}
					seen[id] = struct{}{}
					results = append(results, id)
					if len(results) >= maxResults {
						return results
					}
				}
			}
		}
	}

	return results
}
