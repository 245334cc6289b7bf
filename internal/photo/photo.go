package photo

// SourceTier orders photo sources by display priority (lower = higher priority)
type SourceTier int

const (
	// TierDevice is photos captured on this device
	TierDevice SourceTier = 1
	// TierArchive is the primary remote photo archive
	TierArchive SourceTier = 2
	// TierThirdParty is generic third-party photo sources
	TierThirdParty SourceTier = 3
	// TierAggregator is the lowest-priority aggregator feeds
	TierAggregator SourceTier = 4
)

// Source describes one photo source and its current configuration
type Source struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Tier    SourceTier `json:"tier"`
	Enabled bool       `json:"enabled"`
}

// PhotoRecord is a geotagged photo as handed to the culling core by a
// source loader. Identifiers are unique within a source only; cross-source
// collisions are possible and handled by content-hash deduplication.
//
// RangeDistance and AngularDistance are derived fields attached by the
// core on each recomputation cycle; loader-owned values are never mutated,
// every recomputation emits fresh copies.
type PhotoRecord struct {
	ID       string   `json:"id"`
	SourceID string   `json:"sourceId"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Bearing  *float64 `json:"bearing,omitempty"`
	Altitude *float64 `json:"altitude,omitempty"`

	// Capture metadata from the loader
	CapturedAt int64   `json:"capturedAt,omitempty"`
	Accuracy   float64 `json:"accuracy,omitempty"`

	// FileHash fingerprints the underlying image for cross-source
	// duplicate detection. Records without a hash are never deduplicated.
	FileHash string `json:"fileHash,omitempty"`

	// Derived fields, recomputed every cycle
	RangeDistance   *float64 `json:"rangeDistance,omitempty"`
	AngularDistance *float64 `json:"angularDistance,omitempty"`

	// Duplicates holds lower-priority copies of the same image that were
	// suppressed during culling, so consumers can still recover them
	Duplicates []PhotoRecord `json:"duplicates,omitempty"`
}

// Key returns a pool-wide unique key for the record
func (p PhotoRecord) Key() string {
	return p.SourceID + "/" + p.ID
}

// HasBearing reports whether the record carries a capture bearing
func (p PhotoRecord) HasBearing() bool {
	return p.Bearing != nil
}
