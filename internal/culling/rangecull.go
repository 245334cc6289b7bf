package culling

import (
	"sort"

	"photomap-desktop/internal/geo"
	"photomap-desktop/internal/photo"
)

const (
	// AngularBuckets is the number of bearing sectors the range culler
	// spreads its picks across. Tunable; it should comfortably exceed
	// the result caps callers use so distinct directions survive culling.
	AngularBuckets = 36

	sectorWidthDeg = 360.0 / AngularBuckets
)

// RangeQuery describes one "photos around me" selection request
type RangeQuery struct {
	Center      geo.Coordinate
	RangeMeters float64
	MaxPhotos   int

	// ReferenceBearing, when set, is the current compass bearing; every
	// returned record gets an AngularDistance relative to it
	ReferenceBearing *float64
}

// CullByRange selects a bearing-diverse subset of the candidates within
// RangeMeters of the center, nearest-first within each bearing sector.
//
// Every returned record is a fresh copy carrying RangeDistance (and
// AngularDistance when a reference bearing is set). Candidates without a
// bearing cannot be placed in a sector and are skipped. Out-of-range
// bearings are normalized, never rejected.
func CullByRange(candidates []photo.PhotoRecord, q RangeQuery) []photo.PhotoRecord {
	if len(candidates) == 0 || q.MaxPhotos <= 0 || q.RangeMeters <= 0 {
		return nil
	}

	buckets := make([][]photo.PhotoRecord, AngularBuckets)
	for _, rec := range candidates {
		if !rec.HasBearing() {
			continue
		}
		dist := geo.HaversineDistance(q.Center.Lat, q.Center.Lon, rec.Lat, rec.Lon)
		if dist > q.RangeMeters {
			continue
		}

		out := rec
		d := dist
		out.RangeDistance = &d
		bearing := geo.NormalizeBearing(*rec.Bearing)
		out.Bearing = &bearing
		if q.ReferenceBearing != nil {
			ad := geo.AngularDelta(bearing, *q.ReferenceBearing)
			out.AngularDistance = &ad
		}

		sector := int(bearing/sectorWidthDeg) % AngularBuckets
		buckets[sector] = append(buckets[sector], out)
	}

	for _, bucket := range buckets {
		sort.Slice(bucket, func(i, j int) bool {
			return *bucket[i].RangeDistance < *bucket[j].RangeDistance
		})
	}

	// Round-robin across sectors in bearing order, nearest unconsumed
	// candidate per sector per pass
	selected := make([]photo.PhotoRecord, 0, q.MaxPhotos)
	for pass := 0; ; pass++ {
		took := false
		for sector := 0; sector < AngularBuckets; sector++ {
			if pass >= len(buckets[sector]) {
				continue
			}
			selected = append(selected, buckets[sector][pass])
			took = true
			if len(selected) >= q.MaxPhotos {
				return selected
			}
		}
		if !took {
			break
		}
	}

	return selected
}
