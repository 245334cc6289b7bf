package culling

import (
	"fmt"
	"math"
	"testing"

	"photomap-desktop/internal/geo"
	"photomap-desktop/internal/photo"
)

func ptr(v float64) *float64 { return &v }

func photoAt(id string, lat, lon, bearing float64) photo.PhotoRecord {
	return photo.PhotoRecord{ID: id, SourceID: "test", Lat: lat, Lon: lon, Bearing: ptr(bearing)}
}

func TestCullByRangeEmptyInput(t *testing.T) {
	q := RangeQuery{Center: geo.Coordinate{Lat: 50, Lon: 14}, RangeMeters: 1000, MaxPhotos: 10}
	if got := CullByRange(nil, q); len(got) != 0 {
		t.Errorf("empty input returned %d records", len(got))
	}
}

func TestCullByRangeZeroCap(t *testing.T) {
	pool := []photo.PhotoRecord{photoAt("a", 50.001, 14, 0)}
	q := RangeQuery{Center: geo.Coordinate{Lat: 50, Lon: 14}, RangeMeters: 1000, MaxPhotos: 0}
	if got := CullByRange(pool, q); len(got) != 0 {
		t.Errorf("zero cap returned %d records", len(got))
	}
}

func TestCullByRangeFiltersDistance(t *testing.T) {
	// Three photos ~550m out at bearings 0/90/180, one ~11km out at 270
	center := geo.Coordinate{Lat: 50.05, Lon: 14.35}
	pool := []photo.PhotoRecord{
		photoAt("n", 50.055, 14.35, 0),
		photoAt("e", 50.05, 14.358, 90),
		photoAt("s", 50.045, 14.35, 180),
		photoAt("far", 50.05, 14.50, 270),
	}

	got := CullByRange(pool, RangeQuery{Center: center, RangeMeters: 1000, MaxPhotos: 10})

	if len(got) > 3 {
		t.Fatalf("got %d records, want at most 3", len(got))
	}
	for _, rec := range got {
		if rec.ID == "far" {
			t.Error("far photo leaked into result")
		}
		if rec.RangeDistance == nil {
			t.Fatalf("record %s missing range distance", rec.ID)
		}
		if *rec.RangeDistance <= 0 || *rec.RangeDistance > 1000 {
			t.Errorf("record %s range distance %v outside (0, 1000]", rec.ID, *rec.RangeDistance)
		}
	}
}

func TestCullByRangeFewerThanCap(t *testing.T) {
	center := geo.Coordinate{Lat: 50.05, Lon: 14.35}
	pool := []photo.PhotoRecord{
		photoAt("a", 50.052, 14.35, 10),
		photoAt("b", 50.048, 14.35, 200),
	}

	got := CullByRange(pool, RangeQuery{Center: center, RangeMeters: 1000, MaxPhotos: 10})
	if len(got) != 2 {
		t.Fatalf("got %d records, want all 2 in-range candidates", len(got))
	}
	for _, rec := range got {
		if rec.RangeDistance == nil {
			t.Errorf("record %s not annotated with range distance", rec.ID)
		}
	}
}

func TestCullByRangeBearingNormalization(t *testing.T) {
	center := geo.Coordinate{Lat: 50.05, Lon: 14.35}
	pool := []photo.PhotoRecord{
		photoAt("neg", 50.052, 14.35, -10),
		photoAt("pos", 50.048, 14.35, 370),
	}

	got := CullByRange(pool, RangeQuery{Center: center, RangeMeters: 1000, MaxPhotos: 10})
	if len(got) != 2 {
		t.Fatalf("out-of-range bearings rejected: got %d records", len(got))
	}
	for _, rec := range got {
		if *rec.Bearing < 0 || *rec.Bearing >= 360 {
			t.Errorf("record %s bearing %v not normalized into [0, 360)", rec.ID, *rec.Bearing)
		}
	}
	for _, rec := range got {
		switch rec.ID {
		case "neg":
			if math.Abs(*rec.Bearing-350) > 1e-9 {
				t.Errorf("bearing -10 normalized to %v, want 350", *rec.Bearing)
			}
		case "pos":
			if math.Abs(*rec.Bearing-10) > 1e-9 {
				t.Errorf("bearing 370 normalized to %v, want 10", *rec.Bearing)
			}
		}
	}
}

func TestCullByRangeBearingDiversity(t *testing.T) {
	// 100 photos spread over the full circle, all within range
	center := geo.Coordinate{Lat: 50.05, Lon: 14.35}
	pool := make([]photo.PhotoRecord, 0, 100)
	for i := 0; i < 100; i++ {
		bearing := float64(i) * 3.6
		lat := 50.05 + 0.002*math.Cos(bearing*math.Pi/180)
		lon := 14.35 + 0.002*math.Sin(bearing*math.Pi/180)
		pool = append(pool, photoAt(fmt.Sprintf("p%d", i), lat, lon, bearing))
	}

	got := CullByRange(pool, RangeQuery{Center: center, RangeMeters: 1000, MaxPhotos: 5})
	if len(got) != 5 {
		t.Fatalf("got %d records, want exactly 5", len(got))
	}

	bearings := map[float64]bool{}
	for _, rec := range got {
		if bearings[*rec.Bearing] {
			t.Errorf("bearing %v returned twice", *rec.Bearing)
		}
		bearings[*rec.Bearing] = true
	}
}

func TestCullByRangeNearestFirstWithinSector(t *testing.T) {
	center := geo.Coordinate{Lat: 50.05, Lon: 14.35}
	// Two photos in the same sector; the nearer one must win the only slot
	pool := []photo.PhotoRecord{
		photoAt("far-north", 50.057, 14.35, 2),
		photoAt("near-north", 50.052, 14.35, 4),
	}

	got := CullByRange(pool, RangeQuery{Center: center, RangeMeters: 2000, MaxPhotos: 1})
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].ID != "near-north" {
		t.Errorf("selected %s, want the nearer candidate", got[0].ID)
	}
}

func TestCullByRangeAngularDistance(t *testing.T) {
	center := geo.Coordinate{Lat: 50.05, Lon: 14.35}
	pool := []photo.PhotoRecord{photoAt("a", 50.052, 14.35, 90)}

	got := CullByRange(pool, RangeQuery{
		Center:           center,
		RangeMeters:      1000,
		MaxPhotos:        10,
		ReferenceBearing: ptr(100.0),
	})
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].AngularDistance == nil || math.Abs(*got[0].AngularDistance-10) > 1e-9 {
		t.Errorf("angular distance = %v, want 10", got[0].AngularDistance)
	}
}

func TestCullByRangeSkipsBearinglessRecords(t *testing.T) {
	center := geo.Coordinate{Lat: 50.05, Lon: 14.35}
	pool := []photo.PhotoRecord{
		{ID: "nobearing", SourceID: "test", Lat: 50.052, Lon: 14.35},
		photoAt("ok", 50.048, 14.35, 180),
	}

	got := CullByRange(pool, RangeQuery{Center: center, RangeMeters: 1000, MaxPhotos: 10})
	if len(got) != 1 || got[0].ID != "ok" {
		t.Errorf("got %v, want only the record with a bearing", got)
	}
}
