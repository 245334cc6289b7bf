package loader

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePool(t *testing.T) {
	data := []byte(`[
		{"id": "p1", "lat": 50.05, "lon": 14.35, "bearing": 120.5, "fileHash": "abc"},
		{"id": "p2", "lat": 50.06, "lon": 14.36, "capturedAt": 1693400000, "accuracy": 4.5},
		{"id": "", "lat": 50.07, "lon": 14.37},
		{"id": "bad-lat", "lat": 95.0, "lon": 14.38}
	]`)

	records, err := ParsePool(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("kept %d records, want 2 (invalid ones dropped)", len(records))
	}

	p1 := records[0]
	if p1.ID != "p1" || !p1.HasBearing() || *p1.Bearing != 120.5 || p1.FileHash != "abc" {
		t.Errorf("p1 decoded as %+v", p1)
	}
	p2 := records[1]
	if p2.HasBearing() {
		t.Error("p2 has a bearing it was never given")
	}
	if p2.CapturedAt != 1693400000 || p2.Accuracy != 4.5 {
		t.Errorf("p2 capture metadata decoded as %+v", p2)
	}
}

func TestParsePoolMalformed(t *testing.T) {
	if _, err := ParsePool([]byte(`{"not": "an array"}`)); err == nil {
		t.Error("malformed pool accepted")
	}
}

func TestParsePoolEmpty(t *testing.T) {
	records, err := ParsePool([]byte(`[]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("empty pool produced %d records", len(records))
	}
}

func TestLoadPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	if err := os.WriteFile(path, []byte(`[{"id": "p1", "lat": 1, "lon": 2}]`), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := LoadPool(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].ID != "p1" {
		t.Errorf("loaded %+v", records)
	}
}

func TestLoadPoolMissingFile(t *testing.T) {
	if _, err := LoadPool(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("missing file accepted")
	}
}
