package loader

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"photomap-desktop/internal/photo"
)

// ParsePool decodes a JSON array of photo records, the shape the device
// photo scanner and the archive exporter both emit
func ParsePool(data []byte) ([]photo.PhotoRecord, error) {
	var records []photo.PhotoRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse photo pool: %w", err)
	}

	// Drop records the culling core cannot place on a map
	valid := records[:0]
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		if rec.Lat < -90 || rec.Lat > 90 {
			continue
		}
		valid = append(valid, rec)
	}
	return valid, nil
}

// LoadPool reads a photo pool from a JSON file
func LoadPool(path string) ([]photo.PhotoRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pool file: %w", err)
	}
	return ParsePool(data)
}
