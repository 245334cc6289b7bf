package geo

import "fmt"

// GridSize is the number of rows and columns in the fixed viewport grid
const GridSize = 10

// Bounds represents a geographic viewport rectangle defined by its
// top-left and bottom-right corners. TopLeft.Lat >= BottomRight.Lat;
// the longitude range may wrap the antimeridian (West > East).
type Bounds struct {
	TopLeft     Coordinate `json:"topLeft"`
	BottomRight Coordinate `json:"bottomRight"`
}

// NewBounds builds a Bounds from corner coordinates, normalizing longitudes
func NewBounds(topLat, leftLon, bottomLat, rightLon float64) Bounds {
	return Bounds{
		TopLeft:     Coordinate{Lat: topLat, Lon: NormalizeLon(leftLon)},
		BottomRight: Coordinate{Lat: bottomLat, Lon: NormalizeLon(rightLon)},
	}
}

// LatSpan returns the latitude extent of the bounds
func (b Bounds) LatSpan() float64 {
	return b.TopLeft.Lat - b.BottomRight.Lat
}

// LonSpan returns the longitude extent of the bounds in degrees,
// accounting for antimeridian wrap. A zero-width viewport yields 0.
func (b Bounds) LonSpan() float64 {
	span := b.BottomRight.Lon - b.TopLeft.Lon
	if span < 0 {
		span += 360.0
	}
	return span
}

// Wraps reports whether the bounds cross the antimeridian
func (b Bounds) Wraps() bool {
	return b.BottomRight.Lon < b.TopLeft.Lon
}

// Contains reports whether a point falls inside the bounds (edges inclusive)
func (b Bounds) Contains(lat, lon float64) bool {
	if lat > b.TopLeft.Lat || lat < b.BottomRight.Lat {
		return false
	}
	lon = NormalizeLon(lon)
	if b.Wraps() {
		return lon >= b.TopLeft.Lon || lon <= b.BottomRight.Lon
	}
	return lon >= b.TopLeft.Lon && lon <= b.BottomRight.Lon
}

// Center returns the geographic center of the bounds
func (b Bounds) Center() Coordinate {
	lat := (b.TopLeft.Lat + b.BottomRight.Lat) / 2
	lon := b.TopLeft.Lon + b.LonSpan()/2
	return Coordinate{Lat: lat, Lon: NormalizeLon(lon)}
}

// GridCell identifies one cell of the fixed GridSize x GridSize viewport grid
type GridCell struct {
	Row int
	Col int
}

// Key returns a stable string form used for deterministic cell ordering
func (c GridCell) Key() string {
	return fmt.Sprintf("%d,%d", c.Row, c.Col)
}

// CellFor maps a point to its viewport grid cell. Points on or outside an
// edge are clamped to [0, GridSize-1] so every point gets a valid cell.
func (b Bounds) CellFor(lat, lon float64) GridCell {
	row := 0
	if latSpan := b.LatSpan(); latSpan > 0 {
		row = int((b.TopLeft.Lat - lat) / latSpan * GridSize)
	}

	col := 0
	if lonSpan := b.LonSpan(); lonSpan > 0 {
		offset := NormalizeLon(lon) - b.TopLeft.Lon
		if offset < 0 {
			offset += 360.0
		}
		col = int(offset / lonSpan * GridSize)
	}

	return GridCell{Row: clampCell(row), Col: clampCell(col)}
}

func clampCell(v int) int {
	if v < 0 {
		return 0
	}
	if v > GridSize-1 {
		return GridSize - 1
	}
	return v
}
