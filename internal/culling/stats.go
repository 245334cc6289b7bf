package culling

import (
	"github.com/samber/lo"

	"photomap-desktop/internal/geo"
	"photomap-desktop/internal/photo"
)

// SourceCoverage reports how many of a source's in-viewport photos were
// offered to the culler versus actually selected
type SourceCoverage struct {
	Offered  int `json:"offered"`
	Selected int `json:"selected"`
}

// CoverageStats is a read-only diagnostic view of a viewport selection.
// It is computed from an already-produced selection and never feeds back
// into the selection itself.
type CoverageStats struct {
	TotalInput    int                       `json:"totalInput"`
	SelectedCount int                       `json:"selectedCount"`
	PerSource     map[string]SourceCoverage `json:"perSource"`
	CellOccupancy map[string]int            `json:"cellOccupancy"`
	EmptyCells    int                       `json:"emptyCells"`
}

// ComputeCoverage derives coverage diagnostics for a finished viewport
// selection over the given bounds and per-source pools
func ComputeCoverage(bounds geo.Bounds, sources []photo.Source, pools map[string][]photo.PhotoRecord, selected []photo.PhotoRecord) CoverageStats {
	enabled := lo.Filter(sources, func(s photo.Source, _ int) bool { return s.Enabled })

	perSource := make(map[string]SourceCoverage, len(enabled))
	total := 0
	for _, src := range enabled {
		offered := lo.CountBy(pools[src.ID], func(p photo.PhotoRecord) bool {
			return bounds.Contains(p.Lat, p.Lon)
		})
		total += len(pools[src.ID])
		perSource[src.ID] = SourceCoverage{Offered: offered}
	}

	occupancy := make(map[string]int)
	for _, rec := range selected {
		cov := perSource[rec.SourceID]
		cov.Selected++
		perSource[rec.SourceID] = cov
		occupancy[bounds.CellFor(rec.Lat, rec.Lon).Key()]++
	}

	return CoverageStats{
		TotalInput:    total,
		SelectedCount: len(selected),
		PerSource:     perSource,
		CellOccupancy: occupancy,
		EmptyCells:    geo.GridSize*geo.GridSize - len(occupancy),
	}
}
