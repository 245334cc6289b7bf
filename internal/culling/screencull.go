package culling

import (
	"context"
	"sort"

	"photomap-desktop/internal/geo"
	"photomap-desktop/internal/photo"
)

// sourceCursor tracks selection progress for one source: its in-viewport
// photos grouped by grid cell, a rotating cell cursor, and how many
// photos each cell has already yielded
type sourceCursor struct {
	source   photo.Source
	cells    [][]photo.PhotoRecord
	cursor   int
	consumed []int
}

// pull takes the next not-yet-emitted photo from the source's next cell,
// advancing the rotating cursor so repeated sweeps cover the whole grid
func (sc *sourceCursor) pull() (photo.PhotoRecord, bool) {
	for tries := 0; tries < len(sc.cells); tries++ {
		i := sc.cursor % len(sc.cells)
		sc.cursor++
		if sc.consumed[i] < len(sc.cells[i]) {
			rec := sc.cells[i][sc.consumed[i]]
			sc.consumed[i]++
			return rec, true
		}
	}
	return photo.PhotoRecord{}, false
}

// CullForViewport picks at most maxPhotos records that cover the viewport
// uniformly, respect ascending source tier order, and deduplicate
// identical images across sources by content hash.
//
// The grid sweep checks ctx between source sweeps; a cancelled context
// aborts the selection and returns ctx.Err() with no output. All other
// inputs, including zero sources and non-positive caps, resolve to an
// empty result without error.
func CullForViewport(ctx context.Context, bounds geo.Bounds, sources []photo.Source, pools map[string][]photo.PhotoRecord, maxPhotos int) ([]photo.PhotoRecord, error) {
	if maxPhotos <= 0 || len(sources) == 0 {
		return nil, nil
	}

	ordered := make([]photo.Source, 0, len(sources))
	for _, src := range sources {
		if src.Enabled {
			ordered = append(ordered, src)
		}
	}
	if len(ordered) == 0 {
		return nil, nil
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Tier != ordered[j].Tier {
			return ordered[i].Tier < ordered[j].Tier
		}
		return ordered[i].ID < ordered[j].ID
	})

	cursors := make([]*sourceCursor, 0, len(ordered))
	for _, src := range ordered {
		if sc := newSourceCursor(src, bounds, pools[src.ID]); sc != nil {
			cursors = append(cursors, sc)
		}
	}
	if len(cursors) == 0 {
		return nil, nil
	}

	selected := make([]photo.PhotoRecord, 0, maxPhotos)
	tiers := make([]photo.SourceTier, 0, maxPhotos)
	byHash := make(map[string]int) // content hash -> index into selected

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		emitted := false
		for _, sc := range cursors {
			rec, ok := sc.pull()
			if !ok {
				continue
			}
			emitted = true

			if rec.FileHash != "" {
				if i, dup := byHash[rec.FileHash]; dup {
					selected[i], tiers[i] = mergeDuplicate(selected[i], tiers[i], rec, sc.source.Tier)
					continue
				}
				byHash[rec.FileHash] = len(selected)
			}
			selected = append(selected, rec)
			tiers = append(tiers, sc.source.Tier)
			if len(selected) >= maxPhotos {
				return selected, nil
			}
		}

		if !emitted {
			return selected, nil
		}
	}
}

// newSourceCursor buckets a source's in-viewport photos into the fixed
// grid and freezes a deterministic cell iteration order. Returns nil when
// the source contributes nothing to this viewport.
func newSourceCursor(src photo.Source, bounds geo.Bounds, pool []photo.PhotoRecord) *sourceCursor {
	byCell := make(map[string][]photo.PhotoRecord)
	for _, rec := range pool {
		if !bounds.Contains(rec.Lat, rec.Lon) {
			continue
		}
		key := bounds.CellFor(rec.Lat, rec.Lon).Key()
		byCell[key] = append(byCell[key], rec)
	}
	if len(byCell) == 0 {
		return nil
	}

	keys := make([]string, 0, len(byCell))
	for key := range byCell {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	cells := make([][]photo.PhotoRecord, len(keys))
	for i, key := range keys {
		cell := byCell[key]
		sort.Slice(cell, func(a, b int) bool { return cell[a].ID < cell[b].ID })
		cells[i] = cell
	}

	return &sourceCursor{
		source:   src,
		cells:    cells,
		consumed: make([]int, len(cells)),
	}
}

// mergeDuplicate resolves a content-hash collision between an already
// selected record and a new candidate. The higher-priority source's copy
// stays visible; the strictly lower-priority copy is attached to it as a
// recoverable nested reference. Equal-tier collisions drop the candidate.
func mergeDuplicate(selected photo.PhotoRecord, selTier photo.SourceTier, candidate photo.PhotoRecord, candTier photo.SourceTier) (photo.PhotoRecord, photo.SourceTier) {
	switch {
	case candTier > selTier:
		stripped := candidate
		stripped.Duplicates = nil
		selected.Duplicates = append(selected.Duplicates, stripped)
		return selected, selTier
	case candTier < selTier:
		demoted := selected
		demoted.Duplicates = nil
		winner := candidate
		winner.Duplicates = append(append([]photo.PhotoRecord(nil), selected.Duplicates...), demoted)
		return winner, candTier
	default:
		return selected, selTier
	}
}
