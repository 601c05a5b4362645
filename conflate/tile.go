package conflate

import (
	"github.com/google/btree"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/mapgrove/osmconflate/geomodel"
)

// tileSet accumulates review items into slippy-map cells, ordered by
// (Z, X, Y) so the emitted batch order never depends on map iteration.
type tileSet struct {
	zoom  maptile.Zoom
	tiles *btree.BTreeG[*geomodel.Tile]
}

func newTileSet(zoom maptile.Zoom) *tileSet {
	return &tileSet{
		zoom: zoom,
		tiles: btree.NewG(8, func(a, b *geomodel.Tile) bool {
			if a.Key.Z != b.Key.Z {
				return a.Key.Z < b.Key.Z
			}
			if a.Key.X != b.Key.X {
				return a.Key.X < b.Key.X
			}
			return a.Key.Y < b.Key.Y
		}),
	}
}

func (ts *tileSet) at(p orb.Point) *geomodel.Tile {
	probe := &geomodel.Tile{Key: maptile.At(p, ts.zoom)}
	if t, ok := ts.tiles.Get(probe); ok {
		return t
	}
	ts.tiles.ReplaceOrInsert(probe)
	return probe
}

func (ts *tileSet) ordered() []*geomodel.Tile {
	out := make([]*geomodel.Tile, 0, ts.tiles.Len())
	ts.tiles.Ascend(func(t *geomodel.Tile) bool {
		out = append(out, t)
		return true
	})
	return out
}

// Partition distributes every surviving item into exactly one review tile.
//
// Matches and unmatched addresses are keyed by the address point. A building
// with exactly one match travels with that match (MergeIntoBuilding is set;
// a novel footprint is emitted inside the match's tile even when its own
// centroid falls elsewhere). Buildings with no match, or with several
// competing matches, keep the matches as separate address nodes: several
// wholesale edits of one building cannot coexist, so a contested building is
// never the subject of any match operation.
func Partition(buildings []*geomodel.Building, validated []geomodel.ValidatedMatch, zoom maptile.Zoom) []*geomodel.Tile {
	matchCount := map[*geomodel.Building]int{}
	for _, vm := range validated {
		if vm.Matched() {
			matchCount[vm.Building]++
		}
	}

	ts := newTileSet(zoom)
	for _, vm := range validated {
		t := ts.at(vm.Address.Point)
		if !vm.Matched() {
			t.Addresses = append(t.Addresses, vm)
			continue
		}
		if matchCount[vm.Building] == 1 {
			vm.MergeIntoBuilding = true
		}
		t.Matches = append(t.Matches, vm)
	}
	for _, b := range buildings {
		if matchCount[b] == 1 {
			continue // folded into its match above
		}
		t := ts.at(b.RepresentativePoint())
		t.Buildings = append(t.Buildings, b)
	}

	return ts.ordered()
}
