package conflate_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/fogleman/poissondisc"
	"github.com/paulmach/orb"

	"github.com/mapgrove/osmconflate/conflate"
	"github.com/mapgrove/osmconflate/geomodel"
)

func unmatched(a *geomodel.Address) geomodel.ValidatedMatch {
	return geomodel.ValidatedMatch{Match: geomodel.Match{Address: a, Strategy: geomodel.MatchNone}}
}

// Scattered items across several zoom-15 cells: every item must land in
// exactly one tile and no tile may be empty.
func TestPartitionCompleteness(t *testing.T) {
	// ~5km of evenly spread points
	pts := poissondisc.Sample(10, 0, 10.05, 0.05, 0.004, 16, rand.New(rand.NewSource(42)))
	if len(pts) < 20 {
		t.Fatalf("sampler produced too few points: %d", len(pts))
	}

	var validated []geomodel.ValidatedMatch
	var buildings []*geomodel.Building
	for i, p := range pts {
		pt := orb.Point{p.X, p.Y}
		if i%3 == 0 {
			buildings = append(buildings, newBuilding(fmt.Sprintf("import/b%d", i), pt, 5))
		} else {
			validated = append(validated, unmatched(newAddress(fmt.Sprintf("import/a%d", i), pt, "1", "Main Street")))
		}
	}

	tiles := conflate.Partition(buildings, validated, 15)
	if len(tiles) < 2 {
		t.Fatalf("expected the scatter to span several tiles, got %d", len(tiles))
	}

	seen := map[string]int{}
	total := 0
	for _, tile := range tiles {
		if tile.Len() == 0 {
			t.Fatalf("tile %s is empty", tile.Name())
		}
		for _, b := range tile.Buildings {
			seen[b.ID]++
			total++
		}
		for _, vm := range tile.Addresses {
			seen[vm.Address.ID]++
			total++
		}
		for _, vm := range tile.Matches {
			seen[vm.Address.ID]++
			total++
		}
	}
	if total != len(buildings)+len(validated) {
		t.Fatalf("expected %d items across tiles, got %d", len(buildings)+len(validated), total)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("item %s appears %d times", id, n)
		}
	}
}

func TestPartitionOrderedDeterministic(t *testing.T) {
	pts := poissondisc.Sample(10, 0, 10.05, 0.05, 0.006, 16, rand.New(rand.NewSource(7)))
	var validated []geomodel.ValidatedMatch
	for i, p := range pts {
		validated = append(validated, unmatched(newAddress(fmt.Sprintf("import/a%d", i), orb.Point{p.X, p.Y}, "1", "Main Street")))
	}

	first := conflate.Partition(nil, validated, 15)
	for run := 0; run < 3; run++ {
		again := conflate.Partition(nil, validated, 15)
		if len(again) != len(first) {
			t.Fatalf("tile count changed between runs")
		}
		for i := range first {
			if first[i].Key != again[i].Key {
				t.Fatalf("tile order changed at %d: %v vs %v", i, first[i].Key, again[i].Key)
			}
		}
	}

	for i := 1; i < len(first); i++ {
		a, b := first[i-1].Key, first[i].Key
		if a.X > b.X || (a.X == b.X && a.Y >= b.Y) {
			t.Fatalf("tiles not ordered: %v before %v", a, b)
		}
	}
}

func TestPartitionMergesLoneMatch(t *testing.T) {
	b := newBuilding("import/b", at(0, 0), 10)
	a := newAddress("import/a", at(1, 1), "10", "Main Street")
	vm := geomodel.ValidatedMatch{Match: geomodel.Match{
		Address:  a,
		Building: b,
		Strategy: geomodel.MatchContainment,
	}}

	tiles := conflate.Partition([]*geomodel.Building{b}, []geomodel.ValidatedMatch{vm}, 15)
	if len(tiles) != 1 {
		t.Fatalf("expected 1 tile, got %d", len(tiles))
	}
	tile := tiles[0]
	if len(tile.Buildings) != 0 {
		t.Fatalf("lone-match building must travel with its match, got %d standalone", len(tile.Buildings))
	}
	if len(tile.Matches) != 1 || !tile.Matches[0].MergeIntoBuilding {
		t.Fatalf("expected a merged match, got %+v", tile.Matches)
	}
}

func TestPartitionMultiMatchKeepsBuildingSeparate(t *testing.T) {
	b := newBuilding("import/b", at(0, 0), 10)
	vms := []geomodel.ValidatedMatch{
		{Match: geomodel.Match{Address: newAddress("import/a1", at(-2, 0), "10", "Main Street"), Building: b, Strategy: geomodel.MatchContainment}},
		{Match: geomodel.Match{Address: newAddress("import/a2", at(2, 0), "12", "Main Street"), Building: b, Strategy: geomodel.MatchContainment}},
	}

	tiles := conflate.Partition([]*geomodel.Building{b}, vms, 15)
	var standalone, merged int
	for _, tile := range tiles {
		standalone += len(tile.Buildings)
		for _, vm := range tile.Matches {
			if vm.MergeIntoBuilding {
				merged++
			}
		}
	}
	if standalone != 1 {
		t.Fatalf("expected the building emitted once on its own, got %d", standalone)
	}
	if merged != 0 {
		t.Fatalf("multi-match building must not merge, got %d merged matches", merged)
	}
}
