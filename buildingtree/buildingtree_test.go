package buildingtree_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/mapgrove/osmconflate/buildingtree"
)

func polygonFromBounds(minX, minY, maxX, maxY float64) orb.MultiPolygon {
	return orb.MultiPolygon{orb.Polygon{orb.Ring{
		orb.Point{minX, minY},
		orb.Point{maxX, minY},
		orb.Point{maxX, maxY},
		orb.Point{minX, maxY},
		orb.Point{minX, minY},
	}}}
}

func TestContaining(t *testing.T) {
	bt := buildingtree.New[string]()

	bt.Insert("1", polygonFromBounds(0, 0, 1, 1))
	bt.Insert("2", polygonFromBounds(-1, -1, 0, 0))

	var got []string
	bt.Containing(orb.Point{0.5, 0.5}, func(d string) bool {
		got = append(got, d)
		return true
	})
	if len(got) != 1 || got[0] != "1" {
		t.Fatalf("expected [1], got %v", got)
	}

	got = nil
	bt.Containing(orb.Point{-0.5, -0.5}, func(d string) bool {
		got = append(got, d)
		return true
	})
	if len(got) != 1 || got[0] != "2" {
		t.Fatalf("expected [2], got %v", got)
	}

	got = nil
	bt.Containing(orb.Point{5, 5}, func(d string) bool {
		got = append(got, d)
		return true
	})
	if len(got) != 0 {
		t.Fatalf("expected no hits, got %v", got)
	}
}

func TestOverlappingFootprints(t *testing.T) {
	bt := buildingtree.New[string]()

	bt.Insert("outer", polygonFromBounds(0, 0, 10, 10))
	bt.Insert("inner", polygonFromBounds(4, 4, 6, 6))

	var got []string
	bt.Containing(orb.Point{5, 5}, func(d string) bool {
		got = append(got, d)
		return true
	})
	if len(got) != 2 {
		t.Fatalf("expected both footprints, got %v", got)
	}
}

func TestSearchBound(t *testing.T) {
	bt := buildingtree.New[string]()
	bt.Insert("1", polygonFromBounds(0, 0, 1, 1))
	bt.Insert("2", polygonFromBounds(10, 10, 11, 11))

	var got []string
	bt.SearchBound(orb.Bound{Min: orb.Point{0.5, 0.5}, Max: orb.Point{2, 2}}, func(d string) bool {
		got = append(got, d)
		return true
	})
	if len(got) != 1 || got[0] != "1" {
		t.Fatalf("expected [1], got %v", got)
	}
}

func TestDegenerateFallsBackToBound(t *testing.T) {
	bt := buildingtree.New[string]()

	// zero-area sliver
	degenerate := orb.MultiPolygon{orb.Polygon{orb.Ring{
		orb.Point{0, 0},
		orb.Point{1, 0},
		orb.Point{0.5, 0},
		orb.Point{0, 0},
	}}}
	if !bt.Insert("sliver", degenerate) {
		t.Fatalf("expected degenerate geometry to be reported")
	}

	var got []string
	bt.Containing(orb.Point{0.5, 0}, func(d string) bool {
		got = append(got, d)
		return true
	})
	if len(got) != 1 {
		t.Fatalf("expected bound fallback to hit, got %v", got)
	}
}

func FuzzContaining(f *testing.F) {
	const testData = "1"

	f.Add(0.0, 0.0, 1.0, 1.0, 0.5, 0.5)
	f.Add(0.0, 0.0, 1.0, 1.0, 1.5, 1.5)

	f.Fuzz(func(t *testing.T, minX, minY, maxX, maxY, pointX, pointY float64) {
		polygon := polygonFromBounds(minX, minY, maxX, maxY)
		point := orb.Point{pointX, pointY}

		bt := buildingtree.New[string]()
		degenerate := bt.Insert(testData, polygon)

		expectOk := planar.MultiPolygonContains(polygon, point)
		if degenerate {
			expectOk = polygon.Bound().Contains(point)
		}

		hit := false
		bt.Containing(point, func(d string) bool {
			hit = d == testData
			return true
		})
		if expectOk != hit {
			t.Fatalf("expected %v, got %v", expectOk, hit)
		}
	})
}
