// Package buildingtree indexes polygonal footprints for point-containment
// and bound-intersection queries. Bounds live in a quadtree; an exact
// containment test runs on the candidates it returns. Footprints whose rings
// fail validity checks are still indexed, with containment degraded to the
// bounding box, so that broken survey geometry is flagged downstream instead
// of silently vanishing.
package buildingtree

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/qtree"
)

type entry[D any] struct {
	Data       D
	Polygon    orb.MultiPolygon
	Bound      orb.Bound
	Degenerate bool
}

// Tree is a static polygon index. Build it fully before querying; it is not
// safe for concurrent mutation but any number of readers may query it once
// built.
type Tree[Data any] struct {
	entries []entry[Data]
	qt      qtree.QTree
}

func New[Data any]() *Tree[Data] {
	return &Tree[Data]{}
}

// Insert adds a footprint and reports whether it was degenerate (containment
// for it will use the bounding box).
func (t *Tree[Data]) Insert(data Data, p orb.MultiPolygon) (degenerate bool) {
	bound := p.Bound()
	degenerate = isDegenerate(p)

	t.entries = append(t.entries, entry[Data]{
		Data:       data,
		Polygon:    p,
		Bound:      bound,
		Degenerate: degenerate,
	})
	t.qt.Insert(bound.Min, bound.Max, uint64(len(t.entries)-1))
	return degenerate
}

// Containing visits every indexed footprint containing the point. The visit
// order follows quadtree traversal; callers needing determinism must collect
// and sort. Returning false stops the visit.
func (t *Tree[Data]) Containing(point orb.Point, fn func(data Data) bool) {
	t.qt.Search(point, point, func(_, _ [2]float64, raw interface{}) bool {
		e := t.entries[raw.(uint64)]
		if e.Degenerate {
			if e.Bound.Contains(point) {
				return fn(e.Data)
			}
			return true
		}
		if planar.MultiPolygonContains(e.Polygon, point) {
			return fn(e.Data)
		}
		return true
	})
}

// SearchBound visits every footprint whose bounding box intersects b.
func (t *Tree[Data]) SearchBound(b orb.Bound, fn func(data Data) bool) {
	t.qt.Search(b.Min, b.Max, func(_, _ [2]float64, raw interface{}) bool {
		return fn(t.entries[raw.(uint64)].Data)
	})
}

// Len returns the number of indexed footprints.
func (t *Tree[Data]) Len() int {
	return len(t.entries)
}

// isDegenerate applies cheap validity checks: every ring must be closed, have
// at least four points and enclose a non-zero area, and small rings must not
// self-intersect. Anything failing is indexed by bound only.
func isDegenerate(p orb.MultiPolygon) bool {
	if len(p) == 0 {
		return true
	}
	for _, poly := range p {
		if len(poly) == 0 {
			return true
		}
		for _, ring := range poly {
			if len(ring) < 4 {
				return true
			}
			if ring[0] != ring[len(ring)-1] {
				return true
			}
			if planar.Area(ring) == 0 {
				return true
			}
			if selfIntersects(ring) {
				return true
			}
		}
	}
	return false
}

// selfIntersectCheckLimit bounds the O(n^2) segment test; survey footprints
// are far below it, and anything larger is caught by the area check alone.
const selfIntersectCheckLimit = 128

func selfIntersects(r orb.Ring) bool {
	n := len(r) - 1
	if n > selfIntersectCheckLimit {
		return false
	}
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			// Adjacent segments share an endpoint, as do the first and last.
			if i == 0 && j == n-1 {
				continue
			}
			if segmentsCross(r[i], r[i+1], r[j], r[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(a, b, c, d orb.Point) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(a, b, p orb.Point) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}
