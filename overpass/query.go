package overpass

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
)

// PolyFilter renders the Overpass (poly:"lat lon ...") area filter for a
// closed ring of points.
func PolyFilter(ring []orb.Point) string {
	var sb strings.Builder
	for i, p := range ring {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%.7f %.7f", p[1], p[0])
	}
	return fmt.Sprintf("(poly:%q)", sb.String())
}

// ConvexHull returns the convex hull of the points in counter-clockwise
// order, used to bound the reference queries to the import area.
func ConvexHull(points []orb.Point) []orb.Point {
	if len(points) < 3 {
		out := make([]orb.Point, len(points))
		copy(out, points)
		return out
	}
	pts := make([]orb.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	var hull []orb.Point
	for _, p := range pts { // lower
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- { // upper
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

const queryHeader = "[out:json][timeout:300];"

// AddressQuery selects every element carrying a house number in the area.
func AddressQuery(poly string) string {
	return queryHeader + fmt.Sprintf(`
(
  node["addr:housenumber"]%[1]s;
  way["addr:housenumber"]%[1]s;
);
out meta geom;`, poly)
}

// BuildingQuery selects building footprints, including multipolygons.
func BuildingQuery(poly string) string {
	return queryHeader + fmt.Sprintf(`
(
  way["building"]%[1]s;
  relation["building"]["type"="multipolygon"]%[1]s;
);
out meta geom;`, poly)
}

// StreetQuery selects named highways for street-name validation.
func StreetQuery(poly string) string {
	return queryHeader + fmt.Sprintf(`
way["highway"]["name"]%s;
out meta geom;`, poly)
}
