package overpass_test

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/mapgrove/osmconflate/geomodel"
	"github.com/mapgrove/osmconflate/overpass"
)

const addressesFixture = `{
  "elements": [
    {
      "type": "node", "id": 101, "version": 3, "lat": 0.0005, "lon": 10.0005,
      "tags": {"addr:housenumber": "10", "addr:street": "Main Street"}
    },
    {
      "type": "way", "id": 102, "version": 2,
      "nodes": [1, 2, 3, 4, 1],
      "geometry": [
        {"lat": 0.0, "lon": 10.0}, {"lat": 0.0, "lon": 10.001},
        {"lat": 0.001, "lon": 10.001}, {"lat": 0.001, "lon": 10.0},
        {"lat": 0.0, "lon": 10.0}
      ],
      "tags": {"building": "yes", "addr:housenumber": "12", "addr:street": "Main Street"}
    },
    {
      "type": "node", "id": 103, "version": 1, "lat": 0.002, "lon": 10.002,
      "tags": {"amenity": "bench"}
    }
  ]
}`

func TestParseAddresses(t *testing.T) {
	addrs, err := overpass.ParseAddresses([]byte(addressesFixture))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(addrs))
	}

	a := addrs[0]
	if a.ID != "node/101" {
		t.Fatalf("expected node/101, got %s", a.ID)
	}
	if a.Origin != geomodel.OriginExisting || a.Version != 3 {
		t.Fatalf("identity wrong: %+v", a.Feature)
	}
	if a.HouseNumber != "10" || a.Street != "Main Street" {
		t.Fatalf("addr fields wrong: %+v", a)
	}
	if a.Point != (orb.Point{10.0005, 0.0005}) {
		t.Fatalf("wrong point: %v", a.Point)
	}

	// the addressed way is carried as its centroid
	w := addrs[1]
	if w.ID != "way/102" {
		t.Fatalf("expected way/102, got %s", w.ID)
	}
	c := w.Point
	if c[0] < 10.0004 || c[0] > 10.0006 || c[1] < 0.0004 || c[1] > 0.0006 {
		t.Fatalf("centroid out of range: %v", c)
	}
}

const buildingsFixture = `{
  "elements": [
    {
      "type": "way", "id": 201, "version": 5,
      "nodes": [1, 2, 3, 4, 1],
      "geometry": [
        {"lat": 0.0, "lon": 10.0}, {"lat": 0.0, "lon": 10.001},
        {"lat": 0.001, "lon": 10.001}, {"lat": 0.001, "lon": 10.0},
        {"lat": 0.0, "lon": 10.0}
      ],
      "tags": {"building": "yes"}
    },
    {
      "type": "relation", "id": 202, "version": 1,
      "members": [
        {"type": "way", "ref": 301, "role": "outer", "geometry": [
          {"lat": 0.01, "lon": 10.01}, {"lat": 0.01, "lon": 10.02},
          {"lat": 0.02, "lon": 10.02}, {"lat": 0.02, "lon": 10.01},
          {"lat": 0.01, "lon": 10.01}
        ]},
        {"type": "way", "ref": 302, "role": "inner", "geometry": [
          {"lat": 0.013, "lon": 10.013}, {"lat": 0.013, "lon": 10.017},
          {"lat": 0.017, "lon": 10.017}, {"lat": 0.017, "lon": 10.013},
          {"lat": 0.013, "lon": 10.013}
        ]}
      ],
      "tags": {"building": "yes", "type": "multipolygon"}
    }
  ]
}`

func TestParseBuildings(t *testing.T) {
	blds, err := overpass.ParseBuildings([]byte(buildingsFixture))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(blds) != 2 {
		t.Fatalf("expected 2 buildings, got %d", len(blds))
	}

	way := blds[0]
	if way.ID != "way/201" || way.Version != 5 {
		t.Fatalf("identity wrong: %+v", way.Feature)
	}
	if len(way.Geometry) != 1 || len(way.Geometry[0]) != 1 {
		t.Fatalf("expected a single-ring polygon, got %v", way.Geometry)
	}
	if len(way.Refs.WayNodes) != 5 {
		t.Fatalf("node refs must be preserved, got %v", way.Refs.WayNodes)
	}
	if !way.Contains(orb.Point{10.0005, 0.0005}) {
		t.Fatalf("footprint containment broken")
	}

	rel := blds[1]
	if rel.ID != "relation/202" {
		t.Fatalf("expected relation/202, got %s", rel.ID)
	}
	if len(rel.Geometry) != 1 || len(rel.Geometry[0]) != 2 {
		t.Fatalf("expected outer with one hole, got %v", rel.Geometry)
	}
	if len(rel.Refs.Members) != 2 {
		t.Fatalf("members must be preserved, got %v", rel.Refs.Members)
	}
	if rel.Contains(orb.Point{10.015, 0.015}) {
		t.Fatalf("point in the hole must not be contained")
	}
	if !rel.Contains(orb.Point{10.011, 0.011}) {
		t.Fatalf("point between outer and hole must be contained")
	}
}

const streetsFixture = `{
  "elements": [
    {
      "type": "way", "id": 401, "version": 2,
      "geometry": [{"lat": 0.0, "lon": 10.0}, {"lat": 0.0, "lon": 10.01}],
      "tags": {"highway": "residential", "name": "Main Street"}
    },
    {
      "type": "way", "id": 402, "version": 1,
      "geometry": [{"lat": 0.0, "lon": 10.0}, {"lat": 0.001, "lon": 10.0}],
      "tags": {"highway": "service"}
    }
  ]
}`

func TestParseStreets(t *testing.T) {
	streets, err := overpass.ParseStreets([]byte(streetsFixture))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(streets) != 1 {
		t.Fatalf("unnamed ways must be skipped, got %d streets", len(streets))
	}
	s := streets[0]
	if s.ID != "way/401" || s.Name != "Main Street" {
		t.Fatalf("wrong street: %+v", s)
	}
	if len(s.Geometry) != 2 {
		t.Fatalf("expected 2 vertices, got %d", len(s.Geometry))
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := overpass.ParseAddresses([]byte("not json")); err == nil {
		t.Fatalf("expected a decode error")
	}
}

func TestConvexHull(t *testing.T) {
	pts := []orb.Point{
		{0, 0}, {2, 0}, {2, 2}, {0, 2},
		{1, 1}, {0.5, 0.3}, // interior
	}
	hull := overpass.ConvexHull(pts)
	if len(hull) != 4 {
		t.Fatalf("expected the 4 corners, got %v", hull)
	}
	for _, p := range hull {
		if p == (orb.Point{1, 1}) || p == (orb.Point{0.5, 0.3}) {
			t.Fatalf("interior point on hull: %v", hull)
		}
	}
}
