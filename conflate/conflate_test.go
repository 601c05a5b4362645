package conflate_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/mapgrove/osmconflate/conflate"
	"github.com/mapgrove/osmconflate/geomodel"
)

// one meter in degrees near the equator, where the test area sits
const mdeg = 1.0 / 111320

// at offsets the test area origin by meters.
func at(dxMeters, dyMeters float64) orb.Point {
	return orb.Point{10 + dxMeters*mdeg, dyMeters * mdeg}
}

func square(center orb.Point, halfMeters float64) orb.MultiPolygon {
	h := halfMeters * mdeg
	return orb.MultiPolygon{orb.Polygon{orb.Ring{
		orb.Point{center[0] - h, center[1] - h},
		orb.Point{center[0] + h, center[1] - h},
		orb.Point{center[0] + h, center[1] + h},
		orb.Point{center[0] - h, center[1] + h},
		orb.Point{center[0] - h, center[1] - h},
	}}}
}

func addrTags(housenumber, street string) osm.Tags {
	var tags osm.Tags
	if housenumber != "" {
		tags = append(tags, osm.Tag{Key: "addr:housenumber", Value: housenumber})
	}
	if street != "" {
		tags = append(tags, osm.Tag{Key: "addr:street", Value: street})
	}
	return tags
}

func newBuilding(id string, center orb.Point, halfMeters float64, tags ...osm.Tag) *geomodel.Building {
	return &geomodel.Building{
		Feature:  geomodel.NewFeature(id, append(osm.Tags{{Key: "building", Value: "yes"}}, tags...)),
		Geometry: square(center, halfMeters),
	}
}

func existingBuilding(wayID int64, center orb.Point, halfMeters float64, tags ...osm.Tag) *geomodel.Building {
	return &geomodel.Building{
		Feature: geomodel.ExistingFeature(osm.WayID(wayID).ElementID(1), 1,
			append(osm.Tags{{Key: "building", Value: "yes"}}, tags...)),
		Geometry: square(center, halfMeters),
	}
}

func newAddress(id string, p orb.Point, housenumber, street string) *geomodel.Address {
	return geomodel.MakeAddress(geomodel.NewFeature(id, addrTags(housenumber, street)), p)
}

func existingAddress(nodeID int64, p orb.Point, housenumber, street string) *geomodel.Address {
	return geomodel.MakeAddress(
		geomodel.ExistingFeature(osm.NodeID(nodeID).ElementID(1), 1, addrTags(housenumber, street)), p)
}

func refStreet(wayID int64, name string, pts ...orb.Point) *geomodel.Street {
	return &geomodel.Street{
		Feature:  geomodel.ExistingFeature(osm.WayID(wayID).ElementID(1), 1, osm.Tags{{Key: "name", Value: name}, {Key: "highway", Value: "residential"}}),
		Geometry: orb.LineString(pts),
		Name:     name,
	}
}

func testConfig(t *testing.T) conflate.Config {
	t.Helper()
	cfg := conflate.ConfigDefault()
	cfg.Threads = 2
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}
