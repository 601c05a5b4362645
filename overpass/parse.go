package overpass

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"

	"github.com/mapgrove/osmconflate/geomodel"
)

type latlon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (ll latlon) point() orb.Point { return orb.Point{ll.Lon, ll.Lat} }

type member struct {
	Type     string   `json:"type"`
	Ref      int64    `json:"ref"`
	Role     string   `json:"role"`
	Geometry []latlon `json:"geometry"`
}

type element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Version  int               `json:"version"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Tags     map[string]string `json:"tags"`
	Nodes    []int64           `json:"nodes"`
	Geometry []latlon          `json:"geometry"`
	Members  []member          `json:"members"`
}

type response struct {
	Elements []element `json:"elements"`
}

func decode(body []byte) ([]element, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decoding overpass response: %w", err)
	}
	return r.Elements, nil
}

func (e element) elementID() (osm.ElementID, error) {
	switch e.Type {
	case "node":
		return osm.NodeID(e.ID).ElementID(e.Version), nil
	case "way":
		return osm.WayID(e.ID).ElementID(e.Version), nil
	case "relation":
		return osm.RelationID(e.ID).ElementID(e.Version), nil
	}
	return 0, fmt.Errorf("unknown element type %q", e.Type)
}

// tags converts the JSON tag map into a key-sorted osm.Tags.
func (e element) tags() osm.Tags {
	keys := make([]string, 0, len(e.Tags))
	for k := range e.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(osm.Tags, 0, len(keys))
	for _, k := range keys {
		out = append(out, osm.Tag{Key: k, Value: e.Tags[k]})
	}
	return out
}

func (e element) feature() (geomodel.Feature, error) {
	id, err := e.elementID()
	if err != nil {
		return geomodel.Feature{}, err
	}
	return geomodel.ExistingFeature(id, e.Version, e.tags()), nil
}

func ring(geom []latlon) orb.Ring {
	r := make(orb.Ring, 0, len(geom)+1)
	for _, ll := range geom {
		r = append(r, ll.point())
	}
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// ParseAddresses extracts addressed elements. Area elements are carried as
// their footprint centroid.
func ParseAddresses(body []byte) ([]*geomodel.Address, error) {
	elements, err := decode(body)
	if err != nil {
		return nil, err
	}
	var out []*geomodel.Address
	for _, e := range elements {
		if e.Tags["addr:housenumber"] == "" {
			continue
		}
		f, err := e.feature()
		if err != nil {
			return nil, err
		}
		var p orb.Point
		switch {
		case e.Type == "node":
			p = orb.Point{e.Lon, e.Lat}
		case len(e.Geometry) > 0:
			c, _ := planar.CentroidArea(ring(e.Geometry))
			p = c
		default:
			continue
		}
		out = append(out, geomodel.MakeAddress(f, p))
	}
	return out, nil
}

// ParseBuildings extracts building footprints. Multipolygon relations are
// reassembled from their member rings; an inner ring attaches to the first
// outer whose bound contains it.
func ParseBuildings(body []byte) ([]*geomodel.Building, error) {
	elements, err := decode(body)
	if err != nil {
		return nil, err
	}
	var out []*geomodel.Building
	for _, e := range elements {
		f, err := e.feature()
		if err != nil {
			return nil, err
		}
		var (
			geom orb.MultiPolygon
			refs geomodel.ElementRefs
		)
		switch e.Type {
		case "way":
			r := ring(e.Geometry)
			if len(r) < 4 {
				continue
			}
			geom = orb.MultiPolygon{{r}}
			refs.WayNodes = e.Nodes
		case "relation":
			geom = assembleMultiPolygon(e.Members)
			if len(geom) == 0 {
				continue
			}
			for _, m := range e.Members {
				refs.Members = append(refs.Members, osm.Member{
					Type: osm.Type(m.Type),
					Ref:  m.Ref,
					Role: m.Role,
				})
			}
		default:
			continue
		}
		out = append(out, &geomodel.Building{Feature: f, Geometry: geom, Refs: refs})
	}
	return out, nil
}

func assembleMultiPolygon(members []member) orb.MultiPolygon {
	var mp orb.MultiPolygon
	for _, m := range members {
		if m.Type != "way" || m.Role == "inner" {
			continue
		}
		r := ring(m.Geometry)
		if len(r) >= 4 {
			mp = append(mp, orb.Polygon{r})
		}
	}
	for _, m := range members {
		if m.Type != "way" || m.Role != "inner" {
			continue
		}
		r := ring(m.Geometry)
		if len(r) < 4 {
			continue
		}
		for i := range mp {
			if mp[i][0].Bound().Contains(r[0]) {
				mp[i] = append(mp[i], r)
				break
			}
		}
	}
	return mp
}

// ParseStreets extracts named ways for street-name validation.
func ParseStreets(body []byte) ([]*geomodel.Street, error) {
	elements, err := decode(body)
	if err != nil {
		return nil, err
	}
	var out []*geomodel.Street
	for _, e := range elements {
		if e.Type != "way" || e.Tags["name"] == "" || len(e.Geometry) < 2 {
			continue
		}
		f, err := e.feature()
		if err != nil {
			return nil, err
		}
		ls := make(orb.LineString, 0, len(e.Geometry))
		for _, ll := range e.Geometry {
			ls = append(ls, ll.point())
		}
		out = append(out, &geomodel.Street{Feature: f, Geometry: ls, Name: e.Tags["name"]})
	}
	return out, nil
}
