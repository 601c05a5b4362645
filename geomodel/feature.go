// Package geomodel defines the in-memory model shared by every stage of the
// conflation pipeline: input features (buildings, addresses, streets), the
// derived match/validation records, and the tiled changesets produced for
// review. Values are immutable once constructed; later stages attach derived
// records but never rewrite geometry or tags.
package geomodel

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"
)

// Origin records whether a feature came from the import dataset or from the
// reference dataset.
type Origin uint8

const (
	OriginNew Origin = iota
	OriginExisting
)

func (o Origin) String() string {
	if o == OriginExisting {
		return "existing"
	}
	return "new"
}

// Feature is the common part of every geographic entity in a run. Existing
// features carry the reference dataset's element identity, new features a
// locally generated ID.
type Feature struct {
	ID     string
	Origin Origin
	Tags   osm.Tags

	// Element and Version are set only for existing features and are needed
	// to emit modify operations against the reference dataset.
	Element osm.ElementID
	Version int
}

// ExistingFeature builds the Feature header for a reference-dataset element.
func ExistingFeature(el osm.ElementID, version int, tags osm.Tags) Feature {
	return Feature{
		ID:      fmt.Sprintf("%s/%d", el.Type(), el.Ref()),
		Origin:  OriginExisting,
		Tags:    tags,
		Element: el,
		Version: version,
	}
}

// NewFeature builds the Feature header for an imported entity with a locally
// generated identifier.
func NewFeature(id string, tags osm.Tags) Feature {
	return Feature{ID: id, Origin: OriginNew, Tags: tags}
}

// ElementRefs preserves a reference way's node refs or a reference
// relation's member list, needed to re-emit the element unchanged when only
// its tags are modified.
type ElementRefs struct {
	WayNodes []int64
	Members  osm.Members
}

// Building is a feature with a polygonal footprint.
type Building struct {
	Feature
	Geometry orb.MultiPolygon

	// Refs is set only for existing buildings.
	Refs ElementRefs

	// Degenerate marks a footprint whose rings failed validity checks;
	// containment tests degrade to the bounding box.
	Degenerate bool

	bound    orb.Bound
	area     float64
	centroid orb.Point
	derived  bool
}

// Bound returns the cached bounding box of the footprint.
func (b *Building) Bound() orb.Bound {
	b.derive()
	return b.bound
}

// Area returns the planar area of the footprint, always non-negative.
func (b *Building) Area() float64 {
	b.derive()
	return b.area
}

// RepresentativePoint returns the area-weighted centroid of the footprint.
func (b *Building) RepresentativePoint() orb.Point {
	b.derive()
	return b.centroid
}

func (b *Building) derive() {
	if b.derived {
		return
	}
	b.bound = b.Geometry.Bound()
	b.centroid, b.area = planar.CentroidArea(b.Geometry)
	b.area = math.Abs(b.area)
	if len(b.Geometry) == 0 {
		b.centroid = b.bound.Center()
	}
	b.derived = true
}

// Contains reports whether the point lies in the footprint. Degenerate
// footprints fall back to a bounding-box test.
func (b *Building) Contains(p orb.Point) bool {
	if b.Degenerate {
		return b.Bound().Contains(p)
	}
	return planar.MultiPolygonContains(b.Geometry, p)
}

// AddressTags returns just the addr:* tags of the building.
func (b *Building) AddressTags() osm.Tags {
	var out osm.Tags
	for _, t := range b.Tags {
		if len(t.Key) > 5 && t.Key[:5] == "addr:" {
			out = append(out, t)
		}
	}
	return out
}

// Address is a point feature with its normalized-comparable attributes
// extracted from the addr:* tags at construction time.
type Address struct {
	Feature
	Point orb.Point

	HouseNumber string
	Street      string
}

// MakeAddress extracts the house number and street from tags.
func MakeAddress(f Feature, p orb.Point) *Address {
	return &Address{
		Feature:     f,
		Point:       p,
		HouseNumber: f.Tags.Find("addr:housenumber"),
		Street:      f.Tags.Find("addr:street"),
	}
}

// Street is a named line feature from the reference dataset, used only for
// validating address street names.
type Street struct {
	Feature
	Geometry orb.LineString
	Name     string
}
