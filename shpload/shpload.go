// Package shpload reads the imported survey data from ESRI shapefiles and
// translates records into model features via a tag mapping.
package shpload

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/mapgrove/osmconflate/geomodel"
	"github.com/mapgrove/osmconflate/tagmap"
)

// record is one shapefile row with its attributes already read out.
type record struct {
	index int
	shape shp.Shape
	props map[string]string
}

func forEachRecord(path string, progress bool, fn func(record) error) error {
	reader, err := shp.Open(path)
	if err != nil {
		return fmt.Errorf("opening shapefile %s: %w", path, err)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var bar *pb.ProgressBar
	if progress {
		bar = pb.New(0).Start()
		defer bar.Finish()
	}

	index := 0
	for reader.Next() {
		_, shape := reader.Shape()
		props := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if val != "" {
				props[name] = val
			}
		}
		if err := fn(record{index: index, shape: shape, props: props}); err != nil {
			return err
		}
		index++
		if bar != nil {
			bar.Increment()
		}
	}
	return reader.Err()
}

// featureID derives a stable identifier from the file name and record
// position, so re-running the import yields identical IDs.
func featureID(path string, index int) string {
	seed := fmt.Sprintf("%s#%d", filepath.Base(path), index)
	return "import/" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}

// LoadAddresses reads point records as imported addresses. Records without
// a point shape are skipped.
func LoadAddresses(path string, tm *tagmap.Set, progress bool) ([]*geomodel.Address, error) {
	var out []*geomodel.Address
	err := forEachRecord(path, progress, func(rec record) error {
		var p orb.Point
		switch s := rec.shape.(type) {
		case *shp.Point:
			p = orb.Point{s.X, s.Y}
		case *shp.PointZ:
			p = orb.Point{s.X, s.Y}
		default:
			return nil
		}
		tags := tm.Apply(rec.props)
		f := geomodel.NewFeature(featureID(path, rec.index), tags)
		out = append(out, geomodel.MakeAddress(f, p))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadBuildings reads polygon records as imported building footprints.
func LoadBuildings(path string, tm *tagmap.Set, progress bool) ([]*geomodel.Building, error) {
	var out []*geomodel.Building
	err := forEachRecord(path, progress, func(rec record) error {
		poly, ok := rec.shape.(*shp.Polygon)
		if !ok {
			return nil
		}
		geom := assemble(poly)
		if len(geom) == 0 {
			return nil
		}
		tags := tm.Apply(rec.props)
		f := geomodel.NewFeature(featureID(path, rec.index), tags)
		out = append(out, &geomodel.Building{Feature: f, Geometry: geom})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// assemble splits the shapefile part list into polygons. ESRI winds outer
// rings clockwise and holes counter-clockwise; the signed area tells them
// apart. A hole with no preceding outer is promoted to an outer ring.
func assemble(poly *shp.Polygon) orb.MultiPolygon {
	var mp orb.MultiPolygon
	for i := 0; i < int(poly.NumParts); i++ {
		start := int(poly.Parts[i])
		end := len(poly.Points)
		if i+1 < int(poly.NumParts) {
			end = int(poly.Parts[i+1])
		}

		ring := make(orb.Ring, 0, end-start+1)
		for _, pt := range poly.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		if len(ring) < 4 {
			continue
		}

		_, signed := planar.CentroidArea(ring)
		if signed < 0 || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
		} else {
			mp[len(mp)-1] = append(mp[len(mp)-1], ring)
		}
	}
	return mp
}
