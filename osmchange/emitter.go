// Package osmchange renders changesets as JOSM-loadable osmChange XML files,
// one file per (tile, bucket), optionally zstd-compressed.
package osmchange

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/mapgrove/osmconflate/geomodel"
)

// Options controls the emitted files.
type Options struct {
	// Generator is written to the osmChange header.
	Generator string

	// ExtraTags are appended to every created or modified element, typically
	// a source tag for the import.
	ExtraTags osm.Tags

	// Compress emits .osc.zst instead of plain .osc.
	Compress bool
}

// builder accumulates the elements of one osmChange document. Placeholder
// IDs are negative and decrement per element type; untagged geometry nodes
// are shared between footprints that touch at the same coordinate.
type builder struct {
	opts   Options
	nextID map[osm.Type]int64
	shared map[[2]int64]osm.NodeID
	create osm.OSM
	modify osm.OSM
}

func newBuilder(opts Options) *builder {
	return &builder{
		opts:   opts,
		nextID: map[osm.Type]int64{osm.TypeNode: 0, osm.TypeWay: 0, osm.TypeRelation: 0},
		shared: map[[2]int64]osm.NodeID{},
	}
}

func (b *builder) placeholder(t osm.Type) int64 {
	b.nextID[t]--
	return b.nextID[t]
}

// coordKey rounds to 1e-7 degrees, the resolution reference data stores.
func coordKey(p orb.Point) [2]int64 {
	return [2]int64{int64(math.Round(p[0] * 1e7)), int64(math.Round(p[1] * 1e7))}
}

func (b *builder) geometryNode(p orb.Point) osm.NodeID {
	key := coordKey(p)
	if id, ok := b.shared[key]; ok {
		return id
	}
	id := osm.NodeID(b.placeholder(osm.TypeNode))
	b.shared[key] = id
	b.create.Nodes = append(b.create.Nodes, &osm.Node{ID: id, Lon: p[0], Lat: p[1]})
	return id
}

func (b *builder) createAddressNode(a *geomodel.Address) {
	b.create.Nodes = append(b.create.Nodes, &osm.Node{
		ID:   osm.NodeID(b.placeholder(osm.TypeNode)),
		Lon:  a.Point[0],
		Lat:  a.Point[1],
		Tags: mergeTags(a.Tags, b.opts.ExtraTags),
	})
}

func (b *builder) ringWay(r orb.Ring, tags osm.Tags) *osm.Way {
	way := &osm.Way{
		ID:   osm.WayID(b.placeholder(osm.TypeWay)),
		Tags: tags,
	}
	closed := len(r) > 1 && r[0] == r[len(r)-1]
	points := r
	if closed {
		points = r[:len(r)-1]
	}
	for _, p := range points {
		way.Nodes = append(way.Nodes, osm.WayNode{ID: b.geometryNode(p)})
	}
	if len(way.Nodes) > 0 {
		way.Nodes = append(way.Nodes, way.Nodes[0])
	}
	b.create.Ways = append(b.create.Ways, way)
	return way
}

func (b *builder) createBuilding(bld *geomodel.Building, addr *geomodel.Address) {
	tags := bld.Tags
	if addr != nil {
		tags = mergeTags(tags, addr.Tags)
	}
	tags = mergeTags(tags, b.opts.ExtraTags)

	// A single plain ring becomes a closed way; anything with holes or
	// multiple outers needs a multipolygon relation.
	if len(bld.Geometry) == 1 && len(bld.Geometry[0]) == 1 {
		b.ringWay(bld.Geometry[0][0], tags)
		return
	}

	rel := &osm.Relation{
		ID:   osm.RelationID(b.placeholder(osm.TypeRelation)),
		Tags: mergeTags(osm.Tags{{Key: "type", Value: "multipolygon"}}, tags),
	}
	for _, poly := range bld.Geometry {
		for i, ring := range poly {
			role := "outer"
			if i > 0 {
				role = "inner"
			}
			way := b.ringWay(ring, nil)
			rel.Members = append(rel.Members, osm.Member{
				Type: osm.TypeWay,
				Ref:  int64(way.ID),
				Role: role,
			})
		}
	}
	b.create.Relations = append(b.create.Relations, rel)
}

func (b *builder) modifyBuilding(bld *geomodel.Building, addr *geomodel.Address) error {
	tags := mergeTags(mergeTags(bld.Tags, addr.Tags), b.opts.ExtraTags)

	switch bld.Element.Type() {
	case osm.TypeWay:
		way := &osm.Way{
			ID:      osm.WayID(bld.Element.Ref()),
			Version: bld.Version,
			Tags:    tags,
		}
		for _, ref := range bld.Refs.WayNodes {
			way.Nodes = append(way.Nodes, osm.WayNode{ID: osm.NodeID(ref)})
		}
		b.modify.Ways = append(b.modify.Ways, way)
	case osm.TypeRelation:
		b.modify.Relations = append(b.modify.Relations, &osm.Relation{
			ID:      osm.RelationID(bld.Element.Ref()),
			Version: bld.Version,
			Members: bld.Refs.Members,
			Tags:    tags,
		})
	default:
		return fmt.Errorf("cannot modify %s as a building", bld.ID)
	}
	return nil
}

// mergeTags overlays extra onto base: extra wins on key collision, output
// is key-sorted.
func mergeTags(base, extra osm.Tags) osm.Tags {
	m := make(map[string]string, len(base)+len(extra))
	for _, t := range base {
		m[t.Key] = t.Value
	}
	for _, t := range extra {
		m[t.Key] = t.Value
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(osm.Tags, 0, len(keys))
	for _, k := range keys {
		out = append(out, osm.Tag{Key: k, Value: m[k]})
	}
	return out
}

// Write renders one changeset as osmChange XML.
func Write(w io.Writer, cs geomodel.Changeset, opts Options) error {
	b := newBuilder(opts)
	for _, op := range cs.Ops {
		switch {
		case op.Kind == geomodel.OpModify:
			if err := b.modifyBuilding(op.Building, op.Address); err != nil {
				return err
			}
		case op.Building != nil:
			b.createBuilding(op.Building, op.Address)
		default:
			b.createAddressNode(op.Address)
		}
	}

	change := osm.Change{
		Version:   "0.6",
		Generator: opts.Generator,
	}
	if len(b.create.Nodes)+len(b.create.Ways)+len(b.create.Relations) > 0 {
		change.Create = &b.create
	}
	if len(b.modify.Nodes)+len(b.modify.Ways)+len(b.modify.Relations) > 0 {
		change.Modify = &b.modify
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(change); err != nil {
		return fmt.Errorf("encoding osmChange: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// FileName returns the output name for a changeset: <z>_<x>_<y>.osc under
// the bucket directory, with .zst appended when compressing.
func FileName(cs geomodel.Changeset, compress bool) string {
	name := fmt.Sprintf("%d_%d_%d.osc", cs.Tile.Z, cs.Tile.X, cs.Tile.Y)
	if compress {
		name += ".zst"
	}
	return filepath.Join(cs.Bucket.String(), name)
}

// WriteAll writes every changeset under dir, grouped in passed/ and failed/
// subdirectories. It returns the written paths.
func WriteAll(dir string, changesets []geomodel.Changeset, opts Options) ([]string, error) {
	var written []string
	for _, cs := range changesets {
		path := filepath.Join(dir, FileName(cs, opts.Compress))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return written, fmt.Errorf("creating output dir: %w", err)
		}
		if err := writeFile(path, cs, opts); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, cs geomodel.Changeset, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	var w io.Writer = f
	var zw *zstd.Encoder
	if strings.HasSuffix(path, ".zst") {
		zw, err = zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("zstd writer: %w", err)
		}
		w = zw
	}

	if err := Write(w, cs, opts); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			f.Close()
			return fmt.Errorf("closing zstd stream: %w", err)
		}
	}
	return f.Close()
}
