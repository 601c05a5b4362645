package conflate

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/mapgrove/osmconflate/buildingtree"
	"github.com/mapgrove/osmconflate/geomodel"
	"github.com/mapgrove/osmconflate/kdbush"
)

// ReferenceData is the fully materialized reference dataset. The pipeline
// cannot run against a partial or absent reference set; retrieval failures
// must surface before this point.
type ReferenceData struct {
	Buildings []*geomodel.Building
	Addresses []*geomodel.Address
	Streets   []*geomodel.Street
}

// Empty reports whether the reference set carries no features at all.
func (r ReferenceData) Empty() bool {
	return len(r.Buildings) == 0 && len(r.Addresses) == 0 && len(r.Streets) == 0
}

// ImportData is the newly surveyed dataset, already tag-mapped.
type ImportData struct {
	Buildings []*geomodel.Building
	Addresses []*geomodel.Address
}

type streetRef struct {
	Street *geomodel.Street
	Norm   string
}

// Index holds the read-only spatial structures every stage queries. The
// reference side is built first; the surviving imported buildings are added
// by WithNovelBuildings after deduplication, returning a new snapshot so the
// matcher never sees a pruned duplicate.
type Index struct {
	existingBuildings *buildingtree.Tree[*geomodel.Building]
	existingCentroids *kdbush.KDBush[*geomodel.Building]
	existingAddresses *kdbush.KDBush[*geomodel.Address]
	streets           *kdbush.KDBush[streetRef]

	novelBuildings *buildingtree.Tree[*geomodel.Building]
	novelCentroids *kdbush.KDBush[*geomodel.Building]

	// Anomalies collects degenerate-geometry flags raised while indexing.
	Anomalies []geomodel.ProvenanceEntry
}

const bushNodeSize = 64

// BuildIndex indexes the reference dataset. Buildings with degenerate rings
// are kept with bound-only containment and flagged.
func BuildIndex(ref ReferenceData, cfg Config) *Index {
	idx := &Index{
		existingBuildings: buildingtree.New[*geomodel.Building](),
	}

	centroids := make([]kdbush.Point[*geomodel.Building], 0, len(ref.Buildings))
	for _, b := range ref.Buildings {
		idx.insertBuilding(idx.existingBuildings, b)
		c := b.RepresentativePoint()
		centroids = append(centroids, kdbush.Point[*geomodel.Building]{X: c[0], Y: c[1], Data: b})
	}
	idx.existingCentroids = kdbush.NewBush(centroids, bushNodeSize)

	addrs := make([]kdbush.Point[*geomodel.Address], 0, len(ref.Addresses))
	for _, a := range ref.Addresses {
		addrs = append(addrs, kdbush.Point[*geomodel.Address]{X: a.Point[0], Y: a.Point[1], Data: a})
	}
	idx.existingAddresses = kdbush.NewBush(addrs, bushNodeSize)

	// Street lines become sample points spaced at half the street search
	// radius, so no radius query can slip between two samples.
	spacing := cfg.StreetSearchRadius / 2
	if spacing <= 0 {
		spacing = 50
	}
	var streetPts []kdbush.Point[streetRef]
	for _, s := range ref.Streets {
		sr := streetRef{Street: s, Norm: cfg.StreetNormalizer(s.Name)}
		for _, p := range sampleLine(s.Geometry, spacing) {
			streetPts = append(streetPts, kdbush.Point[streetRef]{X: p[0], Y: p[1], Data: sr})
		}
	}
	idx.streets = kdbush.NewBush(streetPts, bushNodeSize)

	return idx
}

// WithNovelBuildings returns a new snapshot extended with the imported
// buildings that survived deduplication. The receiver is not mutated.
func (idx *Index) WithNovelBuildings(buildings []*geomodel.Building) *Index {
	next := *idx
	next.novelBuildings = buildingtree.New[*geomodel.Building]()

	centroids := make([]kdbush.Point[*geomodel.Building], 0, len(buildings))
	for _, b := range buildings {
		next.insertBuilding(next.novelBuildings, b)
		c := b.RepresentativePoint()
		centroids = append(centroids, kdbush.Point[*geomodel.Building]{X: c[0], Y: c[1], Data: b})
	}
	next.novelCentroids = kdbush.NewBush(centroids, bushNodeSize)
	return &next
}

func (idx *Index) insertBuilding(tree *buildingtree.Tree[*geomodel.Building], b *geomodel.Building) {
	// Derive the cached bound/area/centroid now, while indexing is still
	// single-threaded; the parallel stages then only read.
	b.Bound()
	b.Area()

	if tree.Insert(b, b.Geometry) {
		b.Degenerate = true
		idx.Anomalies = append(idx.Anomalies, geomodel.ProvenanceAt(
			b.ID, geomodel.ProvDegenerateGeometry,
			"footprint failed ring validity checks, containment degraded to bounding box",
			b.RepresentativePoint(),
		))
	}
}

// containing returns every building (reference and surviving imported) whose
// footprint contains the point, sorted by (area, ID) for determinism.
func (idx *Index) containing(p orb.Point) []*geomodel.Building {
	var out []*geomodel.Building
	collect := func(b *geomodel.Building) bool {
		out = append(out, b)
		return true
	}
	idx.existingBuildings.Containing(p, collect)
	if idx.novelBuildings != nil {
		idx.novelBuildings.Containing(p, collect)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Area() != out[j].Area() {
			return out[i].Area() < out[j].Area()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// nearestBuilding returns the building with the closest centroid within
// radius meters of p, breaking distance ties by ID.
func (idx *Index) nearestBuilding(p orb.Point, radius float64) (*geomodel.Building, float64, bool) {
	var (
		best     *geomodel.Building
		bestDist = math.Inf(1)
	)
	visit := func(kp kdbush.Point[*geomodel.Building]) bool {
		d := geo.Distance(p, orb.Point{kp.X, kp.Y})
		if d > radius {
			return true
		}
		if d < bestDist || (d == bestDist && best != nil && kp.Data.ID < best.ID) {
			best = kp.Data
			bestDist = d
		}
		return true
	}

	r := degreeRadius(radius, p)
	idx.existingCentroids.Within(p[0], p[1], r, visit)
	if idx.novelCentroids != nil {
		idx.novelCentroids.Within(p[0], p[1], r, visit)
	}
	return best, bestDist, best != nil
}

// streetsNear visits the street references with a sample point within radius
// meters of p. Each street is visited at most once.
func (idx *Index) streetsNear(p orb.Point, radius float64) []streetRef {
	seen := map[string]struct{}{}
	var out []streetRef
	idx.streets.Within(p[0], p[1], degreeRadius(radius, p), func(kp kdbush.Point[streetRef]) bool {
		if geo.Distance(p, orb.Point{kp.X, kp.Y}) > radius {
			return true
		}
		if _, ok := seen[kp.Data.Street.ID]; !ok {
			seen[kp.Data.Street.ID] = struct{}{}
			out = append(out, kp.Data)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Street.ID < out[j].Street.ID })
	return out
}

const metersPerDegree = 111320.0

// degreeRadius over-approximates a meter radius in coordinate degrees at the
// given latitude; exact distances are re-checked with geo.Distance.
func degreeRadius(meters float64, at orb.Point) float64 {
	lat := at[1] * math.Pi / 180
	scale := math.Cos(lat)
	if scale < 0.01 {
		scale = 0.01
	}
	return meters / (metersPerDegree * scale)
}

// sampleLine returns the line vertices plus interpolated points so that no
// two consecutive samples are farther apart than spacing meters.
func sampleLine(ls orb.LineString, spacing float64) []orb.Point {
	if len(ls) == 0 {
		return nil
	}
	out := []orb.Point{ls[0]}
	for i := 1; i < len(ls); i++ {
		a, b := ls[i-1], ls[i]
		d := geo.Distance(a, b)
		if d > spacing {
			steps := int(math.Ceil(d / spacing))
			for s := 1; s < steps; s++ {
				f := float64(s) / float64(steps)
				out = append(out, orb.Point{
					a[0] + (b[0]-a[0])*f,
					a[1] + (b[1]-a[1])*f,
				})
			}
		}
		out = append(out, b)
	}
	return out
}
