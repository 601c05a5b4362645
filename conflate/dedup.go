package conflate

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"
	"github.com/sourcegraph/conc/pool"

	"github.com/mapgrove/osmconflate/geomodel"
	"github.com/mapgrove/osmconflate/kdbush"
)

// DedupResult holds the imported features that survived deduplication plus
// one provenance entry per dropped feature.
type DedupResult struct {
	Buildings []*geomodel.Building
	Addresses []*geomodel.Address
	Dropped   []geomodel.ProvenanceEntry
}

// Dedup prunes imported features that duplicate the reference dataset.
// An address is a duplicate of an existing address within the configured
// radius when every duplicate tag key compares equal after normalization.
// A building is a duplicate when its footprint overlap with an existing
// building reaches the configured fraction of the smaller footprint.
//
// Input order is preserved among survivors; the result is independent of
// the worker count.
func Dedup(imp ImportData, idx *Index, cfg Config) DedupResult {
	addrVerdicts := make([]*geomodel.ProvenanceEntry, len(imp.Addresses))
	bldVerdicts := make([]*geomodel.ProvenanceEntry, len(imp.Buildings))

	p := pool.New().WithMaxGoroutines(cfg.Threads)
	for i, a := range imp.Addresses {
		p.Go(func() {
			addrVerdicts[i] = duplicateAddress(a, idx, cfg)
		})
	}
	for i, b := range imp.Buildings {
		p.Go(func() {
			bldVerdicts[i] = duplicateBuilding(b, idx, cfg)
		})
	}
	p.Wait()

	var res DedupResult
	for i, a := range imp.Addresses {
		if e := addrVerdicts[i]; e != nil {
			res.Dropped = append(res.Dropped, *e)
			continue
		}
		res.Addresses = append(res.Addresses, a)
	}
	for i, b := range imp.Buildings {
		if e := bldVerdicts[i]; e != nil {
			res.Dropped = append(res.Dropped, *e)
			continue
		}
		res.Buildings = append(res.Buildings, b)
	}
	return res
}

func duplicateAddress(a *geomodel.Address, idx *Index, cfg Config) *geomodel.ProvenanceEntry {
	if cfg.AddressDuplicateRadius < 0 {
		return nil
	}
	var (
		match   *geomodel.Address
		dist    float64
		tagHits int
	)
	idx.existingAddresses.Within(a.Point[0], a.Point[1], degreeRadius(cfg.AddressDuplicateRadius, a.Point), func(kp kdbush.Point[*geomodel.Address]) bool {
		d := geo.Distance(a.Point, kp.Data.Point)
		if d > cfg.AddressDuplicateRadius {
			return true
		}
		if !tagsEqualNormalized(a, kp.Data, cfg) {
			return true
		}
		// closest wins; distance ties go to the candidate agreeing on more
		// tag keys, then to the smallest ID
		hits := matchingTagKeys(a.Tags, kp.Data.Tags)
		better := match == nil || d < dist ||
			(d == dist && hits > tagHits) ||
			(d == dist && hits == tagHits && kp.Data.ID < match.ID)
		if better {
			match = kp.Data
			dist = d
			tagHits = hits
		}
		return true
	})
	if match == nil {
		return nil
	}
	e := geomodel.ProvenanceAt(a.ID, geomodel.ProvDuplicateAddress,
		fmt.Sprintf("duplicates existing address at %.1fm", dist), a.Point)
	e.RelatedID = match.ID
	return &e
}

// matchingTagKeys counts keys carried by both features with equal values.
func matchingTagKeys(a, b osm.Tags) int {
	n := 0
	for _, tag := range a {
		if b.Find(tag.Key) == tag.Value {
			n++
		}
	}
	return n
}

func tagsEqualNormalized(a, b *geomodel.Address, cfg Config) bool {
	for _, key := range cfg.DuplicateTagKeys {
		av := cfg.normalizeTag(key, a.Tags.Find(key))
		bv := cfg.normalizeTag(key, b.Tags.Find(key))
		if av != bv {
			return false
		}
	}
	return true
}

func duplicateBuilding(b *geomodel.Building, idx *Index, cfg Config) *geomodel.ProvenanceEntry {
	if cfg.BuildingOverlapFraction < 0 {
		return nil
	}
	var (
		match    *geomodel.Building
		bestFrac float64
		tagHits  int
	)
	idx.existingBuildings.SearchBound(b.Bound(), func(other *geomodel.Building) bool {
		f := overlapFraction(b, other)
		if f < cfg.BuildingOverlapFraction {
			return true
		}
		hits := matchingTagKeys(b.Tags, other.Tags)
		better := match == nil || f > bestFrac ||
			(f == bestFrac && hits > tagHits) ||
			(f == bestFrac && hits == tagHits && other.ID < match.ID)
		if better {
			match = other
			bestFrac = f
			tagHits = hits
		}
		return true
	})
	if match == nil {
		return nil
	}
	e := geomodel.ProvenanceAt(b.ID, geomodel.ProvDuplicateBuilding,
		fmt.Sprintf("footprint overlaps existing building by %.0f%%", bestFrac*100), b.RepresentativePoint())
	e.RelatedID = match.ID
	return &e
}

const overlapLatticeSize = 16

// overlapFraction estimates the shared footprint area as a fraction of the
// smaller building. A fixed lattice over the smaller bound keeps the
// estimate deterministic; clipping multipolygons exactly buys nothing at
// footprint scale.
func overlapFraction(a, b *geomodel.Building) float64 {
	small, large := a, b
	if b.Area() < a.Area() {
		small, large = b, a
	}
	bound := small.Bound()
	if !bound.Intersects(large.Bound()) {
		return 0
	}

	inSmall, inBoth := 0, 0
	for i := 0; i < overlapLatticeSize; i++ {
		for j := 0; j < overlapLatticeSize; j++ {
			p := orb.Point{
				bound.Min[0] + (bound.Max[0]-bound.Min[0])*(float64(i)+0.5)/overlapLatticeSize,
				bound.Min[1] + (bound.Max[1]-bound.Min[1])*(float64(j)+0.5)/overlapLatticeSize,
			}
			if !small.Contains(p) {
				continue
			}
			inSmall++
			if large.Contains(p) {
				inBoth++
			}
		}
	}
	if inSmall == 0 {
		return 0
	}
	return float64(inBoth) / float64(inSmall)
}
