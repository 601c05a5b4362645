package conflate

import (
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/mapgrove/osmconflate/geomodel"
)

// MatchAddresses pairs every surviving imported address with a building.
// Containment wins outright; when several footprints contain the point the
// smallest one is taken and the match flagged ambiguous; with no containing
// footprint the nearest centroid within the search radius is used. Addresses
// matching nothing are returned with MatchNone.
//
// The result slice is index-aligned with the input and deterministic.
func MatchAddresses(addresses []*geomodel.Address, idx *Index, cfg Config) ([]geomodel.Match, []geomodel.ProvenanceEntry) {
	matches := make([]geomodel.Match, len(addresses))
	notes := make([]*geomodel.ProvenanceEntry, len(addresses))

	p := pool.New().WithMaxGoroutines(cfg.Threads)
	for i, a := range addresses {
		p.Go(func() {
			matches[i], notes[i] = matchOne(a, idx, cfg)
		})
	}
	p.Wait()

	var prov []geomodel.ProvenanceEntry
	for _, n := range notes {
		if n != nil {
			prov = append(prov, *n)
		}
	}
	return matches, prov
}

func matchOne(a *geomodel.Address, idx *Index, cfg Config) (geomodel.Match, *geomodel.ProvenanceEntry) {
	containing := idx.containing(a.Point)

	switch {
	case len(containing) == 1:
		return geomodel.Match{
			Address:    a,
			Building:   containing[0],
			Strategy:   geomodel.MatchContainment,
			Confidence: 1,
		}, nil

	case len(containing) > 1:
		// containing is area-sorted, so the tightest footprint comes first.
		b := containing[0]
		e := geomodel.ProvenanceAt(a.ID, geomodel.ProvAmbiguousContainment,
			fmt.Sprintf("point inside %d footprints, smallest chosen", len(containing)), a.Point)
		e.RelatedID = b.ID
		return geomodel.Match{
			Address:    a,
			Building:   b,
			Strategy:   geomodel.MatchContainmentAmbiguous,
			Confidence: 1 / float64(len(containing)),
		}, &e
	}

	if cfg.MatchSearchRadius > 0 {
		if b, dist, ok := idx.nearestBuilding(a.Point, cfg.MatchSearchRadius); ok {
			return geomodel.Match{
				Address:    a,
				Building:   b,
				Strategy:   geomodel.MatchNearest,
				Distance:   dist,
				Confidence: 1 - dist/cfg.MatchSearchRadius,
			}, nil
		}
	}

	e := geomodel.ProvenanceAt(a.ID, geomodel.ProvNoBuildingInRadius,
		fmt.Sprintf("no building footprint or centroid within %.0fm", cfg.MatchSearchRadius), a.Point)
	return geomodel.Match{Address: a, Strategy: geomodel.MatchNone}, &e
}
