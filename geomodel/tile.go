package geomodel

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// Tile is one geographically bounded review batch: all surviving items whose
// representative point falls in one slippy-map grid cell. Tiles form a strict
// partition of the surviving item set; empty tiles are never emitted.
type Tile struct {
	Key maptile.Tile

	// Buildings are novel footprints not folded into any match item: either
	// no address landed on them, or several did and the addresses are
	// emitted as separate nodes.
	Buildings []*Building

	// Addresses are validated but unmatched addresses (Building == nil).
	Addresses []ValidatedMatch

	// Matches are validated address-building associations keyed here by the
	// address point.
	Matches []ValidatedMatch
}

// Name returns the stable file-name component for the tile.
func (t *Tile) Name() string {
	return fmt.Sprintf("%d_%d_%d", t.Key.Z, t.Key.X, t.Key.Y)
}

// Len returns the number of review items in the tile.
func (t *Tile) Len() int {
	return len(t.Buildings) + len(t.Addresses) + len(t.Matches)
}
