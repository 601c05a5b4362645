// Package conflate implements the conflation pipeline: deduplication of
// imported features against the reference dataset, address-to-building
// matching, rule-based validation, tile partitioning and changeset
// generation. Every stage is a pure transformation from one immutable
// snapshot to the next; anomalies become provenance entries, never aborts.
package conflate

import (
	"fmt"
	"runtime"

	"github.com/paulmach/orb/maptile"
)

// Disabled opts a threshold out entirely: a Disabled radius finds nothing
// and a Disabled overlap fraction never marks a duplicate. The zero value
// means "use the default" instead.
const Disabled = -1

// Config carries every tunable of a run. Zero values are filled from
// ConfigDefault by Validate, except the normalizers which default to the
// built-in rule set; assign Disabled to turn a threshold off.
type Config struct {
	// AddressDuplicateRadius is the distance in meters within which an
	// existing address with agreeing tags marks an imported address as a
	// duplicate.
	AddressDuplicateRadius float64

	// BuildingOverlapFraction is the fraction of the smaller footprint that
	// must be covered by an existing footprint to mark an imported building
	// as a duplicate.
	BuildingOverlapFraction float64

	// DuplicateTagKeys are the tags that must agree (after normalization)
	// for an address duplicate. Defaults to addr:housenumber, addr:street.
	DuplicateTagKeys []string

	// MatchSearchRadius is the maximum distance in meters from an address
	// point to a building centroid for the nearest-building fallback.
	MatchSearchRadius float64

	// StreetSearchRadius is the distance in meters within which a street
	// with a matching name must run for the street-name rule to pass.
	StreetSearchRadius float64

	// TileZoom is the slippy-map zoom level used to key review tiles.
	TileZoom maptile.Zoom

	// Threads bounds the worker pools of the parallel stages.
	Threads int

	// StreetNormalizer and HouseNumberNormalizer make the comparison rules
	// pluggable; nil selects NormalizeStreet / NormalizeHouseNumber.
	StreetNormalizer      func(string) string
	HouseNumberNormalizer func(string) string
}

func ConfigDefault() Config {
	return Config{
		AddressDuplicateRadius:  5,
		BuildingOverlapFraction: 0.30,
		DuplicateTagKeys:        []string{"addr:housenumber", "addr:street"},
		MatchSearchRadius:       50,
		StreetSearchRadius:      100,
		TileZoom:                15,
		Threads:                 runtime.GOMAXPROCS(-1),
	}
}

// Validate checks preconditions and fills defaulted fields in place.
// Malformed configuration is fatal for the run.
func (c *Config) Validate() error {
	if c.AddressDuplicateRadius < 0 && c.AddressDuplicateRadius != Disabled {
		return fmt.Errorf("address duplicate radius must be >= 0 or Disabled, got %v", c.AddressDuplicateRadius)
	}
	if (c.BuildingOverlapFraction < 0 && c.BuildingOverlapFraction != Disabled) || c.BuildingOverlapFraction > 1 {
		return fmt.Errorf("building overlap fraction must be in [0, 1] or Disabled, got %v", c.BuildingOverlapFraction)
	}
	if c.MatchSearchRadius < 0 && c.MatchSearchRadius != Disabled {
		return fmt.Errorf("match search radius must be >= 0 or Disabled, got %v", c.MatchSearchRadius)
	}
	if c.StreetSearchRadius < 0 && c.StreetSearchRadius != Disabled {
		return fmt.Errorf("street search radius must be >= 0 or Disabled, got %v", c.StreetSearchRadius)
	}
	if c.TileZoom > 25 {
		return fmt.Errorf("tile zoom must be <= 25, got %d", c.TileZoom)
	}

	def := ConfigDefault()
	if c.AddressDuplicateRadius == 0 {
		c.AddressDuplicateRadius = def.AddressDuplicateRadius
	}
	if c.BuildingOverlapFraction == 0 {
		c.BuildingOverlapFraction = def.BuildingOverlapFraction
	}
	if c.DuplicateTagKeys == nil {
		c.DuplicateTagKeys = def.DuplicateTagKeys
	}
	if c.MatchSearchRadius == 0 {
		c.MatchSearchRadius = def.MatchSearchRadius
	}
	if c.StreetSearchRadius == 0 {
		c.StreetSearchRadius = def.StreetSearchRadius
	}
	if c.TileZoom == 0 {
		c.TileZoom = def.TileZoom
	}
	if c.Threads <= 0 {
		c.Threads = def.Threads
	}
	if c.StreetNormalizer == nil {
		c.StreetNormalizer = NormalizeStreet
	}
	if c.HouseNumberNormalizer == nil {
		c.HouseNumberNormalizer = NormalizeHouseNumber
	}
	return nil
}

func (c Config) normalizeTag(key, value string) string {
	switch key {
	case "addr:street":
		return c.StreetNormalizer(value)
	case "addr:housenumber":
		return c.HouseNumberNormalizer(value)
	}
	return value
}
