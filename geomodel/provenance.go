package geomodel

import "github.com/paulmach/orb"

// Provenance reason codes. Validation rule codes (see conflate.DefaultRules)
// are reused verbatim when a failed rule is logged.
const (
	ProvDuplicateAddress     = "duplicate_address"
	ProvDuplicateBuilding    = "duplicate_building"
	ProvDegenerateGeometry   = "degenerate_geometry"
	ProvAmbiguousContainment = "ambiguous_containment"
	ProvNoBuildingInRadius   = "no_building_in_radius"
)

// ProvenanceEntry is one line of the diagnostic log: enough for a reviewer to
// act on a dropped, ambiguous or failing item without re-running the
// pipeline.
type ProvenanceEntry struct {
	FeatureID string  `json:"feature_id"`
	RelatedID string  `json:"related_id,omitempty"`
	Code      string  `json:"code"`
	Detail    string  `json:"detail,omitempty"`
	Lon       float64 `json:"lon"`
	Lat       float64 `json:"lat"`
}

// ProvenanceAt fills the coordinate fields from a point.
func ProvenanceAt(featureID, code, detail string, p orb.Point) ProvenanceEntry {
	return ProvenanceEntry{
		FeatureID: featureID,
		Code:      code,
		Detail:    detail,
		Lon:       p[0],
		Lat:       p[1],
	}
}
