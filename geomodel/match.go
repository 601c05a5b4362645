package geomodel

// MatchStrategy records how an address was associated with a building.
type MatchStrategy uint8

const (
	// MatchNone means no building qualified within the search radius.
	MatchNone MatchStrategy = iota
	// MatchContainment means the address point lies in exactly one footprint.
	MatchContainment
	// MatchContainmentAmbiguous means the point lies in several overlapping
	// footprints and the smallest-area one was chosen.
	MatchContainmentAmbiguous
	// MatchNearest means the nearest building centroid within the search
	// radius was chosen.
	MatchNearest
)

func (s MatchStrategy) String() string {
	switch s {
	case MatchContainment:
		return "containment"
	case MatchContainmentAmbiguous:
		return "containment_ambiguous"
	case MatchNearest:
		return "nearest"
	}
	return "none"
}

// Match associates one address with at most one building. Building is nil
// for unmatched addresses, which are a legitimate outcome carried through
// validation.
type Match struct {
	Address  *Address
	Building *Building
	Strategy MatchStrategy

	// Distance is the great-circle distance in meters between the address
	// point and the matched building centroid. Zero for containment matches.
	Distance float64

	// Confidence is 1 for an unambiguous containment, 1/n when the point lay
	// in n overlapping footprints, and decays with distance for nearest
	// matches.
	Confidence float64
}

// Matched reports whether the address found a building.
func (m Match) Matched() bool { return m.Building != nil }

// RuleOutcome is the verdict of a single validation rule.
type RuleOutcome struct {
	Code   string
	Pass   bool
	Reason string
}

// ValidationResult aggregates the independent rule outcomes for one match.
type ValidationResult struct {
	Outcomes []RuleOutcome
}

// Failed reports whether any rule failed.
func (r ValidationResult) Failed() bool {
	for _, o := range r.Outcomes {
		if !o.Pass {
			return true
		}
	}
	return false
}

// Failures returns the failing outcomes.
func (r ValidationResult) Failures() []RuleOutcome {
	var out []RuleOutcome
	for _, o := range r.Outcomes {
		if !o.Pass {
			out = append(out, o)
		}
	}
	return out
}

// ValidatedMatch is a match annotated with its rule outcomes.
type ValidatedMatch struct {
	Match
	Result ValidationResult

	// MergeIntoBuilding is set by the partitioner when this match is the
	// only one targeting its building, so the changeset generator folds the
	// address tags into the building operation (a create for novel
	// footprints, a modify for existing ones) instead of emitting a
	// separate node.
	MergeIntoBuilding bool
}
