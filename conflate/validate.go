package conflate

import (
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/mapgrove/osmconflate/geomodel"
)

// Rule is one independent validation check. Rules never veto a match; they
// annotate it, and any failing outcome routes the tile to the failed bucket.
type Rule struct {
	Code  string
	Check func(m geomodel.Match, idx *Index, cfg Config) geomodel.RuleOutcome
}

func pass(code string) geomodel.RuleOutcome {
	return geomodel.RuleOutcome{Code: code, Pass: true}
}

func fail(code, format string, args ...any) geomodel.RuleOutcome {
	return geomodel.RuleOutcome{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// DefaultRules returns the standard rule set, applied in order. Every rule
// runs on every match, including unmatched addresses.
func DefaultRules() []Rule {
	return []Rule{
		{Code: "address_missing_housenumber", Check: checkHasHouseNumber},
		{Code: "address_missing_street", Check: checkHasStreet},
		{Code: "address_street_mismatch", Check: checkStreetExists},
		{Code: "address_conflicts_existing_building", Check: checkBuildingConflict},
	}
}

func checkHasHouseNumber(m geomodel.Match, _ *Index, cfg Config) geomodel.RuleOutcome {
	const code = "address_missing_housenumber"
	if cfg.HouseNumberNormalizer(m.Address.HouseNumber) == "" {
		return fail(code, "address carries no usable house number")
	}
	return pass(code)
}

func checkHasStreet(m geomodel.Match, _ *Index, cfg Config) geomodel.RuleOutcome {
	const code = "address_missing_street"
	if cfg.StreetNormalizer(m.Address.Street) == "" {
		return fail(code, "address carries no usable street name")
	}
	return pass(code)
}

// checkStreetExists fails when streets pass nearby but none carries the
// address's street name. An empty street name or no nearby street data is
// not this rule's business.
func checkStreetExists(m geomodel.Match, idx *Index, cfg Config) geomodel.RuleOutcome {
	const code = "address_street_mismatch"
	want := cfg.StreetNormalizer(m.Address.Street)
	if want == "" || cfg.StreetSearchRadius <= 0 {
		return pass(code)
	}
	nearby := idx.streetsNear(m.Address.Point, cfg.StreetSearchRadius)
	if len(nearby) == 0 {
		return pass(code)
	}
	for _, s := range nearby {
		if s.Norm == want {
			return pass(code)
		}
	}
	return fail(code, "no street named %q within %.0fm, nearest is %q",
		m.Address.Street, cfg.StreetSearchRadius, nearby[0].Street.Name)
}

// checkBuildingConflict fails when the matched building already carries a
// different address. Buildings without addr tags, novel buildings, and
// unmatched addresses pass vacuously.
func checkBuildingConflict(m geomodel.Match, _ *Index, cfg Config) geomodel.RuleOutcome {
	const code = "address_conflicts_existing_building"
	if !m.Matched() || m.Building.Origin != geomodel.OriginExisting {
		return pass(code)
	}
	for _, key := range cfg.DuplicateTagKeys {
		have := m.Building.Tags.Find(key)
		if have == "" {
			continue
		}
		want := m.Address.Tags.Find(key)
		if cfg.normalizeTag(key, have) != cfg.normalizeTag(key, want) {
			return fail(code, "building %s already tagged %s=%q, address says %q",
				m.Building.ID, key, have, want)
		}
	}
	return pass(code)
}

// Validate runs every rule on every match. The result slice is index-aligned
// with the input; failing outcomes additionally produce provenance entries.
func Validate(matches []geomodel.Match, rules []Rule, idx *Index, cfg Config) ([]geomodel.ValidatedMatch, []geomodel.ProvenanceEntry) {
	out := make([]geomodel.ValidatedMatch, len(matches))

	p := pool.New().WithMaxGoroutines(cfg.Threads)
	for i, m := range matches {
		p.Go(func() {
			outcomes := make([]geomodel.RuleOutcome, 0, len(rules))
			for _, r := range rules {
				outcomes = append(outcomes, r.Check(m, idx, cfg))
			}
			out[i] = geomodel.ValidatedMatch{
				Match:  m,
				Result: geomodel.ValidationResult{Outcomes: outcomes},
			}
		})
	}
	p.Wait()

	var prov []geomodel.ProvenanceEntry
	for _, vm := range out {
		for _, o := range vm.Result.Failures() {
			e := geomodel.ProvenanceAt(vm.Address.ID, o.Code, o.Reason, vm.Address.Point)
			if vm.Matched() {
				e.RelatedID = vm.Building.ID
			}
			prov = append(prov, e)
		}
	}
	return out, prov
}
