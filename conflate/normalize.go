package conflate

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// streetAbbreviations expands the common English street-type and direction
// abbreviations. The table is deliberately small: it covers what the target
// datasets actually abbreviate, and uncovered forms surface as
// address_street_mismatch for a reviewer rather than being guessed at.
var streetAbbreviations = map[string]string{
	"ave":  "avenue",
	"av":   "avenue",
	"blvd": "boulevard",
	"cres": "crescent",
	"crt":  "court",
	"ct":   "court",
	"dr":   "drive",
	"hwy":  "highway",
	"ln":   "lane",
	"pkwy": "parkway",
	"pl":   "place",
	"rd":   "road",
	"sq":   "square",
	"st":   "street",
	"ter":  "terrace",
	"trl":  "trail",

	"n":  "north",
	"s":  "south",
	"e":  "east",
	"w":  "west",
	"ne": "northeast",
	"nw": "northwest",
	"se": "southeast",
	"sw": "southwest",
}

var (
	streetPunct  = strings.NewReplacer(".", "", ",", "", "'", "")
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	caseFolder   = cases.Fold()
)

// NormalizeStreet is the default street-name normalizer: case folding,
// punctuation stripping, whitespace collapsing and per-token abbreviation
// expansion, so "Main St." and "MAIN STREET" compare equal.
func NormalizeStreet(name string) string {
	name = caseFolder.String(strings.TrimSpace(name))
	if name == "" {
		return ""
	}
	name = streetPunct.Replace(name)
	name = multiSpaceRe.ReplaceAllString(name, " ")

	fields := strings.Fields(name)
	for i, f := range fields {
		if full, ok := streetAbbreviations[f]; ok {
			fields[i] = full
		}
	}
	return strings.Join(fields, " ")
}

// NormalizeHouseNumber is the default house-number normalizer: trims,
// upper-cases unit letters and drops leading zeros ("012a" equals "12A").
// Unit suffix handling is dataset-specific and left to a custom normalizer.
func NormalizeHouseNumber(num string) string {
	num = strings.ToUpper(strings.TrimSpace(num))
	trimmed := strings.TrimLeft(num, "0")
	if trimmed == "" && num != "" {
		return "0"
	}
	return trimmed
}
