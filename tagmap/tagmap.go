// Package tagmap translates raw import attributes into OSM tags: renaming
// source fields, adding constant tags, and running per-tag value filters
// loaded from plain-text rule files.
package tagmap

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/paulmach/osm"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type filterKind uint8

const (
	filterTitleCase filterKind = iota
	filterRegex
	filterLookup
)

// Filter is one value transform. Filters in a file apply top to bottom.
type Filter struct {
	kind filterKind
	re   *regexp.Regexp
	repl string
	from string
	to   string
}

var titleCaser = cases.Title(language.Und)

// Apply runs the transform on a single tag value.
func (f Filter) Apply(value string) string {
	switch f.kind {
	case filterTitleCase:
		return titleCaser.String(value)
	case filterRegex:
		return f.re.ReplaceAllString(value, f.repl)
	case filterLookup:
		if value == f.from {
			return f.to
		}
	}
	return value
}

// ParseFilter parses one rule line. Three forms are accepted:
//
//	title_case
//	<regex> => <replacement>
//	<old> == <new>
func ParseFilter(line string) (Filter, error) {
	if line == "title_case" {
		return Filter{kind: filterTitleCase}, nil
	}
	if from, to, ok := strings.Cut(line, " == "); ok {
		return Filter{kind: filterLookup, from: from, to: to}, nil
	}
	if pat, repl, ok := strings.Cut(line, " => "); ok {
		re, err := regexp.Compile(pat)
		if err != nil {
			return Filter{}, fmt.Errorf("bad filter pattern %q: %w", pat, err)
		}
		return Filter{kind: filterRegex, re: re, repl: repl}, nil
	}
	return Filter{}, fmt.Errorf("unrecognized filter rule %q", line)
}

// LoadFilters reads a rule file, skipping blank lines and # comments.
func LoadFilters(path string) ([]Filter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening filter file: %w", err)
	}
	defer f.Close()

	var out []Filter
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		flt, err := ParseFilter(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		out = append(out, flt)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading filter file: %w", err)
	}
	return out, nil
}

// Set is the full attribute-to-tag translation for one import run.
type Set struct {
	rename  map[string]string
	add     osm.Tags
	filters map[string][]Filter
}

func NewSet() *Set {
	return &Set{
		rename:  map[string]string{},
		filters: map[string][]Filter{},
	}
}

// AddMapping registers a source-field rename from a "FIELD=tag" spec.
func (s *Set) AddMapping(spec string) error {
	field, tag, ok := strings.Cut(spec, "=")
	if !ok || field == "" || tag == "" {
		return fmt.Errorf("mapping must look like FIELD=tag, got %q", spec)
	}
	s.rename[field] = tag
	return nil
}

// AddConstant registers a constant tag from a "key=value" spec, applied to
// every imported feature.
func (s *Set) AddConstant(spec string) error {
	key, value, ok := strings.Cut(spec, "=")
	if !ok || key == "" || value == "" {
		return fmt.Errorf("constant tag must look like key=value, got %q", spec)
	}
	s.add = append(s.add, osm.Tag{Key: key, Value: value})
	return nil
}

// AddFilters attaches value filters to one output tag key.
func (s *Set) AddFilters(tag string, filters []Filter) {
	s.filters[tag] = append(s.filters[tag], filters...)
}

// Apply translates one feature's raw attributes. Fields without a mapping
// are dropped; filtered-to-empty values are dropped; constant tags are
// appended last and never override a mapped value.
func (s *Set) Apply(props map[string]string) osm.Tags {
	fields := make([]string, 0, len(props))
	for f := range props {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var tags osm.Tags
	for _, field := range fields {
		key, ok := s.rename[field]
		if !ok {
			continue
		}
		value := strings.TrimSpace(props[field])
		for _, flt := range s.filters[key] {
			value = flt.Apply(value)
		}
		if value == "" {
			continue
		}
		tags = append(tags, osm.Tag{Key: key, Value: value})
	}
	for _, t := range s.add {
		if tags.Find(t.Key) == "" {
			tags = append(tags, t)
		}
	}
	return tags
}
