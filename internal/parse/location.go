package parse

import (
	"regexp"
	"strings"
)

var (
	spaceRe     = regexp.MustCompile(`\s+`)
	separatorRe = regexp.MustCompile(`\s*(?:>|\||/|\\)\s*`)
)

// Location is a device's place in the region / sub-region / facility hierarchy.
type Location struct {
	Region    string
	Subregion string
	Facility  string
}

// ParseLocation splits a location path such as "EMEA / DACH / Munich DC1" into its parts.
// Separators may be '/', '\', '>' or '|'. Missing trailing levels are left empty; extra
// levels beyond the facility are folded into the facility name.
func ParseLocation(raw string) Location {
	s := strings.Trim(CleanName(raw), `/\|> `)
	if s == "" {
		return Location{}
	}

	parts := separatorRe.Split(s, -1)
	for i := range parts {
		parts[i] = CleanName(parts[i])
	}

	var loc Location
	switch {
	case len(parts) >= 3:
		loc.Region, loc.Subregion = parts[0], parts[1]
		loc.Facility = strings.Join(nonEmpty(parts[2:]), " ")
	case len(parts) == 2:
		loc.Region, loc.Subregion = parts[0], parts[1]
	default:
		loc.Region = parts[0]
	}
	return loc
}

// ResolveLocation prefers explicit fields and falls back to the parsed path for any that are blank.
func ResolveLocation(region, subregion, facility, path string) Location {
	loc := Location{
		Region:    CleanName(region),
		Subregion: CleanName(subregion),
		Facility:  CleanName(facility),
	}
	if loc.Region != "" && loc.Subregion != "" && loc.Facility != "" {
		return loc
	}

	parsed := ParseLocation(path)
	if loc.Region == "" {
		loc.Region = parsed.Region
	}
	if loc.Subregion == "" {
		loc.Subregion = parsed.Subregion
	}
	if loc.Facility == "" {
		loc.Facility = parsed.Facility
	}
	return loc
}

// CleanName trims and collapses whitespace, including full-width spaces.
func CleanName(s string) string {
	s = strings.ReplaceAll(s, "　", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func nonEmpty(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
