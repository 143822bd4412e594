package report

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmptySelection means the whole selection produced no rows.
	ErrEmptySelection = errors.New("nothing to report")
	// ErrUnknownScope is returned for a scope outside the supported set.
	ErrUnknownScope = errors.New("unknown report scope")
	// ErrInvalidSelection is returned when the selection does not fit the scope.
	ErrInvalidSelection = errors.New("invalid selection for scope")
)

// Scope is the hierarchy level a report is requested at.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeRegion   Scope = "region"
	ScopeFacility Scope = "facility"
	ScopeDevice   Scope = "device"
	ScopeCustom   Scope = "custom"
)

// ParseScope maps a request value onto a Scope.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScopeGlobal, ScopeRegion, ScopeFacility, ScopeDevice, ScopeCustom:
		return sc, nil
	}
	return "", ErrUnknownScope
}

// Selection picks the entities a report covers. From and To bound history dates
// inclusively; zero values leave the range open.
type Selection struct {
	Regions    []string  `json:"regions"`
	Facilities []string  `json:"facilities"`
	DeviceIDs  []string  `json:"deviceIds"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
}

// Request is one report request.
type Request struct {
	Scope     Scope     `json:"scope"`
	Selection Selection `json:"selection"`
	// Defective is the client-held override set.
	Defective []string `json:"defective"`
	// At is the reference time for liveness; zero means now.
	At time.Time `json:"at"`
	// IncludeToday adds today's not yet finalized usage from the live counters.
	IncludeToday bool `json:"includeToday"`
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (s Selection) normalized() Selection {
	s.Regions = cleanList(s.Regions)
	s.Facilities = cleanList(s.Facilities)
	s.DeviceIDs = cleanList(s.DeviceIDs)
	return s
}

func (s Selection) inRange(day time.Time) bool {
	if !s.From.IsZero() && day.Before(dayOf(s.From)) {
		return false
	}
	if !s.To.IsZero() && day.After(dayOf(s.To)) {
		return false
	}
	return true
}
