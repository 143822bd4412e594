package fleet

import "strings"

// OverrideSet is the client-held set of device IDs manually flagged defective.
type OverrideSet map[string]struct{}

// NewOverrideSet builds a set from ids, ignoring blanks.
func NewOverrideSet(ids ...string) OverrideSet {
	set := make(OverrideSet, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Has reports whether id is overridden. A nil set holds nothing.
func (s OverrideSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// ApplyOverrides returns copies of devices with Defective set when either the server
// flagged them or their ID is in set. The input slice is not modified.
func ApplyOverrides(devices []Device, set OverrideSet) []Device {
	out := make([]Device, len(devices))
	for i, d := range devices {
		d.Defective = d.Defective || set.Has(d.ID)
		out[i] = d
	}
	return out
}
