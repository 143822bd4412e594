package fleet

import (
	"sort"
	"time"
)

// Level is a hierarchy level devices can be grouped by.
type Level string

const (
	LevelRegion    Level = "region"
	LevelSubregion Level = "subregion"
	LevelFacility  Level = "facility"
)

// ParseLevel maps a request value onto a Level.
func ParseLevel(s string) (Level, bool) {
	switch Level(s) {
	case LevelRegion, LevelSubregion, LevelFacility:
		return Level(s), true
	}
	return "", false
}

func (l Level) child() (Level, bool) {
	switch l {
	case LevelRegion:
		return LevelSubregion, true
	case LevelSubregion:
		return LevelFacility, true
	}
	return "", false
}

// Group is the rolled-up health of one hierarchy node.
type Group struct {
	Key             string `json:"key"`
	Level           Level  `json:"level"`
	DeviceCount     int    `json:"deviceCount"`
	OnlineCount     int    `json:"onlineCount"`
	OfflineCount    int    `json:"offlineCount"`
	DefectiveCount  int    `json:"defectiveCount"`
	ChildGroupCount int    `json:"childGroupCount"`

	// AveragePerformance is the mean resolved score of the group's devices, nil when none report one.
	AveragePerformance *float64 `json:"averagePerformance,omitempty"`
}

type groupAcc struct {
	group    Group
	children map[string]struct{}
	scoreSum float64
	scored   int
}

// Aggregate folds devices into per-group counts at the given level. Devices with an
// empty location are grouped under UnknownKey. The result does not depend on input order.
func Aggregate(devices []Device, by Level, live Liveness, ref time.Time) map[string]Group {
	if ref.IsZero() {
		ref = live.now()
	}
	childLevel, hasChild := by.child()

	accs := make(map[string]*groupAcc)
	for _, d := range devices {
		key := d.LocationKey(by)
		acc, ok := accs[key]
		if !ok {
			acc = &groupAcc{
				group:    Group{Key: key, Level: by},
				children: make(map[string]struct{}),
			}
			accs[key] = acc
		}

		acc.group.DeviceCount++
		switch live.State(d, ref) {
		case StateDefective:
			acc.group.DefectiveCount++
		case StateOnline:
			acc.group.OnlineCount++
		default:
			acc.group.OfflineCount++
		}

		if hasChild {
			acc.children[d.LocationKey(childLevel)] = struct{}{}
		}
		if score, ok := d.Score(); ok {
			acc.scoreSum += score
			acc.scored++
		}
	}

	out := make(map[string]Group, len(accs))
	for key, acc := range accs {
		g := acc.group
		g.ChildGroupCount = len(acc.children)
		if acc.scored > 0 {
			avg := acc.scoreSum / float64(acc.scored)
			g.AveragePerformance = &avg
		}
		out[key] = g
	}
	return out
}

// Totals sums the counts of groups into a single fleet-wide group.
func Totals(groups map[string]Group) Group {
	total := Group{Key: "Total", ChildGroupCount: len(groups)}
	for _, g := range groups {
		total.DeviceCount += g.DeviceCount
		total.OnlineCount += g.OnlineCount
		total.OfflineCount += g.OfflineCount
		total.DefectiveCount += g.DefectiveCount
	}
	return total
}

// SortedGroups returns the groups ordered by key, with UnknownKey last.
func SortedGroups(groups map[string]Group) []Group {
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Key == UnknownKey) != (out[j].Key == UnknownKey) {
			return out[j].Key == UnknownKey
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// FilterDevices returns the devices for which keep is true.
func FilterDevices(devices []Device, keep func(Device) bool) []Device {
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}
