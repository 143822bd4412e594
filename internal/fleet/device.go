// Package fleet holds the pure telemetry logic: liveness, hierarchy roll-ups,
// defective overrides and the daily delta reconciliation of cumulative counters.
package fleet

import (
	"strings"
	"time"
)

// Status is the last status flag a device pushed.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// UnknownKey groups devices whose location field is unset.
const UnknownKey = "Unknown"

// Device is one endpoint as last reported by telemetry.
type Device struct {
	ID        string
	Name      string
	Region    string
	Subregion string
	Facility  string

	Status   Status
	LastSeen *time.Time

	RuntimeMinutes float64
	AppSeconds     map[string]float64

	// Score fields as sent upstream; resolve them with Score or ScoreFields.
	AveragePerformance *float64
	AverageScore       *float64
	CPUScore           *float64

	// Defective is the server-side flag; ApplyOverrides folds the local set into it.
	Defective bool
}

// Counters returns the device's cumulative counters.
func (d Device) Counters() Counters {
	return Counters{RuntimeMinutes: d.RuntimeMinutes, AppSeconds: d.AppSeconds}
}

// LocationKey returns the device's location at the given level, or UnknownKey.
func (d Device) LocationKey(level Level) string {
	var v string
	switch level {
	case LevelRegion:
		v = d.Region
	case LevelSubregion:
		v = d.Subregion
	case LevelFacility:
		v = d.Facility
	}
	return normalizeKey(v)
}

// DisplayName falls back to the identifier when no name was assigned.
func (d Device) DisplayName() string {
	if strings.TrimSpace(d.Name) == "" {
		return d.ID
	}
	return d.Name
}

// HistoryEntry is a device's counters as observed at the end of a calendar day.
type HistoryEntry struct {
	DeviceID       string
	Date           time.Time
	RuntimeMinutes float64
	AppSeconds     map[string]float64
	AverageScore   *float64
}

// Counters returns the snapshotted counters.
func (h HistoryEntry) Counters() Counters {
	return Counters{RuntimeMinutes: h.RuntimeMinutes, AppSeconds: h.AppSeconds}
}

// Facility is hierarchy metadata; a facility may exist without devices.
type Facility struct {
	Name      string
	Subregion string
	Region    string
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func normalizeKey(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return UnknownKey
	}
	return v
}
