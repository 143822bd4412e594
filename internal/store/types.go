package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested device does not exist.
var ErrNotFound = errors.New("not found")

// TelemetryItem represents a single device record from the upstream telemetry API.
type TelemetryItem struct {
	ID             string             `json:"deviceId"`
	Name           string             `json:"name"`
	Region         string             `json:"region"`
	Subregion      string             `json:"subregion"`
	Facility       string             `json:"facility"`
	Location       string             `json:"location"`
	Status         string             `json:"status"`
	LastSeen       *string            `json:"lastSeen"`
	LastSeenParsed *time.Time         `json:"-"`
	RuntimeMinutes float64            `json:"cumulativeRuntimeMinutes"`
	AppSeconds     map[string]float64 `json:"cumulativeAppSeconds"`

	// Upstream schemas vary in which score they send; all three are kept.
	AveragePerformance *float64 `json:"averagePerformance"`
	AverageScore       *float64 `json:"averageScore"`
	CPUScore           *float64 `json:"cpuScore"`

	Defective *bool `json:"defective"`
}

// DeviceFilter narrows a device query. Empty slices do not filter. The value
// fleet.UnknownKey matches devices whose field is blank.
type DeviceFilter struct {
	Regions    []string
	Subregions []string
	Facilities []string
	IDs        []string
}
