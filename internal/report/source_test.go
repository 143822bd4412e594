package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/store"
)

// fakeSource serves a fixed fleet and can fail or stall single facilities.
type fakeSource struct {
	facilities []fleet.Facility
	devices    []fleet.Device
	history    map[string][]fleet.HistoryEntry

	facilitiesErr error
	failFacility  map[string]error
	stallFacility map[string]bool

	mu          sync.Mutex
	deviceCalls int
}

func matches(values []string, v string) bool {
	if len(values) == 0 {
		return true
	}
	for _, want := range values {
		if want == keyOf(v) || want == v {
			return true
		}
	}
	return false
}

func (f *fakeSource) Facilities(_ context.Context, regions []string) ([]fleet.Facility, error) {
	if f.facilitiesErr != nil {
		return nil, f.facilitiesErr
	}
	var out []fleet.Facility
	for _, fac := range f.facilities {
		if matches(regions, fac.Region) {
			out = append(out, fac)
		}
	}
	return out, nil
}

func (f *fakeSource) Devices(ctx context.Context, filter store.DeviceFilter) ([]fleet.Device, error) {
	f.mu.Lock()
	f.deviceCalls++
	f.mu.Unlock()

	if len(filter.Facilities) == 1 {
		name := filter.Facilities[0]
		if err := f.failFacility[name]; err != nil {
			return nil, err
		}
		if f.stallFacility[name] {
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}

	var out []fleet.Device
	for _, d := range f.devices {
		if matches(filter.Regions, d.Region) && matches(filter.Subregions, d.Subregion) &&
			matches(filter.Facilities, d.Facility) && (len(filter.IDs) == 0 || contains(filter.IDs, d.ID)) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeSource) History(_ context.Context, ids []string, from, to time.Time) (map[string][]fleet.HistoryEntry, error) {
	out := make(map[string][]fleet.HistoryEntry)
	for _, id := range ids {
		for _, e := range f.history[id] {
			if !from.IsZero() && e.Date.Before(fleet.Day(from)) {
				continue
			}
			if !to.IsZero() && e.Date.After(fleet.Day(to)) {
				continue
			}
			out[id] = append(out[id], e)
		}
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

var errUpstream = errors.New("upstream unavailable")

var reportAt = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func ptrFloat(v float64) *float64 { return &v }

func liveDevice(id, region, subregion, facility string) fleet.Device {
	return fleet.Device{
		ID: id, Name: "Device " + id, Region: region, Subregion: subregion, Facility: facility,
		Status: fleet.StatusOnline, LastSeen: ptrTime(reportAt.Add(-5 * time.Second)),
	}
}

func staleDevice(id, region, subregion, facility string) fleet.Device {
	d := liveDevice(id, region, subregion, facility)
	d.LastSeen = ptrTime(reportAt.Add(-10 * time.Minute))
	return d
}
