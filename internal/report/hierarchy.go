package report

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/store"
)

func keyOf(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fleet.UnknownKey
	}
	return v
}

func groupScore(g fleet.Group) float64 {
	return displayScore(fleet.ScoreFields{AveragePerformance: g.AveragePerformance})
}

// global builds the Regions sheet: one row per region.
func (s *Synthesizer) global(ctx context.Context, j *job) (*Workbook, error) {
	devices, err := s.devices(ctx, j, store.DeviceFilter{Regions: j.sel.Regions})
	if err != nil {
		return nil, fmt.Errorf("global report: %w", err)
	}
	meta := s.facilityMeta(ctx, j.sel.Regions)

	groups := fleet.Aggregate(devices, fleet.LevelRegion, s.live, j.at)

	subregions := make(map[string]map[string]struct{})
	facilities := make(map[string]map[string]struct{})
	add := func(region, subregion, facility string) {
		if _, ok := groups[region]; !ok {
			groups[region] = fleet.Group{Key: region, Level: fleet.LevelRegion}
		}
		if subregions[region] == nil {
			subregions[region] = make(map[string]struct{})
			facilities[region] = make(map[string]struct{})
		}
		subregions[region][subregion] = struct{}{}
		facilities[region][facility] = struct{}{}
	}
	for _, d := range devices {
		add(d.LocationKey(fleet.LevelRegion), d.LocationKey(fleet.LevelSubregion), d.LocationKey(fleet.LevelFacility))
	}
	for _, f := range meta {
		add(keyOf(f.Region), keyOf(f.Subregion), keyOf(f.Name))
	}

	sheet := newSheet(SheetRegions, regionColumns)
	for _, g := range fleet.SortedGroups(groups) {
		sheet.Rows = append(sheet.Rows, Row{
			ColRegion:     g.Key,
			ColSubregions: len(subregions[g.Key]),
			ColFacilities: len(facilities[g.Key]),
			ColDevices:    g.DeviceCount,
			ColOnline:     g.OnlineCount,
			ColOffline:    g.OfflineCount,
			ColDefective:  g.DefectiveCount,
			ColScore:      groupScore(g),
		})
	}
	if len(sheet.Rows) == 0 {
		return nil, emptySelection(ScopeGlobal)
	}
	return &Workbook{Scope: ScopeGlobal, Sheets: []Sheet{sheet}}, nil
}

// region builds the Facilities sheet for the selected regions, including facilities
// that currently have no devices.
func (s *Synthesizer) region(ctx context.Context, j *job) (*Workbook, error) {
	if len(j.sel.Regions) == 0 {
		return nil, fmt.Errorf("region report needs at least one region: %w", ErrInvalidSelection)
	}
	devices, err := s.devices(ctx, j, store.DeviceFilter{Regions: j.sel.Regions, Facilities: j.sel.Facilities})
	if err != nil {
		return nil, fmt.Errorf("region report: %w", err)
	}
	meta := s.facilityMeta(ctx, j.sel.Regions)

	groups := fleet.Aggregate(devices, fleet.LevelFacility, s.live, j.at)
	subregionOf := make(map[string]string, len(groups))
	for _, d := range devices {
		key := d.LocationKey(fleet.LevelFacility)
		if _, ok := subregionOf[key]; !ok {
			subregionOf[key] = d.LocationKey(fleet.LevelSubregion)
		}
	}

	wanted := make(map[string]struct{}, len(j.sel.Facilities))
	for _, name := range j.sel.Facilities {
		wanted[name] = struct{}{}
	}
	for _, f := range meta {
		key := keyOf(f.Name)
		if _, ok := wanted[key]; len(wanted) > 0 && !ok {
			continue
		}
		if _, ok := groups[key]; !ok {
			groups[key] = fleet.Group{Key: key, Level: fleet.LevelFacility}
		}
		subregionOf[key] = keyOf(f.Subregion)
	}

	sheet := newSheet(SheetFacilities, facilityColumns)
	for _, g := range fleet.SortedGroups(groups) {
		sheet.Rows = append(sheet.Rows, Row{
			ColFacility:  g.Key,
			ColSubregion: keyOf(subregionOf[g.Key]),
			ColDevices:   g.DeviceCount,
			ColOnline:    g.OnlineCount,
			ColOffline:   g.OfflineCount,
			ColDefective: g.DefectiveCount,
			ColScore:     groupScore(g),
		})
	}
	if len(sheet.Rows) == 0 {
		return nil, emptySelection(ScopeRegion)
	}
	return &Workbook{Scope: ScopeRegion, Sheets: []Sheet{sheet}}, nil
}

// facility builds the Summary and Inventory sheets for a set of facilities or devices.
// Each facility is fetched as its own unit.
func (s *Synthesizer) facility(ctx context.Context, j *job) (*Workbook, error) {
	if len(j.sel.Facilities) == 0 && len(j.sel.DeviceIDs) == 0 {
		return nil, fmt.Errorf("facility report needs facilities or devices: %w", ErrInvalidSelection)
	}

	units := []unit{{}}
	if len(j.sel.Facilities) > 0 {
		names := append([]string(nil), j.sel.Facilities...)
		sort.Strings(names)
		units = make([]unit, len(names))
		for i, name := range names {
			units[i] = unit{Facility: name}
		}
	}

	batches := collectUnits(ctx, s, units, func(ctx context.Context, u unit) ([]fleet.Device, error) {
		filter := store.DeviceFilter{Regions: j.sel.Regions, IDs: j.sel.DeviceIDs}
		if u.Facility != "" {
			filter.Facilities = []string{u.Facility}
		}
		return s.devices(ctx, j, filter)
	})

	var devices []fleet.Device
	for _, batch := range batches {
		devices = append(devices, batch...)
	}
	if len(devices) == 0 {
		return nil, emptySelection(ScopeFacility)
	}

	var online, offline, defective int
	inventory := newSheet(SheetInventory, inventoryColumns)
	for _, d := range devices {
		state := s.live.State(d, j.at)
		switch state {
		case fleet.StateOnline:
			online++
		case fleet.StateDefective:
			defective++
		default:
			offline++
		}
		inventory.Rows = append(inventory.Rows, Row{
			ColDeviceName: d.DisplayName(),
			ColDeviceID:   d.ID,
			ColFacility:   d.LocationKey(fleet.LevelFacility),
			ColStatus:     string(state),
			ColLoad:       displayScore(d.ScoreFields()),
			ColLastSeen:   formatLastSeen(d.LastSeen),
			ColAppUsage:   formatApps(fleet.SortApps(d.AppSeconds)),
		})
	}

	summary := newSheet(SheetSummary, summaryColumns)
	summary.Rows = append(summary.Rows,
		Row{ColMetric: "Total Devices", ColCount: len(devices)},
		Row{ColMetric: ColOnline, ColCount: online},
		Row{ColMetric: ColOffline, ColCount: offline},
	)
	if defective > 0 {
		summary.Rows = append(summary.Rows, Row{ColMetric: ColDefective, ColCount: defective})
	}

	return &Workbook{Scope: ScopeFacility, Sheets: []Sheet{summary, inventory}}, nil
}
