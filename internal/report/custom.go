package report

import (
	"context"
	"fmt"
	"sort"

	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/store"
)

// custom builds the Audit sheet: one row per device and history day over an arbitrary
// selection of regions, facilities and devices. Facilities are fetched as independent
// units; one that fails, times out or matches no device contributes nothing.
func (s *Synthesizer) custom(ctx context.Context, j *job) (*Workbook, error) {
	units := s.customUnits(ctx, j)

	results := collectUnits(ctx, s, units, func(ctx context.Context, u unit) ([]Row, error) {
		return s.auditUnit(ctx, j, u)
	})

	sheet := newSheet(SheetAudit, auditColumns)
	for _, rows := range results {
		sheet.Rows = append(sheet.Rows, rows...)
	}
	if len(sheet.Rows) == 0 {
		return nil, emptySelection(ScopeCustom)
	}
	return &Workbook{Scope: ScopeCustom, Sheets: []Sheet{sheet}}, nil
}

// customUnits resolves the selection into facility units ordered by region then facility.
func (s *Synthesizer) customUnits(ctx context.Context, j *job) []unit {
	if len(j.sel.Facilities) == 0 && len(j.sel.DeviceIDs) > 0 && len(j.sel.Regions) == 0 {
		return []unit{{}}
	}

	meta := s.facilityMeta(ctx, j.sel.Regions)
	byName := make(map[string]fleet.Facility, len(meta))
	for _, f := range meta {
		byName[keyOf(f.Name)] = f
	}

	var units []unit
	if len(j.sel.Facilities) > 0 {
		for _, name := range j.sel.Facilities {
			f := byName[name]
			units = append(units, unit{Region: keyOf(f.Region), Subregion: keyOf(f.Subregion), Facility: name})
		}
	} else {
		if len(byName) == 0 {
			return []unit{{}}
		}
		for name, f := range byName {
			units = append(units, unit{Region: keyOf(f.Region), Subregion: keyOf(f.Subregion), Facility: name})
		}
		// Devices without a facility only match the Unknown unit.
		if _, ok := byName[fleet.UnknownKey]; !ok {
			units = append(units, unit{Region: fleet.UnknownKey, Subregion: fleet.UnknownKey, Facility: fleet.UnknownKey})
		}
	}

	sort.Slice(units, func(a, b int) bool {
		ua, ub := units[a], units[b]
		if ua.Region != ub.Region {
			return lessKey(ua.Region, ub.Region)
		}
		return lessKey(ua.Facility, ub.Facility)
	})
	return units
}

// auditUnit fetches one facility's devices and history and renders its rows.
func (s *Synthesizer) auditUnit(ctx context.Context, j *job, u unit) ([]Row, error) {
	filter := store.DeviceFilter{Regions: j.sel.Regions, IDs: j.sel.DeviceIDs}
	if u.Facility != "" {
		filter.Facilities = []string{u.Facility}
	}
	devices, err := s.devices(ctx, j, filter)
	if err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, nil
	}

	ids := make([]string, len(devices))
	for i, d := range devices {
		ids[i] = d.ID
	}
	history, err := s.history(ctx, ids, j.sel, j.at)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	var rows []Row
	for _, d := range devices {
		base := Row{
			ColRegion:     d.LocationKey(fleet.LevelRegion),
			ColSubregion:  d.LocationKey(fleet.LevelSubregion),
			ColFacility:   d.LocationKey(fleet.LevelFacility),
			ColDeviceName: d.DisplayName(),
			ColDeviceID:   d.ID,
		}

		days := s.reconciledRange(d, history[d.ID], j)
		if len(days) == 0 {
			usage := s.liveUsage(d, history[d.ID], j.at)
			rows = append(rows, base.with(Row{
				ColDate:     formatDate(dayOf(j.at)),
				ColRuntime:  roundTenth(usage.NetRuntimeMinutes),
				ColAppUsage: formatApps(usage.SortedApps()),
				ColScore:    displayScore(d.ScoreFields()),
				ColSource:   SourceLive,
			}))
			continue
		}
		for _, day := range days {
			rows = append(rows, base.with(Row{
				ColDate:     formatDate(day.Entry.Date),
				ColRuntime:  roundTenth(day.Usage.NetRuntimeMinutes),
				ColAppUsage: formatApps(day.Usage.SortedApps()),
				ColScore:    dayScore(day, d),
				ColSource:   daySource(day),
			}))
		}
	}
	return rows, nil
}

// with returns a copy of r extended by extra.
func (r Row) with(extra Row) Row {
	out := make(Row, len(r)+len(extra))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func lessKey(a, b string) bool {
	if (a == fleet.UnknownKey) != (b == fleet.UnknownKey) {
		return b == fleet.UnknownKey
	}
	return a < b
}
