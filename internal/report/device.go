package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/store"
)

// device builds the Profile, App Usage and History sheets of a single device.
func (s *Synthesizer) device(ctx context.Context, j *job) (*Workbook, error) {
	if len(j.sel.DeviceIDs) != 1 {
		return nil, fmt.Errorf("device report needs exactly one device, got %d: %w", len(j.sel.DeviceIDs), ErrInvalidSelection)
	}
	id := j.sel.DeviceIDs[0]

	devices, err := s.devices(ctx, j, store.DeviceFilter{IDs: []string{id}})
	if err != nil {
		return nil, fmt.Errorf("device report: %w", err)
	}
	if len(devices) == 0 {
		return nil, fmt.Errorf("device %q: %w", id, emptySelection(ScopeDevice))
	}
	d := devices[0]

	entries, err := s.history(ctx, []string{d.ID}, j.sel, j.at)
	if err != nil {
		return nil, fmt.Errorf("device report: %w", err)
	}
	history := entries[d.ID]

	state := s.live.State(d, j.at)
	profile := newSheet(SheetProfile, profileColumns)
	for _, kv := range []struct {
		field string
		value any
	}{
		{ColDeviceID, d.ID},
		{ColDeviceName, d.DisplayName()},
		{ColRegion, d.LocationKey(fleet.LevelRegion)},
		{ColSubregion, d.LocationKey(fleet.LevelSubregion)},
		{ColFacility, d.LocationKey(fleet.LevelFacility)},
		{ColStatus, string(state)},
		{ColLastSeen, formatLastSeen(d.LastSeen)},
		{ColScore, displayScore(d.ScoreFields())},
		{ColRuntime, roundTenth(d.RuntimeMinutes)},
	} {
		profile.Rows = append(profile.Rows, Row{ColField: kv.field, ColValue: kv.value})
	}

	usage := s.liveUsage(d, history, j.at)
	apps := newSheet(SheetAppUsage, appUsageColumns)
	for _, a := range usage.SortedApps() {
		apps.Rows = append(apps.Rows, Row{
			ColApplication: a.App,
			ColSeconds:     math.Round(a.Seconds),
			ColDuration:    formatDuration(a.Seconds),
		})
	}

	hist := newSheet(SheetHistory, historyColumns)
	for _, day := range s.reconciledRange(d, history, j) {
		hist.Rows = append(hist.Rows, Row{
			ColDate:     formatDate(day.Entry.Date),
			ColRuntime:  roundTenth(day.Usage.NetRuntimeMinutes),
			ColAppUsage: formatApps(day.Usage.SortedApps()),
			ColScore:    dayScore(day, d),
			ColSource:   daySource(day),
		})
	}

	return &Workbook{Scope: ScopeDevice, Sheets: []Sheet{profile, apps, hist}}, nil
}

// history fetches the entries needed to reconcile sel's range, including the day before From.
// The window always spans the day before at through at, since live usage is reconciled against it.
func (s *Synthesizer) history(ctx context.Context, ids []string, sel Selection, at time.Time) (map[string][]fleet.HistoryEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	priorDay := dayOf(at).AddDate(0, 0, -1)
	from, to := sel.From, sel.To
	if !from.IsZero() {
		from = dayOf(from).AddDate(0, 0, -1)
		if from.After(priorDay) {
			from = priorDay
		}
	}
	if !to.IsZero() && dayOf(to).Before(dayOf(at)) {
		to = dayOf(at)
	}
	return s.src.History(ctx, ids, from, to)
}

// liveUsage reconciles the device's live counters against the entry of the day before at.
func (s *Synthesizer) liveUsage(d fleet.Device, history []fleet.HistoryEntry, at time.Time) fleet.DayUsage {
	var prior *fleet.Counters
	if p := fleet.PriorEntry(history, at); p != nil {
		c := p.Counters()
		prior = &c
	}
	return s.rec.ReconcileDay(d.Counters(), prior)
}

// reconciledRange reconciles a device's history, optionally with today's live stand-in,
// and returns the days inside the selected range, newest first.
func (s *Synthesizer) reconciledRange(d fleet.Device, history []fleet.HistoryEntry, j *job) []fleet.ReconciledDay {
	var live time.Time
	if j.req.IncludeToday {
		var added bool
		history, added = fleet.WithToday(history, d, j.at)
		if added {
			live = j.at
		}
	}

	days := s.rec.ReconcileHistory(history, live)
	out := make([]fleet.ReconciledDay, 0, len(days))
	for i := len(days) - 1; i >= 0; i-- {
		if j.sel.inRange(days[i].Entry.Date) {
			out = append(out, days[i])
		}
	}
	return out
}

// dayScore prefers the score archived with the day and falls back to the device's cpu score.
func dayScore(day fleet.ReconciledDay, d fleet.Device) float64 {
	return displayScore(fleet.ScoreFields{AverageScore: day.Entry.AverageScore, CPUScore: d.CPUScore})
}

func daySource(day fleet.ReconciledDay) string {
	if day.Live {
		return SourceLive
	}
	return SourceHistory
}
