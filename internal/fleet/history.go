package fleet

import (
	"sort"
	"time"
)

// ReconciledDay is one history entry with its net usage.
type ReconciledDay struct {
	Entry HistoryEntry
	Usage DayUsage
	// Live marks the stand-in built from the live device for a day not yet finalized.
	Live bool
}

// WithToday appends a stand-in entry for today's date built from the live device,
// unless entries already hold a row for that day. The bool reports whether one was added.
func WithToday(entries []HistoryEntry, d Device, now time.Time) ([]HistoryEntry, bool) {
	today := Day(now)
	for _, e := range entries {
		if Day(e.Date).Equal(today) {
			return entries, false
		}
	}
	out := make([]HistoryEntry, len(entries), len(entries)+1)
	copy(out, entries)
	return append(out, liveEntry(d, today)), true
}

func liveEntry(d Device, day time.Time) HistoryEntry {
	e := HistoryEntry{
		DeviceID:       d.ID,
		Date:           day,
		RuntimeMinutes: d.RuntimeMinutes,
		AppSeconds:     d.AppSeconds,
	}
	if score, ok := d.Score(); ok {
		e.AverageScore = &score
	}
	return e
}

// ReconcileHistory reconciles each entry against the entry of the calendar day before
// it. A gap leaves the prior unknown. Duplicate dates keep the last entry. Output is
// ordered by date ascending. A non-zero live marks the day whose entry is the live stand-in.
func (r *Reconciler) ReconcileHistory(entries []HistoryEntry, live time.Time) []ReconciledDay {
	byDay := make(map[time.Time]HistoryEntry, len(entries))
	for _, e := range entries {
		byDay[Day(e.Date)] = e
	}
	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	liveDay := time.Time{}
	if !live.IsZero() {
		liveDay = Day(live)
	}

	out := make([]ReconciledDay, 0, len(days))
	for _, day := range days {
		entry := byDay[day]
		entry.Date = day

		var prior *Counters
		if p, ok := byDay[day.AddDate(0, 0, -1)]; ok {
			c := p.Counters()
			prior = &c
		}

		out = append(out, ReconciledDay{
			Entry: entry,
			Usage: r.ReconcileDay(entry.Counters(), prior),
			Live:  !liveDay.IsZero() && day.Equal(liveDay),
		})
	}
	return out
}

// PriorEntry returns the entry dated the day before day, if any.
func PriorEntry(entries []HistoryEntry, day time.Time) *HistoryEntry {
	want := Day(day).AddDate(0, 0, -1)
	for i := range entries {
		if Day(entries[i].Date).Equal(want) {
			e := entries[i]
			return &e
		}
	}
	return nil
}
