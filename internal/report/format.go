package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"fleet-audit-backend/internal/fleet"
)

const (
	dateLayout     = "2006-01-02"
	lastSeenLayout = "2006-01-02 15:04:05"
	neverSeen      = "Never"
)

func dayOf(t time.Time) time.Time {
	return fleet.Day(t)
}

// formatDuration renders seconds as "1h 05m", "12m 30s" or "45s".
func formatDuration(seconds float64) string {
	if !(seconds > 0) || math.IsInf(seconds, 0) {
		return "0s"
	}
	total := int64(math.Round(seconds))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// formatApps serializes usage as "browser: 1h 05m; editor: 12m 00s", longest first.
func formatApps(apps []fleet.AppUsage) string {
	parts := make([]string, 0, len(apps))
	for _, a := range apps {
		if !(a.Seconds > 0) {
			continue
		}
		parts = append(parts, a.App+": "+formatDuration(a.Seconds))
	}
	return strings.Join(parts, "; ")
}

func formatLastSeen(t *time.Time) string {
	if t == nil {
		return neverSeen
	}
	return t.UTC().Format(lastSeenLayout)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func roundTenth(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10) / 10
}

func displayScore(f fleet.ScoreFields) float64 {
	return fleet.DisplayScore(fleet.ResolveScore(f))
}
