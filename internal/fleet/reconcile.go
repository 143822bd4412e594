package fleet

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"fleet-audit-backend/internal/metrics"
)

// Counters are the cumulative usage counters of a device or a history snapshot.
type Counters struct {
	RuntimeMinutes float64
	AppSeconds     map[string]float64
}

// ReconcileParams tune the daily delta heuristic.
//
// A runtime value at or below DailyCapMinutes+CumulativeBufferMinutes is taken to be a
// per-day figure already; anything larger is treated as a lifetime counter and differenced
// against the prior day. The magnitude test is inferred from observed data, not guaranteed
// by the telemetry source.
type ReconcileParams struct {
	DailyCapMinutes         float64
	CumulativeBufferMinutes float64
	MaterialitySeconds      float64
}

// DefaultReconcileParams is a 24h cap, 5 minute buffer and 10 second materiality threshold.
var DefaultReconcileParams = ReconcileParams{
	DailyCapMinutes:         1440,
	CumulativeBufferMinutes: 5,
	MaterialitySeconds:      10,
}

// DayUsage is the net, bounded usage of a single day.
type DayUsage struct {
	NetRuntimeMinutes float64
	NetAppSeconds     map[string]float64
}

// AppUsage is one application's net seconds.
type AppUsage struct {
	App     string
	Seconds float64
}

// SortedApps returns the applications by duration descending, ties by name.
func (u DayUsage) SortedApps() []AppUsage {
	return SortApps(u.NetAppSeconds)
}

// SortApps orders a usage map by seconds descending, ties by name.
func SortApps(m map[string]float64) []AppUsage {
	out := make([]AppUsage, 0, len(m))
	for app, secs := range m {
		out = append(out, AppUsage{App: app, Seconds: secs})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seconds != out[j].Seconds {
			return out[i].Seconds > out[j].Seconds
		}
		return out[i].App < out[j].App
	})
	return out
}

// Reconciler turns cumulative counters into daily deltas. It never fails: malformed
// values degrade to zero and are logged.
type Reconciler struct {
	params ReconcileParams
	log    *zap.Logger
}

// NewReconciler validates params against the defaults and returns a Reconciler.
func NewReconciler(params ReconcileParams, log *zap.Logger) *Reconciler {
	if !(params.DailyCapMinutes > 0) || !isFinite(params.DailyCapMinutes) {
		params.DailyCapMinutes = DefaultReconcileParams.DailyCapMinutes
	}
	if params.CumulativeBufferMinutes < 0 || !isFinite(params.CumulativeBufferMinutes) {
		params.CumulativeBufferMinutes = DefaultReconcileParams.CumulativeBufferMinutes
	}
	if params.MaterialitySeconds < 0 || !isFinite(params.MaterialitySeconds) {
		params.MaterialitySeconds = DefaultReconcileParams.MaterialitySeconds
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{params: params, log: log}
}

// Params returns the effective parameters.
func (r *Reconciler) Params() ReconcileParams {
	return r.params
}

// ReconcileDay computes the net usage of the day whose end-of-day counters are today,
// given the previous day's counters (nil when unknown).
func (r *Reconciler) ReconcileDay(today Counters, prior *Counters) DayUsage {
	dayCap := r.params.DailyCapMinutes

	raw := r.sanitize("runtime_minutes", "", today.RuntimeMinutes)
	var net float64
	if raw <= dayCap+r.params.CumulativeBufferMinutes {
		net = raw
	} else {
		net = dayCap
		if prior != nil {
			priorRuntime := r.sanitize("prior_runtime_minutes", "", prior.RuntimeMinutes)
			if raw >= priorRuntime {
				net = raw - priorRuntime
			}
		}
	}
	net = math.Min(net, dayCap)

	appCap := net * 60
	apps := make(map[string]float64, len(today.AppSeconds))
	for app, v := range today.AppSeconds {
		rawApp := r.sanitize("app_seconds", app, v)
		var priorApp float64
		if prior != nil {
			priorApp = r.sanitize("prior_app_seconds", app, prior.AppSeconds[app])
		}

		netApp := rawApp
		if priorApp > 0 && rawApp >= priorApp {
			netApp = rawApp - priorApp
		}
		netApp = math.Min(netApp, appCap)

		if netApp > r.params.MaterialitySeconds {
			apps[app] = netApp
		}
	}

	return DayUsage{NetRuntimeMinutes: net, NetAppSeconds: apps}
}

func (r *Reconciler) sanitize(field, app string, v float64) float64 {
	if isFinite(v) && v >= 0 {
		return v
	}
	fields := []zap.Field{zap.String("field", field), zap.Float64("value", v)}
	if app != "" {
		fields = append(fields, zap.String("app", app))
	}
	r.log.Warn("malformed counter treated as zero", fields...)
	metrics.IncMalformedCounter(field)
	return 0
}
