package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fleet_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultEmpty   = "empty"
)

var (
	registerOnce sync.Once

	reportTotal   *prometheus.CounterVec
	reportLatency *prometheus.HistogramVec
	reportRows    *prometheus.HistogramVec

	unitFailures      *prometheus.CounterVec
	malformedCounters *prometheus.CounterVec

	pollCycles  *prometheus.CounterVec
	pollLatency prometheus.Histogram
	pollDevices prometheus.Gauge
	snapshots   prometheus.Counter

	cacheLookups *prometheus.CounterVec
)

// Init registers the service metrics with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		reportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_total",
				Help: "Total report syntheses by scope and result",
			},
			[]string{"scope", "result"},
		)
		reportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_latency_seconds",
				Help:    "Report synthesis latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scope"},
		)
		reportRows = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_rows",
				Help:    "Rows emitted per report",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"scope"},
		)
		unitFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_unit_failures_total",
				Help: "Per-facility fetches that failed or timed out during report synthesis",
			},
			[]string{"reason"},
		)
		malformedCounters = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "malformed_counters_total",
				Help: "Counter values treated as zero because they were negative or not finite",
			},
			[]string{"field"},
		)
		pollCycles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_cycles_total",
				Help: "Upstream telemetry poll cycles by result",
			},
			[]string{"result"},
		)
		pollLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_latency_seconds",
				Help:    "Upstream telemetry poll cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		pollDevices = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "poll_devices",
				Help: "Devices returned by the last successful poll",
			},
		)
		snapshots = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "history_snapshots_total",
				Help: "Daily history snapshots written",
			},
		)
		cacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_cache_lookups_total",
				Help: "Response cache lookups by outcome",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			reportTotal,
			reportLatency,
			reportRows,
			unitFailures,
			malformedCounters,
			pollCycles,
			pollLatency,
			pollDevices,
			snapshots,
			cacheLookups,
		)
	})
}

// ObserveReport records one report synthesis.
func ObserveReport(scope, result string, rows int, duration time.Duration) {
	if scope == "" {
		scope = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if reportTotal != nil {
		reportTotal.WithLabelValues(scope, result).Inc()
	}
	if reportLatency != nil {
		reportLatency.WithLabelValues(scope).Observe(duration.Seconds())
	}
	if reportRows != nil && result == ResultSuccess {
		reportRows.WithLabelValues(scope).Observe(float64(rows))
	}
}

// IncUnitFailure counts a per-facility fetch that contributed nothing.
func IncUnitFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if unitFailures != nil {
		unitFailures.WithLabelValues(reason).Inc()
	}
}

// IncMalformedCounter counts a counter value that was replaced by zero.
func IncMalformedCounter(field string) {
	if malformedCounters != nil {
		malformedCounters.WithLabelValues(field).Inc()
	}
}

// ObservePoll records one poll cycle.
func ObservePoll(result string, devices int, duration time.Duration) {
	if pollCycles != nil {
		pollCycles.WithLabelValues(result).Inc()
	}
	if pollLatency != nil {
		pollLatency.Observe(duration.Seconds())
	}
	if pollDevices != nil && result == ResultSuccess {
		pollDevices.Set(float64(devices))
	}
}

// AddSnapshots counts history rows written at day rollover.
func AddSnapshots(n int) {
	if snapshots != nil && n > 0 {
		snapshots.Add(float64(n))
	}
}

// IncCacheLookup counts a response cache hit or miss.
func IncCacheLookup(hit bool) {
	if cacheLookups == nil {
		return
	}
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}
