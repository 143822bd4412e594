// Package report assembles fleet audit workbooks from stored telemetry.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/logging"
	"fleet-audit-backend/internal/metrics"
	"fleet-audit-backend/internal/store"
)

const (
	defaultFetchTimeout   = 15 * time.Second
	defaultMaxConcurrency = 4
)

// Source is the read side of the store a report needs.
type Source interface {
	Facilities(ctx context.Context, regions []string) ([]fleet.Facility, error)
	Devices(ctx context.Context, filter store.DeviceFilter) ([]fleet.Device, error)
	History(ctx context.Context, deviceIDs []string, from, to time.Time) (map[string][]fleet.HistoryEntry, error)
}

// Options bound the fetches a single report performs.
type Options struct {
	// FetchTimeout applies to each unit of work (one facility, one device).
	FetchTimeout time.Duration
	// MaxConcurrency caps the units fetched at once.
	MaxConcurrency int
}

// Synthesizer builds workbooks for the supported scopes.
type Synthesizer struct {
	src  Source
	live fleet.Liveness
	rec  *fleet.Reconciler
	opts Options
	log  *zap.Logger
}

// NewSynthesizer wires a synthesizer; zero options take the defaults.
func NewSynthesizer(src Source, live fleet.Liveness, rec *fleet.Reconciler, opts Options, log *zap.Logger) *Synthesizer {
	log = logging.OrNop(log)
	if rec == nil {
		rec = fleet.NewReconciler(fleet.DefaultReconcileParams, log)
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &Synthesizer{src: src, live: live, rec: rec, opts: opts, log: log}
}

// job carries one request through the scope builders.
type job struct {
	req       Request
	sel       Selection
	at        time.Time
	overrides fleet.OverrideSet
}

// Synthesize builds the workbook for req. It fails with ErrEmptySelection only when
// the selection as a whole yields no rows; units that fail or come back empty are skipped.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) (wb *Workbook, err error) {
	start := time.Now()
	scopeLabel := string(req.Scope)
	defer func() {
		result := metrics.ResultSuccess
		switch {
		case errors.Is(err, ErrEmptySelection):
			result = metrics.ResultEmpty
		case err != nil:
			result = metrics.ResultError
		}
		rows := 0
		if wb != nil {
			rows = wb.RowCount()
		}
		metrics.ObserveReport(scopeLabel, result, rows, time.Since(start))
	}()

	scope, err := ParseScope(string(req.Scope))
	if err != nil {
		scopeLabel = "unknown"
		return nil, err
	}
	req.Scope = scope

	j := &job{
		req:       req,
		sel:       req.Selection.normalized(),
		at:        req.At,
		overrides: fleet.NewOverrideSet(req.Defective...),
	}
	if j.at.IsZero() {
		j.at = s.now()
	}

	switch scope {
	case ScopeGlobal:
		wb, err = s.global(ctx, j)
	case ScopeRegion:
		wb, err = s.region(ctx, j)
	case ScopeFacility:
		wb, err = s.facility(ctx, j)
	case ScopeDevice:
		wb, err = s.device(ctx, j)
	case ScopeCustom:
		wb, err = s.custom(ctx, j)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("report synthesized",
		zap.String("scope", string(scope)),
		zap.Int("sheets", len(wb.Sheets)),
		zap.Int("rows", wb.RowCount()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return wb, nil
}

func (s *Synthesizer) now() time.Time {
	if s.live.Now != nil {
		return s.live.Now()
	}
	return time.Now()
}

// devices fetches one filtered device set under the unit timeout and folds in the overrides.
func (s *Synthesizer) devices(ctx context.Context, j *job, filter store.DeviceFilter) ([]fleet.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()
	devices, err := s.src.Devices(ctx, filter)
	if err != nil {
		return nil, err
	}
	return fleet.ApplyOverrides(devices, j.overrides), nil
}

// facilityMeta loads facility metadata. A failure degrades to none, since counts
// can still be derived from the devices themselves.
func (s *Synthesizer) facilityMeta(ctx context.Context, regions []string) []fleet.Facility {
	ctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()
	facilities, err := s.src.Facilities(ctx, regions)
	if err != nil {
		s.log.Warn("facility metadata unavailable", zap.Strings("regions", regions), zap.Error(err))
		metrics.IncUnitFailure(failureReason(err))
		return nil
	}
	return facilities
}

// unit is one independently fetched slice of a multi-facility report.
type unit struct {
	Region    string
	Subregion string
	// Facility is empty when the unit is not restricted to a facility.
	Facility string
}

func (u unit) label() string {
	if u.Facility == "" {
		return "*"
	}
	return u.Facility
}

// collectUnits runs fetch for every unit, at most MaxConcurrency at a time, each under its
// own timeout. Results keep the order of units; a failed unit leaves its slot at the zero value.
func collectUnits[T any](ctx context.Context, s *Synthesizer, units []unit, fetch func(context.Context, unit) (T, error)) []T {
	results := make([]T, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxConcurrency)

	for i, u := range units {
		g.Go(func() error {
			uctx, cancel := context.WithTimeout(gctx, s.opts.FetchTimeout)
			defer cancel()

			res, err := fetch(uctx, u)
			if err != nil {
				s.log.Warn("report unit failed, skipping",
					zap.String("region", u.Region),
					zap.String("facility", u.label()),
					zap.Error(err),
				)
				metrics.IncUnitFailure(failureReason(err))
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func emptySelection(scope Scope) error {
	return fmt.Errorf("%s report: %w", scope, ErrEmptySelection)
}
