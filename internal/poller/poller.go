// Package poller pulls device telemetry from the upstream API on a fixed interval
// and archives each day's counters when the calendar day rolls over.
package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleet-audit-backend/config"
	"fleet-audit-backend/internal/logging"
	"fleet-audit-backend/internal/metrics"
	"fleet-audit-backend/internal/store"
)

const lastSeenLayout = "2006-01-02 15:04:05"

// Writer is the part of the store the poller persists through.
type Writer interface {
	UpsertTelemetry(ctx context.Context, items []store.TelemetryItem) error
	SnapshotDay(ctx context.Context, day time.Time) (int64, error)
}

// Service polls the telemetry feed and keeps the store current.
type Service struct {
	cfg    *config.PollerConfig
	store  Writer
	client *http.Client
	loc    *time.Location
	log    *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	lastDay time.Time
}

// NewService creates a poller writing to w.
func NewService(cfg *config.PollerConfig, w Writer, log *zap.Logger) *Service {
	log = logging.OrNop(log)
	log = log.Named("poller")

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn("invalid proxy url, polling without proxy", zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Warn("unknown timezone, using UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
		} else {
			loc = l
		}
	}

	return &Service{
		cfg:   cfg,
		store: w,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		loc: loc,
		log: log,
		now: time.Now,
	}
}

// Run polls until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("poller is disabled, not starting")
		return
	}
	s.log.Info("starting poller", zap.Duration("interval", s.cfg.Interval))

	if err := s.PollOnce(ctx); err != nil {
		s.log.Error("poll cycle failed", zap.Error(err))
	}

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("poller shutting down")
			return
		case <-timer.C:
			if err := s.PollOnce(ctx); err != nil {
				s.log.Error("poll cycle failed", zap.Error(err))
			}
			timer.Reset(s.cfg.Interval)
		}
	}
}

// PollOnce fetches every page of telemetry and writes it to the store. When the day has
// changed since the previous cycle, that day is archived first so that
// its snapshot holds that day's final counters.
func (s *Service) PollOnce(ctx context.Context) (err error) {
	began := time.Now()
	today := s.localDay(s.now())
	var items []store.TelemetryItem
	defer func() {
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.ObservePoll(result, len(items), time.Since(began))
	}()

	items, fetchErr := s.fetchAll(ctx)
	if fetchErr != nil && len(items) == 0 {
		return fmt.Errorf("poll aborted, nothing fetched: %w", fetchErr)
	}
	if fetchErr != nil {
		s.log.Warn("partial fetch, continuing with retrieved items", zap.Int("items", len(items)), zap.Error(fetchErr))
	}

	for i := range items {
		ts, err := s.parseTimestamp(items[i].LastSeen)
		if err != nil {
			s.log.Warn("could not parse lastSeen", zap.String("device_id", items[i].ID), zap.Error(err))
			continue
		}
		items[i].LastSeenParsed = ts
	}

	if err := s.rollover(ctx, today); err != nil {
		return err
	}

	if err := s.store.UpsertTelemetry(ctx, items); err != nil {
		return fmt.Errorf("failed to store telemetry: %w", err)
	}
	s.log.Info("poll cycle finished", zap.Int("devices", len(items)))
	return nil
}

// localDay is t's calendar date in the configured timezone, expressed as a UTC midnight
// like every other stored date.
func (s *Service) localDay(t time.Time) time.Time {
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) rollover(ctx context.Context, today time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastDay.IsZero() && today.After(s.lastDay) {
		n, err := s.store.SnapshotDay(ctx, s.lastDay)
		if err != nil {
			return fmt.Errorf("failed to archive %s: %w", s.lastDay.Format("2006-01-02"), err)
		}
		metrics.AddSnapshots(int(n))
		s.log.Info("archived daily counters", zap.Time("day", s.lastDay), zap.Int64("devices", n))
	}
	s.lastDay = today
	return nil
}

func (s *Service) fetchAll(ctx context.Context) ([]store.TelemetryItem, error) {
	var all []store.TelemetryItem
	total := 1
	pageSize := s.cfg.Request.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			return all, fmt.Errorf("page %d: %w", page, err)
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		all = append(all, resp.Data.Items...)
		s.log.Debug("fetched page", zap.Int("page", page), zap.Int("total", total), zap.Int("items", len(all)))
	}
	return all, nil
}

// parseTimestamp accepts RFC 3339 or the feed's zoneless layout in the configured timezone.
func (s *Service) parseTimestamp(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, *raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(lastSeenLayout, *raw, s.loc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp %q: %w", *raw, err)
	}
	return &t, nil
}

func (s *Service) fetchPage(ctx context.Context, page int) (*apiResponse, error) {
	payload := make(map[string]any, len(s.cfg.Request.Payload)+2)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal api response: %w", err)
	}
	if apiResp.Code != 0 {
		return nil, fmt.Errorf("API returned non-zero application code: %d", apiResp.Code)
	}
	return &apiResp, nil
}
