package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleet-audit-backend/internal/fleet"
	"fleet-audit-backend/internal/logging"
	"fleet-audit-backend/internal/model"
	"fleet-audit-backend/internal/parse"
)

const upsertBatchSize = 500

// Store defines the interface for all database operations.
type Store interface {
	UpsertTelemetry(ctx context.Context, items []TelemetryItem) error
	SnapshotDay(ctx context.Context, day time.Time) (int64, error)

	Facilities(ctx context.Context, regions []string) ([]fleet.Facility, error)
	Devices(ctx context.Context, filter DeviceFilter) ([]fleet.Device, error)
	Device(ctx context.Context, id string) (fleet.Device, error)
	History(ctx context.Context, deviceIDs []string, from, to time.Time) (map[string][]fleet.HistoryEntry, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, log *zap.Logger) Store {
	log = logging.OrNop(log)
	return &gormStore{db: db, log: log}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertTelemetry writes facility metadata and the latest device counters in one transaction.
func (s *gormStore) UpsertTelemetry(ctx context.Context, items []TelemetryItem) error {
	facilities := make(map[string]model.Facility)
	devices := make([]model.Device, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		if item.ID == "" {
			s.log.Warn("skipping telemetry item without device id", zap.String("name", item.Name))
			continue
		}
		if _, dup := seen[item.ID]; dup {
			s.log.Warn("duplicate device in telemetry batch, keeping first", zap.String("device_id", item.ID))
			continue
		}
		seen[item.ID] = struct{}{}

		loc := parse.ResolveLocation(item.Region, item.Subregion, item.Facility, item.Location)
		if loc.Facility != "" {
			if _, exists := facilities[loc.Facility]; !exists {
				facilities[loc.Facility] = model.Facility{Name: loc.Facility, Subregion: loc.Subregion, Region: loc.Region}
			}
		}
		devices = append(devices, prepareDevice(item, loc))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(facilities) > 0 {
			facilityList := make([]model.Facility, 0, len(facilities))
			for _, f := range facilities {
				facilityList = append(facilityList, f)
			}
			s.log.Debug("upserting facilities", zap.Int("count", len(facilityList)))
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"subregion", "region", "updated_at"}),
			}).Create(&facilityList).Error; err != nil {
				return fmt.Errorf("batch upsert facilities failed: %w", err)
			}
		}

		if len(devices) == 0 {
			return nil
		}
		s.log.Debug("upserting devices", zap.Int("count", len(devices)))
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "region", "subregion", "facility_name", "status", "last_seen",
				"defective", "runtime_minutes", "app_seconds",
				"average_performance", "average_score", "cpu_score", "updated_at",
			}),
		}).CreateInBatches(&devices, upsertBatchSize).Error; err != nil {
			return fmt.Errorf("batch upsert devices failed: %w", err)
		}
		return nil
	})
}

// SnapshotDay archives every device's counters as the history entry for day. Existing
// entries for that day are left untouched, so the call is safe to repeat.
func (s *gormStore) SnapshotDay(ctx context.Context, day time.Time) (int64, error) {
	var devices []model.Device
	if err := s.db.WithContext(ctx).Find(&devices).Error; err != nil {
		return 0, fmt.Errorf("failed to fetch devices for snapshot: %w", err)
	}
	if len(devices) == 0 {
		return 0, nil
	}

	date := fleet.Day(day)
	entries := make([]model.HistoryEntry, len(devices))
	for i, d := range devices {
		entries[i] = model.HistoryEntry{
			DeviceID:       d.ID,
			Date:           date,
			RuntimeMinutes: d.RuntimeMinutes,
			AppSeconds:     d.AppSeconds,
			AverageScore:   snapshotScore(d),
		}
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&entries, upsertBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to archive history for %s: %w", date.Format("2006-01-02"), res.Error)
	}
	return res.RowsAffected, nil
}

// Facilities lists facility metadata, optionally restricted to regions.
func (s *gormStore) Facilities(ctx context.Context, regions []string) ([]fleet.Facility, error) {
	q := s.db.WithContext(ctx).Model(&model.Facility{})
	q = whereIn(q, "region", regions)

	var rows []model.Facility
	if err := q.Order("region, subregion, name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list facilities: %w", err)
	}

	out := make([]fleet.Facility, len(rows))
	for i, f := range rows {
		out[i] = fleet.Facility{Name: f.Name, Subregion: f.Subregion, Region: f.Region}
	}
	return out, nil
}

// Devices lists devices matching filter, ordered by facility then name.
func (s *gormStore) Devices(ctx context.Context, filter DeviceFilter) ([]fleet.Device, error) {
	q := s.db.WithContext(ctx).Model(&model.Device{})
	q = whereIn(q, "region", filter.Regions)
	q = whereIn(q, "subregion", filter.Subregions)
	q = whereIn(q, "facility_name", filter.Facilities)
	if len(filter.IDs) > 0 {
		q = q.Where("id IN ?", filter.IDs)
	}

	var rows []model.Device
	if err := q.Order("facility_name, name, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	out := make([]fleet.Device, len(rows))
	for i, d := range rows {
		out[i] = toDevice(d)
	}
	return out, nil
}

// Device returns one device or ErrNotFound.
func (s *gormStore) Device(ctx context.Context, id string) (fleet.Device, error) {
	var row model.Device
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fleet.Device{}, fmt.Errorf("device %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return fleet.Device{}, fmt.Errorf("failed to fetch device %q: %w", id, err)
	}
	return toDevice(row), nil
}

// History returns the entries of each device between from and to inclusive (zero bounds are open),
// ordered by date ascending.
func (s *gormStore) History(ctx context.Context, deviceIDs []string, from, to time.Time) (map[string][]fleet.HistoryEntry, error) {
	out := make(map[string][]fleet.HistoryEntry, len(deviceIDs))
	if len(deviceIDs) == 0 {
		return out, nil
	}

	q := s.db.WithContext(ctx).Where("device_id IN ?", deviceIDs)
	if !from.IsZero() {
		q = q.Where("date >= ?", fleet.Day(from))
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", fleet.Day(to))
	}

	var rows []model.HistoryEntry
	if err := q.Order("device_id, date").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}

	for _, h := range rows {
		out[h.DeviceID] = append(out[h.DeviceID], fleet.HistoryEntry{
			DeviceID:       h.DeviceID,
			Date:           fleet.Day(h.Date),
			RuntimeMinutes: h.RuntimeMinutes,
			AppSeconds:     h.AppSeconds,
			AverageScore:   h.AverageScore,
		})
	}
	return out, nil
}

// whereIn filters column by values; fleet.UnknownKey also matches blank columns.
func whereIn(q *gorm.DB, column string, values []string) *gorm.DB {
	if len(values) == 0 {
		return q
	}
	named := make([]string, 0, len(values))
	unknown := false
	for _, v := range values {
		if v == fleet.UnknownKey {
			unknown = true
			continue
		}
		named = append(named, v)
	}
	switch {
	case unknown && len(named) > 0:
		return q.Where("("+column+" IN ? OR "+column+" = '')", named)
	case unknown:
		return q.Where(column + " = ''")
	default:
		return q.Where(column+" IN ?", named)
	}
}

func prepareDevice(item TelemetryItem, loc parse.Location) model.Device {
	status := string(fleet.StatusOffline)
	if parse.IsOnlineFlag(item.Status) {
		status = string(fleet.StatusOnline)
	}

	var lastSeen *time.Time
	if item.LastSeenParsed != nil {
		ts := item.LastSeenParsed.UTC()
		lastSeen = &ts
	}

	return model.Device{
		ID:             item.ID,
		Name:           parse.CleanName(item.Name),
		Region:         loc.Region,
		Subregion:      loc.Subregion,
		FacilityName:   loc.Facility,
		Status:         status,
		LastSeen:       lastSeen,
		Defective:      item.Defective != nil && *item.Defective,
		RuntimeMinutes: item.RuntimeMinutes,
		AppSeconds:     item.AppSeconds,

		AveragePerformance: item.AveragePerformance,
		AverageScore:       item.AverageScore,
		CPUScore:           item.CPUScore,
	}
}

func toDevice(d model.Device) fleet.Device {
	return fleet.Device{
		ID:             d.ID,
		Name:           d.Name,
		Region:         d.Region,
		Subregion:      d.Subregion,
		Facility:       d.FacilityName,
		Status:         fleet.Status(d.Status),
		LastSeen:       d.LastSeen,
		RuntimeMinutes: d.RuntimeMinutes,
		AppSeconds:     d.AppSeconds,
		Defective:      d.Defective,

		AveragePerformance: d.AveragePerformance,
		AverageScore:       d.AverageScore,
		CPUScore:           d.CPUScore,
	}
}

// snapshotScore is the device's resolved score at archive time, nil when it reports none.
func snapshotScore(d model.Device) *float64 {
	score, ok := toDevice(d).Score()
	if !ok {
		return nil
	}
	return &score
}
