package model

import "time"

// HistoryEntry is a device's cumulative counters snapshotted at the end of a day (cold table).
// One row per device and date; rows are never updated.
type HistoryEntry struct {
	ID             int64              `gorm:"primaryKey;autoIncrement"`
	DeviceID       string             `gorm:"size:128;not null;uniqueIndex:idx_device_histories_device_date"`
	Date           time.Time          `gorm:"type:date;not null;uniqueIndex:idx_device_histories_device_date"`
	RuntimeMinutes float64            `gorm:"not null;default:0"`
	AppSeconds     map[string]float64 `gorm:"serializer:json"`
	AverageScore   *float64
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName keeps the history table name stable.
func (HistoryEntry) TableName() string {
	return "device_histories"
}
