package model

import "time"

// Device is the latest telemetry reported by one endpoint (hot table).
type Device struct {
	ID           string     `gorm:"primaryKey;size:128"` // Upstream device identifier
	Name         string     `gorm:"size:256;not null;default:''"`
	Region       string     `gorm:"index;size:128;not null;default:''"`
	Subregion    string     `gorm:"index;size:128;not null;default:''"`
	FacilityName string     `gorm:"index;size:128;not null;default:''"`
	Status       string     `gorm:"size:16;not null;default:'offline'"`
	LastSeen     *time.Time `gorm:"index"`
	Defective    bool       `gorm:"not null;default:false"`

	RuntimeMinutes float64            `gorm:"not null;default:0"`
	AppSeconds     map[string]float64 `gorm:"serializer:json"`

	AveragePerformance *float64
	AverageScore       *float64
	CPUScore           *float64

	CreatedAt time.Time
	UpdatedAt time.Time
}
