package model

import "time"

// Facility is a site holding devices, placed in a sub-region and region.
type Facility struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:128;not null"`
	Subregion string    `gorm:"index;size:128;not null;default:''"`
	Region    string    `gorm:"index;size:128;not null;default:''"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
