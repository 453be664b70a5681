package models

import "time"

// Setting stores one runtime configuration value by key.
type Setting struct {
	Key   string `gorm:"type:varchar(255);primaryKey"` // Setting key.
	Value string `gorm:"type:text;not null;default:''"` // Setting value.

	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
