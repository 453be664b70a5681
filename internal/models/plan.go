package models

import (
	"time"

	"gorm.io/datatypes"
)

// Plan represents a reusable bundle of bouquets and a subscription duration.
type Plan struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:varchar(255);not null"` // Plan name.
	Description string `gorm:"type:text"`                  // Plan description.

	BouquetIDs   datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Bouquet IDs granted by the plan.
	DurationDays int            `gorm:"not null;default:0"`               // Subscription length in days.

	PriceRef string `gorm:"type:text"` // External billing price reference.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
