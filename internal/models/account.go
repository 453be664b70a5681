package models

import (
	"time"

	"gorm.io/datatypes"
)

// AccountStatus represents the lifecycle state of a panel account.
type AccountStatus = string

// AccountStatus constants define local account lifecycle states. The sync
// executor may mirror additional panel-reported strings into the field.
const (
	// AccountStatusPending marks an account created locally but not yet provisioned.
	AccountStatusPending AccountStatus = "pending"
	// AccountStatusActive marks an account provisioned on the panel.
	AccountStatusActive AccountStatus = "active"
	// AccountStatusSuspended marks an account disabled on the panel.
	AccountStatusSuspended AccountStatus = "suspended"
)

// ProviderXtremeUI is the only panel provider type today.
const ProviderXtremeUI = "xtremeui"

// Account stores one user's IPTV panel account. At most one row per user.
type Account struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID   string `gorm:"type:text;not null;uniqueIndex"`       // External identity provider user ID.
	Email    string `gorm:"type:text"`                            // Email the username was derived from.
	Provider string `gorm:"type:varchar(64);not null;default:''"` // Panel provider tag.

	Username string `gorm:"type:text;not null"` // Panel login name.
	Password string `gorm:"type:text"`          // Panel password, generated when absent.

	PlanID *uint64 `gorm:"index"`             // Assigned plan ID.
	Plan   *Plan   `gorm:"foreignKey:PlanID"` // Assigned plan.

	BouquetIDs datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Assigned bouquet ID list.

	Status AccountStatus `gorm:"type:varchar(64);not null;default:'pending'"` // Lifecycle status.
	M3UURL string        `gorm:"column:m3u_url;type:text"`                    // Derived playlist URL.

	ExpiresAt *time.Time `gorm:"index"` // Panel-side expiry, when known.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
