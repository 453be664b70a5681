package models

import (
	"time"

	"gorm.io/datatypes"
)

// JobType identifies the lifecycle operation a job performs.
type JobType = string

// JobType constants define the supported lifecycle operations.
const (
	// JobTypeProvision creates or updates the panel account.
	JobTypeProvision JobType = "provision"
	// JobTypeRenew extends the panel account expiry.
	JobTypeRenew JobType = "renew"
	// JobTypeSuspend disables the panel account.
	JobTypeSuspend JobType = "suspend"
	// JobTypeSync mirrors remote account state locally.
	JobTypeSync JobType = "sync"
	// JobTypeChangePassword rotates the panel password.
	JobTypeChangePassword JobType = "change_password"
	// JobTypeChangePlan reassigns the account's plan and bouquets.
	JobTypeChangePlan JobType = "change_plan"
)

// JobStatus represents the lifecycle state of a queued job.
type JobStatus = string

// JobStatus constants define job lifecycle states.
const (
	// JobStatusPending marks a job awaiting execution or retry.
	JobStatusPending JobStatus = "pending"
	// JobStatusSucceeded marks a job that completed.
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusFailed marks a job that exhausted its attempts.
	JobStatusFailed JobStatus = "failed"
)

// DefaultJobMaxAttempts is the attempt budget applied when enqueueing.
const DefaultJobMaxAttempts = 10

// Job records one durable unit of deferred panel work.
type Job struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Type   JobType `gorm:"type:varchar(64);not null;index"` // Operation name.
	UserID string  `gorm:"type:text;not null;index"`        // Owning user ID.

	Status      JobStatus `gorm:"type:varchar(32);not null;default:'pending';index"` // Current status.
	Attempts    int       `gorm:"not null;default:0"`                                // Attempts made so far.
	MaxAttempts int       `gorm:"not null;default:10"`                               // Attempt budget.

	NextRunAt time.Time      `gorm:"not null;index"`                   // Earliest time the job is due.
	Payload   datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Operation-specific parameters.
	LastError string         `gorm:"type:text"`                        // Most recent failure message.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
