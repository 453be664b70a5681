package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/streamvault/streamvault/internal/models"
	internalsettings "github.com/streamvault/streamvault/internal/settings"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProvisionPayload carries optional overrides for a provision job. The
// username always comes from the account row at execution time.
type ProvisionPayload struct {
	PlanID     *uint64  `json:"plan_id,omitempty"`     // Plan to assign.
	BouquetIDs []string `json:"bouquet_ids,omitempty"` // Explicit bouquet override.
	ExpiresAt  *int64   `json:"expires_at,omitempty"`  // Desired expiry epoch.
}

// RenewPayload carries the desired expiry for a renew job.
type RenewPayload struct {
	ExpiresAt int64 `json:"expires_at"` // Desired expiry epoch; 0 derives from the plan.
}

// ChangePasswordPayload carries the new password for a change-password job.
type ChangePasswordPayload struct {
	NewPassword string `json:"new_password"` // Replacement panel password.
}

// ChangePlanPayload carries the target plan for a change-plan job.
type ChangePlanPayload struct {
	PlanID uint64 `json:"plan_id"` // Plan to switch to.
}

// Enqueue inserts a pending job and returns immediately. It never calls
// the panel synchronously; the worker loop picks the job up once runAt has
// passed. A maxAttempts of zero uses the configured default budget.
func Enqueue(ctx context.Context, conn *gorm.DB, jobType, userID string, payload any, maxAttempts int, runAt time.Time) (*models.Job, error) {
	if conn == nil {
		return nil, fmt.Errorf("jobs: nil connection")
	}
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return nil, fmt.Errorf("jobs: empty job type")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("jobs: empty user id")
	}

	encoded := []byte("{}")
	if payload != nil {
		data, errMarshal := json.Marshal(payload)
		if errMarshal != nil {
			return nil, fmt.Errorf("jobs: marshal payload: %w", errMarshal)
		}
		encoded = data
	}

	if maxAttempts <= 0 {
		maxAttempts = internalsettings.GetInt(ctx, conn, internalsettings.JobMaxAttemptsKey, models.DefaultJobMaxAttempts)
	}
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}

	job := models.Job{
		Type:        jobType,
		UserID:      userID,
		Status:      models.JobStatusPending,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		NextRunAt:   runAt.UTC(),
		Payload:     datatypes.JSON(encoded),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if errCreate := conn.WithContext(ctx).Create(&job).Error; errCreate != nil {
		return nil, fmt.Errorf("jobs: enqueue %s: %w", jobType, errCreate)
	}
	return &job, nil
}

// ListByUser returns a user's jobs, newest first.
func ListByUser(ctx context.Context, conn *gorm.DB, userID string, limit int) ([]models.Job, error) {
	if conn == nil {
		return nil, fmt.Errorf("jobs: nil connection")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []models.Job
	if errFind := conn.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("jobs: list: %w", errFind)
	}
	return rows, nil
}
