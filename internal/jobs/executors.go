package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/streamvault/streamvault/internal/accounts"
	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/panel"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Executors holds one handler per job type. Every executor loads the
// current panel config first, re-reads the account's current state rather
// than trusting enqueue-time data, and applies local changes only after
// the panel call succeeded.
type Executors struct {
	db       *gorm.DB
	accounts *accounts.Service
	panel    *panel.Client
}

// NewExecutors constructs the executor set.
func NewExecutors(db *gorm.DB, accountService *accounts.Service, panelClient *panel.Client) *Executors {
	return &Executors{db: db, accounts: accountService, panel: panelClient}
}

// dispatchTable maps job types to executor funcs.
func (e *Executors) dispatchTable() map[string]ExecutorFunc {
	return map[string]ExecutorFunc{
		models.JobTypeProvision:      e.Provision,
		models.JobTypeRenew:          e.Renew,
		models.JobTypeSuspend:        e.Suspend,
		models.JobTypeSync:           e.Sync,
		models.JobTypeChangePassword: e.ChangePassword,
		models.JobTypeChangePlan:     e.ChangePlan,
	}
}

// Provision creates or updates the panel account and activates it locally.
func (e *Executors) Provision(ctx context.Context, job *models.Job) error {
	cfg, errConfig := panel.LoadConfig(ctx, e.db)
	if errConfig != nil {
		return errConfig
	}

	account, errAccount := e.accounts.Get(ctx, job.UserID)
	if errAccount != nil {
		return errAccount
	}

	var payload ProvisionPayload
	if errUnmarshal := json.Unmarshal(job.Payload, &payload); errUnmarshal != nil {
		return fmt.Errorf("jobs: provision payload: %w", errUnmarshal)
	}

	planID := payload.PlanID
	if planID == nil {
		planID = account.PlanID
	}
	var plan *models.Plan
	if planID != nil {
		loaded, errPlan := e.accounts.GetPlan(ctx, *planID)
		if errPlan != nil {
			return errPlan
		}
		plan = loaded
	}

	// Effective bouquets: explicit payload override, else the plan's,
	// else whatever the account already has.
	bouquetIDs := payload.BouquetIDs
	if bouquetIDs == nil && plan != nil {
		bouquetIDs = accounts.DecodeBouquets(plan.BouquetIDs)
	}
	if bouquetIDs == nil {
		bouquetIDs = accounts.DecodeBouquets(account.BouquetIDs)
	}

	var expiresAt *time.Time
	if payload.ExpiresAt != nil && *payload.ExpiresAt > 0 {
		at := time.Unix(*payload.ExpiresAt, 0).UTC()
		expiresAt = &at
	} else if plan != nil && plan.DurationDays > 0 {
		at := time.Now().UTC().AddDate(0, 0, plan.DurationDays)
		expiresAt = &at
	}

	if errPassword := e.accounts.EnsurePassword(ctx, account); errPassword != nil {
		return errPassword
	}

	if _, errUpsert := e.panel.UpsertUser(ctx, cfg, panel.UpsertParams{
		Username:   account.Username,
		Password:   account.Password,
		BouquetIDs: bouquetIDs,
		ExpiresAt:  expiresAt,
	}); errUpsert != nil {
		return errUpsert
	}

	return e.accounts.ApplyProvisionResult(ctx, account, planID, bouquetIDs, expiresAt, cfg.StreamBaseURL)
}

// Renew extends the panel expiry and mirrors it locally.
func (e *Executors) Renew(ctx context.Context, job *models.Job) error {
	cfg, errConfig := panel.LoadConfig(ctx, e.db)
	if errConfig != nil {
		return errConfig
	}

	account, errAccount := e.accounts.Get(ctx, job.UserID)
	if errAccount != nil {
		return errAccount
	}

	var payload RenewPayload
	if errUnmarshal := json.Unmarshal(job.Payload, &payload); errUnmarshal != nil {
		return fmt.Errorf("jobs: renew payload: %w", errUnmarshal)
	}

	var expiresAt time.Time
	if payload.ExpiresAt > 0 {
		expiresAt = time.Unix(payload.ExpiresAt, 0).UTC()
	} else {
		durationDays := 30
		if account.PlanID != nil {
			if plan, errPlan := e.accounts.GetPlan(ctx, *account.PlanID); errPlan == nil && plan.DurationDays > 0 {
				durationDays = plan.DurationDays
			}
		}
		expiresAt = time.Now().UTC().AddDate(0, 0, durationDays)
	}

	if _, errRenew := e.panel.Renew(ctx, cfg, account.Username, expiresAt); errRenew != nil {
		return errRenew
	}
	return e.accounts.ApplyRenew(ctx, account, &expiresAt)
}

// Suspend disables the panel account and marks it suspended locally.
func (e *Executors) Suspend(ctx context.Context, job *models.Job) error {
	cfg, errConfig := panel.LoadConfig(ctx, e.db)
	if errConfig != nil {
		return errConfig
	}

	account, errAccount := e.accounts.Get(ctx, job.UserID)
	if errAccount != nil {
		return errAccount
	}

	if _, errSuspend := e.panel.Suspend(ctx, cfg, account.Username); errSuspend != nil {
		return errSuspend
	}
	return e.accounts.ApplySuspend(ctx, account)
}

// Sync mirrors remote account state locally, best effort, and always
// refreshes the playlist URL from the authoritative stream base.
func (e *Executors) Sync(ctx context.Context, job *models.Job) error {
	cfg, errConfig := panel.LoadConfig(ctx, e.db)
	if errConfig != nil {
		return errConfig
	}

	account, errAccount := e.accounts.Get(ctx, job.UserID)
	if errAccount != nil {
		return errAccount
	}

	info, errInfo := e.panel.AccountInfo(ctx, cfg, account.Username)
	if errInfo != nil {
		// No additional info available; not a sync failure.
		log.WithError(errInfo).Warnf("sync: no remote info for %s", account.Username)
	} else if info != nil {
		applied, errMirror := e.accounts.MirrorRemoteStatus(ctx, account, info.Status, info.ExpiresAt)
		if errMirror != nil {
			return errMirror
		}
		if !applied && info.Status != "" {
			log.Warnf("sync: dropping unrecognized remote status %q for %s", info.Status, account.Username)
		}
	}

	return e.accounts.RefreshM3U(ctx, account, cfg.StreamBaseURL)
}

// ChangePassword rotates the panel password and refreshes the playlist URL.
func (e *Executors) ChangePassword(ctx context.Context, job *models.Job) error {
	var payload ChangePasswordPayload
	if errUnmarshal := json.Unmarshal(job.Payload, &payload); errUnmarshal != nil {
		return fmt.Errorf("jobs: change password payload: %w", errUnmarshal)
	}
	if len(payload.NewPassword) < accounts.MinPasswordLength {
		return accounts.ErrPasswordTooShort
	}

	cfg, errConfig := panel.LoadConfig(ctx, e.db)
	if errConfig != nil {
		return errConfig
	}

	account, errAccount := e.accounts.Get(ctx, job.UserID)
	if errAccount != nil {
		return errAccount
	}

	if _, errEdit := e.panel.EditUser(ctx, cfg, panel.UpsertParams{
		Username: account.Username,
		Password: payload.NewPassword,
	}); errEdit != nil {
		return errEdit
	}
	return e.accounts.ApplyPasswordChange(ctx, account, payload.NewPassword, cfg.StreamBaseURL)
}

// ChangePlan reassigns the account's plan and bouquet set.
func (e *Executors) ChangePlan(ctx context.Context, job *models.Job) error {
	var payload ChangePlanPayload
	if errUnmarshal := json.Unmarshal(job.Payload, &payload); errUnmarshal != nil {
		return fmt.Errorf("jobs: change plan payload: %w", errUnmarshal)
	}
	if payload.PlanID == 0 {
		return fmt.Errorf("jobs: change plan: missing plan id")
	}

	cfg, errConfig := panel.LoadConfig(ctx, e.db)
	if errConfig != nil {
		return errConfig
	}

	account, errAccount := e.accounts.Get(ctx, job.UserID)
	if errAccount != nil {
		return errAccount
	}

	plan, errPlan := e.accounts.GetPlan(ctx, payload.PlanID)
	if errPlan != nil {
		return errPlan
	}
	bouquetIDs := accounts.DecodeBouquets(plan.BouquetIDs)

	if _, errEdit := e.panel.EditUser(ctx, cfg, panel.UpsertParams{
		Username:   account.Username,
		BouquetIDs: bouquetIDs,
	}); errEdit != nil {
		return errEdit
	}
	return e.accounts.ApplyPlanChange(ctx, account, plan.ID, bouquetIDs)
}
