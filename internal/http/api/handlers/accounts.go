package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/streamvault/streamvault/internal/accounts"
	"github.com/streamvault/streamvault/internal/jobs"
	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

// AccountHandler exposes account lifecycle endpoints. Every mutating
// endpoint only enqueues a job; the worker applies the change against the
// panel asynchronously.
type AccountHandler struct {
	db       *gorm.DB
	accounts *accounts.Service
}

// NewAccountHandler constructs an account handler.
func NewAccountHandler(db *gorm.DB, accountService *accounts.Service) *AccountHandler {
	return &AccountHandler{db: db, accounts: accountService}
}

// provisionRequest captures the payload for requesting provisioning.
type provisionRequest struct {
	UserID    string  `json:"user_id"`    // Owning user identifier.
	Email     string  `json:"email"`      // Email used to derive a username.
	Username  string  `json:"username"`   // Optional explicit username.
	PlanID    *uint64 `json:"plan_id"`    // Optional plan to assign.
	ExpiresAt *int64  `json:"expires_at"` // Optional expiry epoch override.
}

// Provision ensures an account row exists and enqueues a provision job.
func (h *AccountHandler) Provision(c *gin.Context) {
	var body provisionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	ctx := c.Request.Context()
	account, errAccount := h.accounts.GetOrCreate(ctx, body.UserID, body.Email, body.Username)
	if errAccount != nil {
		if errors.Is(errAccount, accounts.ErrNoUsableUsername) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username or email is required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create account failed"})
		return
	}

	if body.PlanID != nil {
		if _, errPlan := h.accounts.GetPlan(ctx, *body.PlanID); errPlan != nil {
			if errors.Is(errPlan, accounts.ErrPlanNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
	}

	payload := jobs.ProvisionPayload{
		PlanID:    body.PlanID,
		ExpiresAt: body.ExpiresAt,
	}
	job, errEnqueue := jobs.Enqueue(ctx, h.db, models.JobTypeProvision, account.UserID, payload, 0, time.Time{})
	if errEnqueue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "account": formatAccount(account)})
}

// Get returns the account state for a user, including the playlist URL.
func (h *AccountHandler) Get(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	account, errAccount := h.accounts.Get(c.Request.Context(), userID)
	if errAccount != nil {
		if errors.Is(errAccount, accounts.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatAccount(account))
}

// List returns accounts matching optional search and status filters.
func (h *AccountHandler) List(c *gin.Context) {
	limit := 0
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		parsed, errParse := strconv.Atoi(rawLimit)
		if errParse != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	rows, errSearch := h.accounts.SearchAccounts(c.Request.Context(), c.Query("search"), c.Query("status"), limit)
	if errSearch != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list accounts failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatAccount(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

// syncRequest captures the payload for requesting a panel sync.
type syncRequest struct {
	UserID string `json:"user_id"` // Owning user identifier.
}

// Sync enqueues a sync job for an existing account.
func (h *AccountHandler) Sync(c *gin.Context) {
	var body syncRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	h.enqueueForExisting(c, body.UserID, models.JobTypeSync, nil)
}

// renewRequest captures the payload for requesting a renewal.
type renewRequest struct {
	UserID    string `json:"user_id"`    // Owning user identifier.
	ExpiresAt int64  `json:"expires_at"` // Desired expiry epoch; 0 derives from the plan.
}

// Renew enqueues a renew job for an existing account.
func (h *AccountHandler) Renew(c *gin.Context) {
	var body renewRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	h.enqueueForExisting(c, body.UserID, models.JobTypeRenew, jobs.RenewPayload{ExpiresAt: body.ExpiresAt})
}

// suspendRequest captures the payload for requesting a suspension.
type suspendRequest struct {
	UserID string `json:"user_id"` // Owning user identifier.
}

// Suspend enqueues a suspend job for an existing account.
func (h *AccountHandler) Suspend(c *gin.Context) {
	var body suspendRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	h.enqueueForExisting(c, body.UserID, models.JobTypeSuspend, nil)
}

// changePasswordRequest captures the payload for a password rotation.
type changePasswordRequest struct {
	UserID      string `json:"user_id"`      // Owning user identifier.
	NewPassword string `json:"new_password"` // Replacement panel password.
}

// ChangePassword validates the new password and enqueues the rotation.
// Validation happens here so an unusable password never produces a job.
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.NewPassword) < accounts.MinPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": accounts.ErrPasswordTooShort.Error()})
		return
	}
	h.enqueueForExisting(c, body.UserID, models.JobTypeChangePassword, jobs.ChangePasswordPayload{NewPassword: body.NewPassword})
}

// changePlanRequest captures the payload for a plan switch.
type changePlanRequest struct {
	UserID string `json:"user_id"` // Owning user identifier.
	PlanID uint64 `json:"plan_id"` // Plan to switch to.
}

// ChangePlan validates the target plan and enqueues the switch.
func (h *AccountHandler) ChangePlan(c *gin.Context) {
	var body changePlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.PlanID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "plan_id is required"})
		return
	}
	if _, errPlan := h.accounts.GetPlan(c.Request.Context(), body.PlanID); errPlan != nil {
		if errors.Is(errPlan, accounts.ErrPlanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "plan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	h.enqueueForExisting(c, body.UserID, models.JobTypeChangePlan, jobs.ChangePlanPayload{PlanID: body.PlanID})
}

// enqueueForExisting enqueues a job for a user that must already have an
// account.
func (h *AccountHandler) enqueueForExisting(c *gin.Context, userID, jobType string, payload any) {
	if strings.TrimSpace(userID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	ctx := c.Request.Context()
	if _, errAccount := h.accounts.Get(ctx, userID); errAccount != nil {
		if errors.Is(errAccount, accounts.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	job, errEnqueue := jobs.Enqueue(ctx, h.db, jobType, strings.TrimSpace(userID), payload, 0, time.Time{})
	if errEnqueue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// formatAccount converts an account model into a response payload. The
// password appears here intentionally: subscribers need it to sign in to
// player apps that do not accept a playlist URL.
func formatAccount(a *models.Account) gin.H {
	out := gin.H{
		"user_id":     a.UserID,
		"email":       a.Email,
		"provider":    a.Provider,
		"username":    a.Username,
		"password":    a.Password,
		"status":      a.Status,
		"bouquet_ids": accounts.DecodeBouquets(a.BouquetIDs),
		"m3u_url":     a.M3UURL,
		"created_at":  a.CreatedAt,
		"updated_at":  a.UpdatedAt,
	}
	if a.PlanID != nil {
		out["plan_id"] = *a.PlanID
	}
	if a.Plan != nil {
		out["plan_name"] = a.Plan.Name
	}
	if a.ExpiresAt != nil {
		out["expires_at"] = a.ExpiresAt
	}
	return out
}
