package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/streamvault/streamvault/internal/accounts"
	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

// PlanHandler manages CRUD endpoints for plans.
type PlanHandler struct {
	db       *gorm.DB // Database handle for plan records.
	accounts *accounts.Service
}

// NewPlanHandler constructs a plan handler.
func NewPlanHandler(db *gorm.DB, accountService *accounts.Service) *PlanHandler {
	return &PlanHandler{db: db, accounts: accountService}
}

// createPlanRequest captures the payload for creating a plan.
type createPlanRequest struct {
	Name         string   `json:"name"`          // Plan name.
	Description  string   `json:"description"`   // Plan description.
	BouquetIDs   []string `json:"bouquet_ids"`   // Bouquet IDs granted by the plan.
	DurationDays int      `json:"duration_days"` // Subscription length in days.
	PriceRef     string   `json:"price_ref"`     // External billing price reference.
}

// Create validates input and inserts a new plan.
func (h *PlanHandler) Create(c *gin.Context) {
	var body createPlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	if body.DurationDays < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration_days cannot be negative"})
		return
	}

	now := time.Now().UTC()
	plan := models.Plan{
		Name:         strings.TrimSpace(body.Name),
		Description:  body.Description,
		BouquetIDs:   accounts.EncodeBouquets(body.BouquetIDs),
		DurationDays: body.DurationDays,
		PriceRef:     strings.TrimSpace(body.PriceRef),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&plan).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create plan failed"})
		return
	}
	c.JSON(http.StatusCreated, h.formatPlan(&plan))
}

// List returns all plans, optionally filtered to those granting a bouquet.
func (h *PlanHandler) List(c *gin.Context) {
	var rows []models.Plan
	if bouquetID := strings.TrimSpace(c.Query("bouquet_id")); bouquetID != "" {
		filtered, errFilter := h.accounts.PlansWithBouquet(c.Request.Context(), bouquetID)
		if errFilter != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
			return
		}
		rows = filtered
	} else if errFind := h.db.WithContext(c.Request.Context()).
		Order("created_at DESC, id DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list plans failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, h.formatPlan(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

// Get fetches a plan by ID.
func (h *PlanHandler) Get(c *gin.Context) {
	id, ok := parsePlanID(c)
	if !ok {
		return
	}
	var plan models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).First(&plan, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatPlan(&plan))
}

// updatePlanRequest captures optional fields for plan updates.
type updatePlanRequest struct {
	Name         *string   `json:"name"`          // Optional name update.
	Description  *string   `json:"description"`   // Optional description.
	BouquetIDs   *[]string `json:"bouquet_ids"`   // Optional bouquet replacement.
	DurationDays *int      `json:"duration_days"` // Optional subscription length.
	PriceRef     *string   `json:"price_ref"`     // Optional billing price reference.
}

// Update validates and applies plan field updates. Accounts already carrying
// the plan keep their recorded bouquets until their next provision or plan
// change job.
func (h *PlanHandler) Update(c *gin.Context) {
	id, ok := parsePlanID(c)
	if !ok {
		return
	}
	var body updatePlanRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var existing models.Plan
	if errFind := h.db.WithContext(c.Request.Context()).First(&existing, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	updates := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		updates["name"] = name
	}
	if body.Description != nil {
		updates["description"] = *body.Description
	}
	if body.BouquetIDs != nil {
		updates["bouquet_ids"] = accounts.EncodeBouquets(*body.BouquetIDs)
	}
	if body.DurationDays != nil {
		if *body.DurationDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duration_days cannot be negative"})
			return
		}
		updates["duration_days"] = *body.DurationDays
	}
	if body.PriceRef != nil {
		updates["price_ref"] = strings.TrimSpace(*body.PriceRef)
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Plan{}).
		Where("id = ?", id).Updates(updates).Error; errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a plan unless accounts still reference it.
func (h *PlanHandler) Delete(c *gin.Context) {
	id, ok := parsePlanID(c)
	if !ok {
		return
	}
	errDelete := h.accounts.DeletePlan(c.Request.Context(), id)
	switch {
	case errDelete == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(errDelete, accounts.ErrPlanInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "plan is referenced by existing accounts"})
	case errors.Is(errDelete, accounts.ErrPlanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
	}
}

// parsePlanID extracts the :id path parameter, replying 400 on garbage.
func parsePlanID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// formatPlan converts a plan model into a response payload.
func (h *PlanHandler) formatPlan(p *models.Plan) gin.H {
	return gin.H{
		"id":            p.ID,
		"name":          p.Name,
		"description":   p.Description,
		"bouquet_ids":   accounts.DecodeBouquets(p.BouquetIDs),
		"duration_days": p.DurationDays,
		"price_ref":     p.PriceRef,
		"created_at":    p.CreatedAt,
		"updated_at":    p.UpdatedAt,
	}
}
