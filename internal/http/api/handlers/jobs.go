package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/streamvault/streamvault/internal/jobs"
	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

// JobHandler exposes read-only job inspection endpoints.
type JobHandler struct {
	db *gorm.DB // Database handle for job records.
}

// NewJobHandler constructs a job handler.
func NewJobHandler(db *gorm.DB) *JobHandler {
	return &JobHandler{db: db}
}

// List returns a user's jobs, newest first.
func (h *JobHandler) List(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	limit := 0
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		parsed, errParse := strconv.Atoi(rawLimit)
		if errParse != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	rows, errList := jobs.ListByUser(c.Request.Context(), h.db, userID, limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list jobs failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatJob(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

// formatJob converts a job model into a response payload.
func formatJob(j *models.Job) gin.H {
	return gin.H{
		"id":           j.ID,
		"type":         j.Type,
		"user_id":      j.UserID,
		"status":       j.Status,
		"attempts":     j.Attempts,
		"max_attempts": j.MaxAttempts,
		"next_run_at":  j.NextRunAt,
		"last_error":   j.LastError,
		"created_at":   j.CreatedAt,
		"updated_at":   j.UpdatedAt,
	}
}
