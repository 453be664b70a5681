package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/streamvault/streamvault/internal/billing"
)

// WebhookHandler receives payment status notifications from the billing
// system.
type WebhookHandler struct {
	reactor *billing.Reactor
}

// NewWebhookHandler constructs a webhook handler.
func NewWebhookHandler(reactor *billing.Reactor) *WebhookHandler {
	return &WebhookHandler{reactor: reactor}
}

// billingEventRequest captures one payment status transition.
type billingEventRequest struct {
	UserID    string `json:"user_id"`    // Owning user identifier.
	Email     string `json:"email"`      // User email, when known.
	Status    string `json:"status"`     // New payment status.
	PeriodEnd *int64 `json:"period_end"` // Paid period end epoch, when known.
}

// Billing reacts to a payment status change by enqueueing lifecycle jobs.
// The response only acknowledges receipt; entitlement changes are applied
// asynchronously by the worker.
func (h *WebhookHandler) Billing(c *gin.Context) {
	var body billingEventRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if strings.TrimSpace(body.Status) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	var periodEnd *time.Time
	if body.PeriodEnd != nil && *body.PeriodEnd > 0 {
		at := time.Unix(*body.PeriodEnd, 0).UTC()
		periodEnd = &at
	}

	if errReact := h.reactor.OnPaymentStatusChanged(c.Request.Context(), body.UserID, body.Email, body.Status, periodEnd); errReact != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "process event failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
