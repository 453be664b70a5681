package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streamvault/streamvault/internal/accounts"
	"github.com/streamvault/streamvault/internal/billing"
	"github.com/streamvault/streamvault/internal/http/api/handlers"
	"github.com/streamvault/streamvault/internal/ratelimit"
	"gorm.io/gorm"
)

// RegisterRoutes registers all HTTP routes and handlers.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, accountService *accounts.Service, reactor *billing.Reactor) {
	if r == nil || db == nil {
		return
	}

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, errDB := db.DB()
		if errDB != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	limiter := ratelimit.NewManager(ratelimit.NewDBSettingsProvider(db), nil, nil)
	v0 := r.Group("/v0")
	v0.Use(ratelimit.Middleware(limiter))

	accountHandler := handlers.NewAccountHandler(db, accountService)
	v0.POST("/accounts/provision", accountHandler.Provision)
	v0.POST("/accounts/sync", accountHandler.Sync)
	v0.POST("/accounts/renew", accountHandler.Renew)
	v0.POST("/accounts/suspend", accountHandler.Suspend)
	v0.POST("/accounts/password", accountHandler.ChangePassword)
	v0.POST("/accounts/plan", accountHandler.ChangePlan)
	v0.GET("/accounts", accountHandler.List)
	v0.GET("/accounts/:user_id", accountHandler.Get)

	jobHandler := handlers.NewJobHandler(db)
	v0.GET("/jobs", jobHandler.List)

	planHandler := handlers.NewPlanHandler(db, accountService)
	v0.POST("/plans", planHandler.Create)
	v0.GET("/plans", planHandler.List)
	v0.GET("/plans/:id", planHandler.Get)
	v0.PUT("/plans/:id", planHandler.Update)
	v0.DELETE("/plans/:id", planHandler.Delete)

	configHandler := handlers.NewConfigHandler(db)
	v0.GET("/config/status", configHandler.Status)
	v0.PUT("/config/panel", configHandler.UpdatePanel)

	webhookHandler := handlers.NewWebhookHandler(reactor)
	v0.POST("/webhooks/billing", webhookHandler.Billing)
}
