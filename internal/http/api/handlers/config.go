package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/streamvault/streamvault/internal/panel"
	internalsettings "github.com/streamvault/streamvault/internal/settings"
	"gorm.io/gorm"
)

// ConfigHandler exposes panel connection settings. Reads never touch the
// network and never return the API key itself.
type ConfigHandler struct {
	db *gorm.DB // Database handle for settings.
}

// NewConfigHandler constructs a config handler.
func NewConfigHandler(db *gorm.DB) *ConfigHandler {
	return &ConfigHandler{db: db}
}

// Status reports which panel settings are present. It answers from the
// database alone so it stays fast even when the panel is unreachable.
func (h *ConfigHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	cfg, errLoad := panel.LoadConfig(ctx, h.db)
	if errLoad != nil {
		if missing, ok := errLoad.(*panel.MissingConfigError); ok {
			c.JSON(http.StatusOK, gin.H{
				"configured": false,
				"missing":    missing.Missing,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load settings failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"configured":      true,
		"base_url":        cfg.BaseURL,
		"api_key_set":     true,
		"stream_base_url": cfg.StreamBaseURL,
	})
}

// updatePanelRequest captures optional panel setting updates.
type updatePanelRequest struct {
	BaseURL       *string `json:"base_url"`        // Optional panel API base URL.
	APIKey        *string `json:"api_key"`         // Optional panel API key.
	StreamBaseURL *string `json:"stream_base_url"` // Optional playlist base URL.
}

// UpdatePanel writes panel connection settings. Changes take effect on the
// next job execution without a restart.
func (h *ConfigHandler) UpdatePanel(c *gin.Context) {
	var body updatePanelRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.BaseURL == nil && body.APIKey == nil && body.StreamBaseURL == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no settings provided"})
		return
	}

	ctx := c.Request.Context()
	writes := map[string]*string{
		internalsettings.PanelBaseURLKey:  body.BaseURL,
		internalsettings.PanelAPIKeyKey:   body.APIKey,
		internalsettings.StreamBaseURLKey: body.StreamBaseURL,
	}
	for key, value := range writes {
		if value == nil {
			continue
		}
		if errSet := internalsettings.Set(ctx, h.db, key, strings.TrimSpace(*value)); errSet != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save settings failed"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
