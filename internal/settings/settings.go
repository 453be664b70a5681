package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/streamvault/streamvault/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Get returns the stored value for a key, or "" when absent.
func Get(ctx context.Context, conn *gorm.DB, key string) (string, error) {
	if conn == nil {
		return "", fmt.Errorf("settings: nil connection")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("settings: empty key")
	}

	var row models.Setting
	errFind := conn.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("settings: load %s: %w", key, errFind)
	}
	return row.Value, nil
}

// GetInt returns the stored integer value for a key, or fallback when absent or invalid.
func GetInt(ctx context.Context, conn *gorm.DB, key string, fallback int) int {
	raw, errGet := Get(ctx, conn, key)
	if errGet != nil {
		return fallback
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	parsed, errParse := strconv.Atoi(raw)
	if errParse != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// Set upserts a setting value by key.
func Set(ctx context.Context, conn *gorm.DB, key, value string) error {
	if conn == nil {
		return fmt.Errorf("settings: nil connection")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("settings: empty key")
	}

	row := models.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	if errUpsert := conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; errUpsert != nil {
		return fmt.Errorf("settings: upsert %s: %w", key, errUpsert)
	}
	return nil
}
