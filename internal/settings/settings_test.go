package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/streamvault/streamvault/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.AutoMigrate(&models.Setting{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func TestSetAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	value, errGet := Get(ctx, db, PanelBaseURLKey)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if value != "" {
		t.Fatalf("absent key must read as empty, got %q", value)
	}

	if errSet := Set(ctx, db, PanelBaseURLKey, "http://panel.example.com"); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if errSet := Set(ctx, db, PanelBaseURLKey, "http://panel2.example.com"); errSet != nil {
		t.Fatalf("overwrite: %v", errSet)
	}

	value, errGet = Get(ctx, db, PanelBaseURLKey)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if value != "http://panel2.example.com" {
		t.Fatalf("value = %q, want the overwritten value", value)
	}

	var count int64
	if errCount := db.Model(&models.Setting{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("upsert must keep one row per key, got %d", count)
	}
}

func TestGetInt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if got := GetInt(ctx, db, JobMaxAttemptsKey, 10); got != 10 {
		t.Fatalf("absent key fallback = %d, want 10", got)
	}
	if errSet := Set(ctx, db, JobMaxAttemptsKey, "7"); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if got := GetInt(ctx, db, JobMaxAttemptsKey, 10); got != 7 {
		t.Fatalf("stored value = %d, want 7", got)
	}
	if errSet := Set(ctx, db, JobMaxAttemptsKey, "not-a-number"); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if got := GetInt(ctx, db, JobMaxAttemptsKey, 10); got != 10 {
		t.Fatalf("invalid value fallback = %d, want 10", got)
	}
}
