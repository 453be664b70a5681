package db

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/streamvault/streamvault/internal/models"
	internalsettings "github.com/streamvault/streamvault/internal/settings"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.Plan{},
		&models.Account{},
		&models.Job{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errSeed := ensureJobMaxAttemptsSetting(conn); errSeed != nil {
		return errSeed
	}

	// ddl defines an index or DDL statement to apply.
	type ddl struct {
		name string // Human-readable name for error reporting.
		sql  string // SQL to execute.
	}
	ddls := []ddl{
		{
			name: "idx_jobs_status_next_run_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_jobs_status_next_run_at
				ON jobs (status, next_run_at ASC)
			`,
		},
		{
			name: "idx_jobs_user_id_created_at",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_jobs_user_id_created_at
				ON jobs (user_id, created_at DESC)
			`,
		},
		{
			name: "idx_accounts_plan_id",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_accounts_plan_id
				ON accounts (plan_id)
			`,
		},
		{
			name: "idx_settings_updated_at_key",
			sql: `
				CREATE INDEX IF NOT EXISTS idx_settings_updated_at_key
				ON settings (updated_at DESC, key DESC)
			`,
		},
	}
	for _, item := range ddls {
		if errDDL := conn.Exec(item.sql).Error; errDDL != nil {
			return fmt.Errorf("db: create index %s: %w", item.name, errDDL)
		}
	}

	return nil
}

// ensureJobMaxAttemptsSetting seeds the default job attempt budget.
func ensureJobMaxAttemptsSetting(conn *gorm.DB) error {
	var row models.Setting
	errFind := conn.Where("key = ?", internalsettings.JobMaxAttemptsKey).First(&row).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: load job max attempts setting: %w", errFind)
	}
	seed := models.Setting{
		Key:   internalsettings.JobMaxAttemptsKey,
		Value: strconv.Itoa(internalsettings.DefaultJobMaxAttempts),
	}
	if errCreate := conn.Create(&seed).Error; errCreate != nil {
		return fmt.Errorf("db: seed job max attempts setting: %w", errCreate)
	}
	return nil
}
