package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hugh/ia-marketing/internal/database/models"
	"github.com/hugh/ia-marketing/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Warn)
	if cfg.SSLMode == "disable" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc:        NowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	log.Info("connected to database", "host", cfg.Host, "database", cfg.Name)

	return db, nil
}

// NowUTC stamps every row in UTC so month keys and date ranges agree with
// stored timestamps.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// Models lists every table in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Profile{},
		&models.Organization{},
		&models.Membership{},
		&models.Wallet{},
		&models.Project{},
		&models.ProjectCreditLimit{},
		&models.Prompt{},
		&models.VideoJob{},
		&models.LedgerEntry{},
		&models.GlobalSetting{},
		&models.AuditLog{},
		&models.WebhookEvent{},
	}
}

// AutoMigrate is used by tests and local sqlite runs. Postgres deployments
// use the SQL migrations (see Migrate).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
