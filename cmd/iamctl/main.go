// Command iamctl is the operator CLI: schema migrations, platform roles,
// credit allocation, development tokens and stuck job inspection.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hugh/ia-marketing/internal/app"
	"github.com/hugh/ia-marketing/internal/database"
	"github.com/hugh/ia-marketing/pkg/config"
	"github.com/hugh/ia-marketing/pkg/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// env is what every command needs once configuration is loaded.
type env struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *gorm.DB
	services *app.Services
}

func (e *env) close() {
	if e.db == nil {
		return
	}
	if sqlDB, err := e.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := util.NewLogger(cfg.Server.Env)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func connect() (*env, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	services, err := app.NewServices(db, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: logger, db: db, services: services}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "iamctl",
		Short:         "Operator tools for the ia-marketing backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newMigrateCommand(),
		newPlatformCommand(),
		newCreditsCommand(),
		newTokenCommand(),
		newJobsCommand(),
		newSeedCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
