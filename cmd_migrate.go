package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"luminar-api/database"
	"luminar-api/logger"
	"luminar-api/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Flush(2 * time.Second)

	db, err := database.Open(cfg.Database, cfg.Debug)
	if err != nil {
		return err
	}
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✅ Database migrated")
	return nil
}
