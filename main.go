package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"luminar-api/config"
	"luminar-api/logger"
)

var (
	configFile string
	envPath    string
)

var rootCmd = &cobra.Command{
	Use:           "luminar",
	Short:         "Luminar puzzle hunt API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".", "directory holding .env files")

	rootCmd.AddCommand(serveCmd, migrateCmd, chapterCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates configuration and initializes logging
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile, envPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags:      map[string]string{"service": "luminar-api"},
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
