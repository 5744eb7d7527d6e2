package main

import (
	"fmt"
	"os"

	"pipos/internal/config"
	"pipos/internal/infra"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "posadmin",
	Short:   "Administracion de pipos",
	Long:    `posadmin migra el esquema, crea usuarios y reencola trabajos fallidos.`,
	Version: version,
	// Commands share the server's env-based configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		infra.SetupLogger(cfg.LogLevel, cfg.Env)
		appCfg = cfg
		return nil
	},
	SilenceUsage: true,
}

var appCfg *config.Config

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openDB() (*gorm.DB, error) {
	db, err := infra.NewDatabase(appCfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return db, nil
}
