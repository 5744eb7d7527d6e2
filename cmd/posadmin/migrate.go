package main

import (
	"pipos/internal/infra"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Crea o actualiza el esquema de la base de datos",
	Long: `Ejecuta AutoMigrate sobre todas las tablas y aplica los parches SQL
idempotentes (checks, claves foraneas, triggers de inmutabilidad).
Puede ejecutarse tantas veces como se quiera.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		if err := infra.RunMigrations(db); err != nil {
			return err
		}
		log.Info().Msg("schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
