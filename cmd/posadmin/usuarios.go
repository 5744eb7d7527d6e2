package main

import (
	"fmt"
	"os"
	"strings"

	"pipos/internal/model"
	"pipos/internal/repository"
	"pipos/internal/service"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var seedUserCmd = &cobra.Command{
	Use:   "seed-user",
	Short: "Crea o actualiza un usuario",
	Long: `Crea el usuario o, si el username ya existe, reemplaza su nombre,
password y rol y lo reactiva.

La password puede pasarse con --password o con la variable POSADMIN_PASSWORD.`,
	Example: `  posadmin seed-user --username admin --rol administrador --password secreto
  POSADMIN_PASSWORD=secreto posadmin seed-user --username caja1 --rol cajero`,
	RunE: runSeedUser,
}

var hashCmd = &cobra.Command{
	Use:   "hash <password>",
	Short: "Imprime el hash bcrypt de una password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := service.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedUserCmd, hashCmd)

	seedUserCmd.Flags().String("username", "", "Nombre de usuario (requerido)")
	seedUserCmd.Flags().String("nombre", "", "Nombre visible (default: username)")
	seedUserCmd.Flags().String("password", "", "Password en texto plano")
	seedUserCmd.Flags().String("rol", model.RolCajero, "cajero | supervisor | administrador")
	_ = seedUserCmd.MarkFlagRequired("username")
}

func runSeedUser(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	nombre, _ := cmd.Flags().GetString("nombre")
	password, _ := cmd.Flags().GetString("password")
	rol, _ := cmd.Flags().GetString("rol")
	if password == "" {
		password = os.Getenv("POSADMIN_PASSWORD")
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	svc := service.NewAuthService(repository.NewUsuarioRepository(db), appCfg)
	u, err := svc.GuardarUsuario(cmd.Context(), username, nombre, password, strings.ToLower(rol))
	if err != nil {
		return err
	}

	log.Info().Str("username", u.Username).Str("rol", u.Rol).Msg("usuario guardado")
	fmt.Fprintf(cmd.OutOrStdout(), "usuario %s (%s) guardado con id %s\n", u.Username, u.Rol, u.ID)
	return nil
}
