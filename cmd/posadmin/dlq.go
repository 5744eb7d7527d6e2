package main

import (
	"errors"
	"fmt"

	"pipos/internal/infra"
	"pipos/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var colas = []string{worker.QueueTickets, worker.QueueAlertasStock}

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspecciona y reencola trabajos fallidos",
}

var dlqStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Muestra cuantos trabajos hay en cada dead letter queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := openRedis(cmd)
		if err != nil {
			return err
		}
		defer rdb.Close()
		for _, q := range colas {
			n, err := worker.DLQLength(cmd.Context(), rdb, q)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d\n", q, n)
		}
		return nil
	},
}

var dlqReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Devuelve trabajos de la dead letter queue a su cola",
	Example: `  posadmin dlq replay --queue jobs:tickets --max 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		queue, _ := cmd.Flags().GetString("queue")
		limite, _ := cmd.Flags().GetInt("max")
		if limite <= 0 {
			return errors.New("--max must be positive")
		}
		targets := colas
		if queue != "" {
			targets = []string{queue}
		}

		rdb, err := openRedis(cmd)
		if err != nil {
			return err
		}
		defer rdb.Close()
		for _, q := range targets {
			n, err := worker.Reencolar(cmd.Context(), rdb, q, limite)
			if err != nil {
				return fmt.Errorf("%s: %w", q, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s %d reencolados\n", q, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqStatusCmd, dlqReplayCmd)

	dlqReplayCmd.Flags().String("queue", "", "Cola a reencolar (default: todas)")
	dlqReplayCmd.Flags().Int("max", 100, "Maximo de trabajos por cola")
}

func openRedis(cmd *cobra.Command) (*redis.Client, error) {
	rdb, err := infra.NewRedis(cmd.Context(), appCfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if rdb == nil {
		return nil, errors.New("redis is disabled (REDIS_URL)")
	}
	return rdb, nil
}
