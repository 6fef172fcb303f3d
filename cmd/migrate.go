/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/usercore/apiserver/internal/db"
	"go.uber.org/zap"
)

var rollbackSteps int

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := bootstrap()
		defer func() { _ = log.Sync() }()

		if err := db.Migrate(cfg.Database); err != nil {
			return err
		}
		log.Info("migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rollbackSteps < 0 {
			return fmt.Errorf("--steps must not be negative")
		}
		cfg, log := bootstrap()
		defer func() { _ = log.Sync() }()

		if err := db.Rollback(cfg.Database, rollbackSteps); err != nil {
			return err
		}
		log.Info("migrations rolled back", zap.Int("steps", rollbackSteps))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	migrateDownCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to roll back, 0 for all")
}
