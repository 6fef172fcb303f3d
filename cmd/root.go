/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/usercore/apiserver/config"
	"github.com/usercore/apiserver/internal/logger"
	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "usercore",
	Short: "User account service",
	Long: `usercore serves registration, login, token refresh and user
administration over a JSON REST API backed by MongoDB.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it with a
// context that is canceled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the process logger.
func bootstrap() (config.Config, *zap.Logger) {
	cfg := config.MustLoad()
	return cfg, logger.Must(cfg.LogLevel, cfg.LogFormat)
}
