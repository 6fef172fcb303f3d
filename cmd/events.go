/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/usercore/apiserver/internal/mq"
	"github.com/usercore/apiserver/types"
	"go.uber.org/zap"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account events on the message broker",
}

var eventsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Log every account event published on the configured channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := bootstrap()
		defer func() { _ = log.Sync() }()

		ctx := cmd.Context()
		broker, err := mq.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open mq backend: %w", err)
		}
		if broker == nil {
			return fmt.Errorf("MQ_BACKEND is %q, nothing to watch", cfg.MQ.Backend)
		}
		defer func() { _ = broker.Close() }()

		log.Info("watching account events", zap.String("backend", cfg.MQ.Backend), zap.String("channel", cfg.MQ.Channel))
		err = mq.WatchEvents(ctx, broker, cfg.MQ.Channel, log, func(_ context.Context, ev types.AccountEvent) error {
			log.Info("account event",
				zap.String("type", string(ev.Type)),
				zap.String("user_id", ev.UserID),
				zap.String("email", ev.Email),
				zap.String("role", string(ev.Role)),
				zap.Time("at", ev.At),
			)
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsWatchCmd)
}
