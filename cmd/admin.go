/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/usercore/apiserver/internal/apperr"
	"github.com/usercore/apiserver/internal/auth"
	"github.com/usercore/apiserver/internal/db"
	"github.com/usercore/apiserver/internal/handlers"
	"github.com/usercore/apiserver/internal/mq"
	"github.com/usercore/apiserver/internal/services"
	"github.com/usercore/apiserver/internal/store"
	"github.com/usercore/apiserver/internal/validation"
	"github.com/usercore/apiserver/types"
	"go.uber.org/zap"
)

var adminFlags struct {
	username  string
	email     string
	password  string
	firstName string
	lastName  string
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative account tasks",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an administrator account",
	Long: `Creates an account with the admin role, applying the same input rules
as POST /user. Usage:

	usercore admin create --username root --email root@example.com --password Secret123
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := validation.Decode[handlers.CreateUserRequest](map[string]any{
			"username":  adminFlags.username,
			"email":     adminFlags.email,
			"password":  adminFlags.password,
			"firstName": adminFlags.firstName,
			"lastName":  adminFlags.lastName,
			"role":      string(types.RoleAdmin),
		}, false)
		if err != nil {
			printFieldErrors(err)
			return err
		}
		in, err := req.NewUser()
		if err != nil {
			return err
		}

		cfg, log := bootstrap()
		defer func() { _ = log.Sync() }()

		ctx := cmd.Context()
		client, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() { _ = db.Disconnect(client, gracePeriod) }()

		broker, err := mq.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open mq backend: %w", err)
		}
		if broker != nil {
			defer func() { _ = broker.Close() }()
		}

		users := services.NewUserService(
			store.NewUserRepository(client.Database(cfg.Database.Name)),
			auth.NewBcryptHasher(cfg.BcryptCost),
			mq.NewEventPublisher(broker, cfg.MQ.Channel, log),
		)
		user, err := users.Create(ctx, in)
		if err != nil {
			return err
		}
		log.Info("admin created",
			zap.String("user_id", user.ID.Hex()),
			zap.String("username", user.Username),
			zap.String("email", user.Email),
		)
		return nil
	},
}

func printFieldErrors(err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return
	}
	for _, f := range appErr.Fields {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", f.Field, f.Message)
	}
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)

	f := adminCreateCmd.Flags()
	f.StringVar(&adminFlags.username, "username", "", "login name (alphanumeric, 3-30 chars)")
	f.StringVar(&adminFlags.email, "email", "", "email address")
	f.StringVar(&adminFlags.password, "password", "", "password (min 6 chars, mixed case and a digit)")
	f.StringVar(&adminFlags.firstName, "first-name", "", "given name")
	f.StringVar(&adminFlags.lastName, "last-name", "", "family name")
	_ = adminCreateCmd.MarkFlagRequired("username")
	_ = adminCreateCmd.MarkFlagRequired("email")
	_ = adminCreateCmd.MarkFlagRequired("password")
}
