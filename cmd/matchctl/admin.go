// cmd/matchctl/admin.go
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/database"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			utils.ConfigureLogger(cfg.Log.Level, cfg.Log.Format)

			db, err := database.Initialize(cfg.Database)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.RunMigrations(db); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token [operator]",
		Short: "Issue a signed operator token for the admin API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			utils.SetJWTSecret(cfg.JWT.SecretKey)

			token, err := utils.GenerateOperatorToken(args[0], role, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", utils.RoleAdmin, "operator role")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
