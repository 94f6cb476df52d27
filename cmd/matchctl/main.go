// cmd/matchctl/main.go
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/database"
	"github.com/javajoker/vendormatch-backend/internal/i18n"
	"github.com/javajoker/vendormatch-backend/internal/router"
	"github.com/javajoker/vendormatch-backend/internal/utils"
)

var Version = "dev"

var jsonOutput bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "matchctl",
		Short:         "matchctl - operator tooling for the vendor matching backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(advanceCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(checkPaymentCmd())
	rootCmd.AddCommand(feedbackCmd())
	rootCmd.AddCommand(dedupCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is what a command needs to talk to the same store as the server.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	services *router.Services
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	utils.ConfigureLogger(cfg.Log.Level, cfg.Log.Format)

	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		return nil, fmt.Errorf("failed to initialize i18n: %w", err)
	}

	db, err := database.Initialize(cfg.Database)
	if err != nil {
		return nil, err
	}

	deps, err := router.DefaultDependencies(cfg)
	if err != nil {
		database.Close(db)
		return nil, err
	}

	return &app{cfg: cfg, db: db, services: router.NewServices(db, cfg, deps)}, nil
}

func (a *app) Close() {
	database.Close(a.db)
}

// printResult writes v as indented JSON when --json is set, otherwise the
// human summary.
func printResult(v interface{}, summary string) error {
	if !jsonOutput {
		fmt.Println(summary)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
