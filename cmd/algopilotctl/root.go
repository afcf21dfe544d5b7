package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/algopilot/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/algopilot/internal/config"
)

// app carries the global flags shared by subcommands.
type app struct {
	dbPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "algopilotctl",
		Short:         "Administer an algopilot broker gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path (default: ALGOPILOT_DB_PATH or algopilot.db)")

	rootCmd.AddCommand(
		newMigrateCmd(a),
		newUserCmd(a),
		newKeyCmd(),
		newSessionCmd(a),
		newInstrumentsCmd(),
	)

	return rootCmd
}

// config loads the environment configuration with the --db override applied.
func (a *app) config() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	return cfg, nil
}

// openDB opens the configured database. The caller closes it.
func (a *app) openDB() (*sqliteadapter.DB, *config.Config, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	return db, cfg, nil
}
