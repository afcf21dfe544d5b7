package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/algopilot/internal/adapter/driven/sqlite"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		newMigrateUpCmd(a),
		newMigrateDownCmd(a),
		newMigrateVersionCmd(a),
	)

	return cmd
}

func newMigrateUpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}
}

func newMigrateDownCmd(a *app) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := sqliteadapter.RollbackMigrations(db.Writer, steps); err != nil {
				return err
			}
			return printVersion(cmd, db)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	return cmd
}

func newMigrateVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, _, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return printVersion(cmd, db)
		},
	}
}

func printVersion(cmd *cobra.Command, db *sqliteadapter.DB) error {
	version, dirty, err := sqliteadapter.MigrationVersion(db.Writer)
	if err != nil {
		return err
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d%s\n", version, suffix)
	return err
}
