package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/algopilot/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/algopilot/internal/application"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage stored broker sessions",
	}

	cmd.AddCommand(newSessionPruneCmd(a))

	return cmd
}

func newSessionPruneCmd(a *app) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete stored session snapshots that expired long ago",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, cfg, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			sessions, err := sqliteadapter.NewSessionRepo(db, cfg.SecretKey)
			if err != nil {
				return err
			}

			n, err := sessions.PruneExpired(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "pruned %d session snapshot(s)\n", n)
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", application.SnapshotRetention, "minimum time since token expiry")

	return cmd
}
