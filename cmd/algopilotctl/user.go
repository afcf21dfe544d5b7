package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/algopilot/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/algopilot/internal/application"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage operator users",
	}

	cmd.AddCommand(newUserCreateCmd(a))

	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an operator user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, cfg, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
				return err
			}

			auth := application.NewAuthService(sqliteadapter.NewUserRepo(db), cfg.JWTSecret, cfg.JWTTTL)
			user, err := auth.Register(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s)\n", user.ID, user.Username)
			return err
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "operator username")
	cmd.Flags().StringVar(&password, "password", "", "operator password (at least 8 characters)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
