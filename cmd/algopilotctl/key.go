package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/algopilot/internal/config"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage encryption keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Print a new random value for ALGOPILOT_SECRET_KEY",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := make([]byte, config.SecretKeySize)
			if _, err := rand.Read(key); err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(key))
			return err
		},
	})

	return cmd
}
