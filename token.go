package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kanban-api/api"
	"kanban-api/config"
)

func issueTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue-token <user-id>",
		Short: "Print an HS256 token for local development",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadEnvFile(); err != nil {
				return err
			}
			secret := os.Getenv("LOCAL_AUTH_SHARED_SECRET")
			if secret == "" {
				return errors.New("missing LOCAL_AUTH_SHARED_SECRET")
			}
			token, _, err := api.NewAuth([]byte(secret), ttl).Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
