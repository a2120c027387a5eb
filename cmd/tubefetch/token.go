package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datallboy/tubefetch/internal/auth"
)

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			iss, err := auth.NewIssuer(cfg.Auth)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}

			tok, err := iss.Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}
