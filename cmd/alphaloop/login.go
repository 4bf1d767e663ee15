package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the platform session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := connect(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			if client.Token() == "" {
				return fmt.Errorf("platform returned no session token")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in.")
			return nil
		},
	}
}
