package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newNormalizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [expression]",
		Short: "Normalize an expression as it would be simulated",
		Long:  "Repairs statement separators and keyword arguments. Reads stdin when no expression is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expr string
			if len(args) == 1 {
				expr = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				expr = string(data)
			}
			if strings.TrimSpace(expr) == "" {
				return fmt.Errorf("empty expression")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), a.cfg.NewNormalizer().Normalize(expr))
			return err
		},
	}
}
