package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	aio "github.com/sawpanic/alphaloop/internal/io"
	"github.com/sawpanic/alphaloop/internal/platform"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		submitted  bool
		output     string
		conditions []string
		pageSize   int
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Export your alphas as JSON",
		Long:  "Pages through your submitted or unsubmitted alphas and writes them as one JSON array.",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := platform.AlphaQuery{Submitted: submitted, PageSize: pageSize, Conditions: map[string]string{}}
			for _, c := range conditions {
				k, v, ok := strings.Cut(c, "=")
				if !ok || k == "" {
					return fmt.Errorf("condition %q must be key=value", c)
				}
				q.Conditions[k] = v
			}

			client, err := connect(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			alphas, err := client.ListAlphas(cmd.Context(), q)
			if err != nil {
				return err
			}
			if alphas == nil {
				alphas = []json.RawMessage{}
			}

			if output == "" || output == "-" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(alphas)
			}
			if err := aio.WriteJSONAtomic(output, alphas, 0o644); err != nil {
				return err
			}
			log.Info().Int("alphas", len(alphas)).Str("file", output).Msg("Alphas extracted")
			return nil
		},
	}

	cmd.Flags().BoolVar(&submitted, "submitted", false, "export submitted instead of unsubmitted alphas")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	cmd.Flags().StringArrayVar(&conditions, "where", nil, "extra query condition key=value (repeatable)")
	cmd.Flags().IntVar(&pageSize, "page-size", 100, "alphas per request")
	return cmd
}
