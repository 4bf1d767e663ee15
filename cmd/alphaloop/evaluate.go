package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sawpanic/alphaloop/internal/alpha"
	"github.com/sawpanic/alphaloop/internal/explain"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		asJSON  bool
		derived string
	)

	cmd := &cobra.Command{
		Use:   "evaluate <result.json|->",
		Short: "Evaluate a saved simulation result",
		Long:  "Reads a platform result document and prints the feedback the model would receive.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			result, err := alpha.Decode(data)
			if err != nil {
				return err
			}

			opts := []explain.Option{explain.WithReversalWindow(a.cfg.Window())}
			switch derived {
			case "auto":
			case "on":
				opts = append(opts, explain.WithDerived(true))
			case "off":
				opts = append(opts, explain.WithDerived(false))
			default:
				return fmt.Errorf("--derived must be auto, on or off")
			}

			report, err := explain.NewBuilder(a.cfg.Gates, opts...).Build(result)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			_, err = fmt.Fprintln(out, explain.Format(report))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the structured report")
	cmd.Flags().StringVar(&derived, "derived", "auto", "derived metric lines (auto|on|off)")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
