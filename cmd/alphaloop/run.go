package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/alphaloop/internal/application/loop"
	"github.com/sawpanic/alphaloop/internal/explain"
	clog "github.com/sawpanic/alphaloop/internal/log"
	"github.com/sawpanic/alphaloop/internal/metrics"
	"github.com/sawpanic/alphaloop/internal/model"
	"github.com/sawpanic/alphaloop/internal/platform"
	"github.com/sawpanic/alphaloop/internal/prompt"
	"github.com/sawpanic/alphaloop/internal/secrets"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the generate, simulate and evaluate loop",
		Long: `Builds the initial prompt from the configured data fields, then iterates
until an expression is submittable or the iteration budget is spent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd)
		},
	}
	return cmd
}

func (a *app) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := a.cfg
	if err := cfg.Prompt.Validate(); err != nil {
		return fmt.Errorf("prompt: %w", err)
	}

	console := clog.NewConsole(os.Stdout)
	reg := metrics.NewRegistry()

	client, err := connect(ctx, cfg, platform.WithProgress(console.Progress))
	if err != nil {
		return err
	}

	assembler := prompt.NewAssembler(cfg.Prompt, os.DirFS("."))
	initial, categories, err := assembler.InitialPrompt(ctx, client, cfg.Settings)
	if err != nil {
		return err
	}
	system, err := assembler.SystemPrompt(categories)
	if err != nil {
		return err
	}

	keys, err := secrets.ModelAPIKeys(ctx, secrets.NewEnvProvider(cfg.SecretsPrefix))
	if err != nil {
		return err
	}
	ring, err := model.NewKeyRing(keys)
	if err != nil {
		return err
	}
	gen, err := model.NewGeminiGenerator(cfg.Model, system, ring,
		model.WithRetryHook(func(error) { reg.ModelRetries.Inc() }))
	if err != nil {
		return err
	}

	st, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close storage")
		}
	}()

	builder := explain.NewBuilder(cfg.Gates, explain.WithReversalWindow(cfg.Window()))
	runner, err := loop.NewRunner(cfg.Loop, gen, client, builder, cfg.NewNormalizer(), cfg.Settings,
		loop.WithSink(st.sinks),
		loop.WithMetrics(reg),
		loop.WithObserver(console.Turn),
		loop.WithHiddenFields(cfg.Model.Schema.HiddenFields()...),
	)
	if err != nil {
		return err
	}

	console.Banner(fmt.Sprintf("Run %s | %s %s | %s mode", runner.RunID(), cfg.Settings.Region, cfg.Settings.Universe, cfg.Gates.Mode))

	out, err := runner.Run(ctx, initial)
	if out != nil {
		console.Banner(summary(out))
	}
	return err
}

func summary(out *loop.Outcome) string {
	if out.Submittable {
		return fmt.Sprintf("Submittable alpha %s after %d iterations", out.AlphaID, out.Iterations)
	}
	return fmt.Sprintf("No submittable alpha after %d iterations", out.Iterations)
}
