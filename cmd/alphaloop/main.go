package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/alphaloop/internal/config"
)

const (
	appName = "alphaloop"
	version = "v0.4.0"
)

// app carries the loaded configuration into every command.
type app struct {
	configPath string
	overrides  config.Overrides
	cfg        *config.Config
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Generate, simulate and refine alpha expressions",
		Version: version,
		Long: `alphaloop asks a language model for alpha expressions, simulates each one on
the platform and feeds the evaluation back until an expression is submittable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultPath+" when present)")
	a.overrides.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newRunCmd(a),
		newEvaluateCmd(a),
		newNormalizeCmd(a),
		newServeCmd(a),
		newLoginCmd(a),
		newExtractCmd(a),
	)
	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := a.overrides.Apply(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	zerolog.SetGlobalLevel(cfg.Level())
	a.cfg = cfg
	log.Debug().Str("config", a.configPath).Str("mode", string(cfg.Gates.Mode)).Msg("Configuration loaded")
	return nil
}
