// Package loop runs the generate, simulate and evaluate cycle until an
// expression is submittable or the iteration budget is spent.
package loop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/alphaloop/internal/alpha"
	"github.com/sawpanic/alphaloop/internal/explain"
	"github.com/sawpanic/alphaloop/internal/fastexpr"
	"github.com/sawpanic/alphaloop/internal/metrics"
	"github.com/sawpanic/alphaloop/internal/model"
	"github.com/sawpanic/alphaloop/internal/persistence"
	"github.com/sawpanic/alphaloop/internal/platform"
	"github.com/sawpanic/alphaloop/internal/retry"
)

// Loop steps, used as metric and log labels.
const (
	StepGenerate = "generate"
	StepSimulate = "simulate"
	StepPnL      = "pnl"
	StepResult   = "result"
	StepEvaluate = "evaluate"
	StepPersist  = "persist"
)

// Platform is the simulation service.
type Platform interface {
	Simulate(ctx context.Context, payload platform.SimulationPayload) (string, error)
	Result(ctx context.Context, alphaID string) (*alpha.BacktestResult, []byte, error)
	PnL(ctx context.Context, alphaID string) ([]alpha.PnLPoint, error)
}

// Evaluator builds the feedback report; *explain.Builder implements it.
type Evaluator interface {
	Build(r *alpha.BacktestResult) (*explain.Report, error)
}

// Config bounds a run.
type Config struct {
	MaxIterations     int          `yaml:"max_iterations"`
	StopOnSubmittable bool         `yaml:"stop_on_submittable"`
	FetchPnL          bool         `yaml:"fetch_pnl"`
	CountTokens       bool         `yaml:"count_tokens"`
	SimulateRetry     retry.Policy `yaml:"simulate_retry"`
}

// DefaultConfig runs up to 100 iterations and stops at the first
// submittable expression.
func DefaultConfig() Config {
	return Config{
		MaxIterations:     100,
		StopOnSubmittable: true,
		FetchPnL:          true,
		CountTokens:       true,
		SimulateRetry: retry.Policy{
			MaxAttempts:     10,
			MaxElapsed:      30 * time.Minute,
			InitialInterval: 10 * time.Second,
			Constant:        true,
		},
	}
}

// Validate checks the run bounds.
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations %d must be positive", c.MaxIterations)
	}
	return c.SimulateRetry.Validate()
}

// Observer sees every turn added to the transcript.
type Observer func(iteration int, turn model.Turn)

// Option customises a Runner.
type Option func(*Runner)

// WithSink persists iterations.
func WithSink(s persistence.Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithMetrics records loop metrics.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithObserver registers a transcript observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// WithRunID fixes the run ID instead of generating one.
func WithRunID(id uuid.UUID) Option {
	return func(r *Runner) { r.runID = id }
}

// WithHiddenFields drops model output fields from the transcript.
func WithHiddenFields(names ...string) Option {
	return func(r *Runner) { r.hidden = names }
}

// Runner drives one run. It is not safe for concurrent use.
type Runner struct {
	cfg        Config
	gen        model.Generator
	plat       Platform
	eval       Evaluator
	normalizer *fastexpr.Normalizer
	settings   platform.Settings

	sink     persistence.Sink
	metrics  *metrics.Registry
	observer Observer
	runID    uuid.UUID
	hidden   []string
}

// NewRunner wires a run.
func NewRunner(cfg Config, gen model.Generator, plat Platform, eval Evaluator, normalizer *fastexpr.Normalizer, settings platform.Settings, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loop config: %w", err)
	}
	if normalizer == nil {
		normalizer = fastexpr.NewNormalizer()
	}
	r := &Runner{
		cfg:        cfg,
		gen:        gen,
		plat:       plat,
		eval:       eval,
		normalizer: normalizer,
		settings:   settings,
		runID:      uuid.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunID identifies the run in storage.
func (r *Runner) RunID() uuid.UUID { return r.runID }

// Outcome summarises a finished run.
type Outcome struct {
	RunID       uuid.UUID
	Iterations  int
	Submittable bool
	AlphaID     string
	Expression  string
	Transcript  model.Transcript
}

// Run starts a conversation with initialPrompt and iterates. The outcome
// is returned alongside any error so partial runs can be inspected.
func (r *Runner) Run(ctx context.Context, initialPrompt string) (*Outcome, error) {
	out := &Outcome{RunID: r.runID}
	r.append(&out.Transcript, 0, model.RoleUser, initialPrompt)

	log.Info().Str("run", r.runID.String()).Int("max_iterations", r.cfg.MaxIterations).Msg("Run started")

	for i := 0; i < r.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		it, err := r.iterate(ctx, i, &out.Transcript)
		if err != nil {
			return out, fmt.Errorf("iteration %d: %w", i+1, err)
		}
		out.Iterations = i + 1
		out.AlphaID = it.AlphaID
		out.Expression = it.Expression

		if it.Submittable {
			out.Submittable = true
			log.Info().Str("alpha", it.AlphaID).Int("iteration", i+1).Msg("Alpha generated successfully")
			if r.cfg.StopOnSubmittable {
				break
			}
		}
	}
	return out, nil
}

func (r *Runner) iterate(ctx context.Context, i int, t *model.Transcript) (persistence.Iteration, error) {
	it := persistence.Iteration{RunID: r.runID, Index: i}

	var gen model.Output
	if err := r.step(StepGenerate, func() (err error) {
		gen, err = r.gen.Generate(ctx, *t)
		return err
	}); err != nil {
		return it, err
	}

	expr := r.normalizer.Normalize(gen.Expression())
	gen.Set(model.FieldExpression, expr)
	it.Expression = expr
	it.Reasoning = gen.Reasoning()
	r.append(t, i, model.RoleModel, model.RenderTurn(i, gen.Without(r.hidden...)))

	alphaID, simErr := r.simulate(ctx, expr)
	var rejected *platform.SimulationError
	switch {
	case errors.As(simErr, &rejected):
		it.Feedback = "Simulation failed: " + rejected.Message + "\n" + explain.SentenceNotSubmittable
		r.append(t, i, model.RoleUser, it.Feedback)
		r.finish(ctx, t, it, nil)
		return it, nil
	case simErr != nil:
		return it, simErr
	}
	it.AlphaID = alphaID

	if r.cfg.FetchPnL {
		_ = r.step(StepPnL, func() error {
			points, err := r.plat.PnL(ctx, alphaID)
			if err != nil {
				log.Warn().Err(err).Str("alpha", alphaID).Msg("PnL unavailable")
				return err
			}
			it.PnL = alpha.PnL{Points: points}
			if len(points) > 0 {
				it.PnL.Total = points[len(points)-1].Value
			}
			return nil
		})
	}

	var result *alpha.BacktestResult
	if err := r.step(StepResult, func() (err error) {
		result, it.Result, err = r.plat.Result(ctx, alphaID)
		return err
	}); err != nil {
		return it, err
	}

	var report *explain.Report
	if err := r.step(StepEvaluate, func() (err error) {
		report, err = r.eval.Build(result)
		return err
	}); err != nil {
		return it, err
	}
	it.Submittable = report.Submittable
	it.Feedback = explain.Format(report)
	r.append(t, i, model.RoleUser, it.Feedback)

	r.finish(ctx, t, it, report)
	return it, nil
}

// simulate retries transient failures. Rejected expressions and
// non-temporary API errors are returned at once.
func (r *Runner) simulate(ctx context.Context, expr string) (string, error) {
	payload := platform.NewSimulation(r.settings, expr)
	var id string
	err := r.step(StepSimulate, func() (err error) {
		id, err = retry.Do(ctx, r.cfg.SimulateRetry, StepSimulate, func(ctx context.Context, _ int) (string, error) {
			id, err := r.plat.Simulate(ctx, payload)
			if err == nil {
				return id, nil
			}
			var rejected *platform.SimulationError
			var apiErr *platform.APIError
			if errors.As(err, &rejected) || (errors.As(err, &apiErr) && !apiErr.Temporary()) {
				return "", retry.Permanent(err)
			}
			return "", err
		})
		return err
	})

	if r.metrics != nil {
		status := "complete"
		var rejected *platform.SimulationError
		switch {
		case errors.As(err, &rejected):
			status = "rejected"
		case err != nil:
			status = "error"
		}
		r.metrics.Simulations.WithLabelValues(status).Inc()
	}
	return id, err
}

// finish persists the iteration and records metrics. Storage failures are
// logged; they never stop the run.
func (r *Runner) finish(ctx context.Context, t *model.Transcript, it persistence.Iteration, report *explain.Report) {
	it.CreatedAt = time.Now().UTC()

	if r.sink != nil {
		_ = r.step(StepPersist, func() error {
			if err := r.sink.Save(ctx, it); err != nil {
				log.Error().Err(err).Int("iteration", it.Index+1).Msg("Failed to persist iteration")
				return err
			}
			if ts, ok := r.sink.(persistence.TranscriptSink); ok {
				if err := ts.SaveTranscript(ctx, r.runID, *t); err != nil {
					log.Error().Err(err).Msg("Failed to persist transcript")
					return err
				}
			}
			return nil
		})
	}

	if r.metrics != nil {
		values := map[string]float64{}
		if report != nil {
			for _, m := range report.Metrics {
				values[m.Label] = m.Value
			}
		}
		r.metrics.RecordIteration(it.Submittable, values)
	}

	if r.cfg.CountTokens {
		if n, err := r.gen.CountTokens(ctx, *t); err != nil {
			log.Debug().Err(err).Msg("Token count unavailable")
		} else {
			log.Info().Int("tokens", n).Int("iteration", it.Index+1).Msg("Token count")
		}
	}
}

func (r *Runner) step(name string, fn func() error) error {
	if r.metrics == nil {
		return fn()
	}
	timer := r.metrics.StartStep(name)
	err := fn()
	timer.Stop(err)
	return err
}

func (r *Runner) append(t *model.Transcript, i int, role model.Role, text string) {
	t.Append(role, text)
	if r.observer != nil {
		turn, _ := t.Last()
		r.observer(i, turn)
	}
}
