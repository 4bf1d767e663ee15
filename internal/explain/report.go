// Package explain turns a backtest result into the diagnostic text the model
// reads as its next turn.
package explain

import (
	"fmt"
	"strings"

	"github.com/sawpanic/alphaloop/internal/alpha"
	"github.com/sawpanic/alphaloop/internal/gates"
	"github.com/sawpanic/alphaloop/internal/scoring"
)

// Metric labels in report order.
const (
	LabelSharpe                = "Sharpe"
	LabelFitness               = "Fitness"
	LabelTurnover              = "Turnover"
	LabelSubUniverseRobustness = "Sub Universe Robustness"
	LabelLadderSharpe          = "Ladder Sharpe"
	LabelAlphaQualityFactor    = "Alpha Quality Factor"
	LabelRoMaD                 = "RoMaD"
	LabelTurnoverStability     = "Turnover Stability"
	LabelReturnTurnoverRatio   = "Return Turnover Ratio"
)

// Fixed diagnostic sentences.
const (
	WarnWeightFallback    = "Weight is too strongly concentrated or too few instruments are assigned weight."
	WarnWeightDistributed = "Weight is well distributed over instruments."
	WarnDirectionReversed = "Hypothesis Direction is Reversed, please multiply by a negative sign."

	SentenceSubmittable    = "Alpha Expression is Submittable."
	SentenceNotSubmittable = "Alpha Expression is NOT Submittable."
)

// Window selects the statistics block the direction-reversal diagnostic reads.
type Window string

const (
	WindowInSample Window = "insample"
	WindowTrain    Window = "train"
)

// ParseWindow accepts "insample" (also "is") and "train". Empty means insample.
func ParseWindow(s string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "insample", "is":
		return WindowInSample, nil
	case "train":
		return WindowTrain, nil
	default:
		return "", fmt.Errorf("unknown reversal window %q (want insample or train)", s)
	}
}

// Metric is one report line: an observed value, its lower bound and an
// optional upper bound.
type Metric struct {
	Label string   `json:"label"`
	Value float64  `json:"value"`
	Lower float64  `json:"lower"`
	Upper *float64 `json:"upper,omitempty"`
}

// Report is the ordered diagnostic summary of one result. It is built once
// per result and never mutated afterwards.
type Report struct {
	AlphaID     string         `json:"alpha_id,omitempty"`
	Metrics     []Metric       `json:"metrics"`
	Warnings    []string       `json:"warnings"`
	Submittable bool           `json:"submittable"`
	Verdict     *gates.Verdict `json:"verdict,omitempty"`
}

// Metric returns the metric with the given label.
func (r *Report) Metric(label string) (Metric, bool) {
	for _, m := range r.Metrics {
		if m.Label == label {
			return m, true
		}
	}
	return Metric{}, false
}

// Option configures a Builder.
type Option func(*Builder)

// WithReversalWindow selects the window for the direction-reversal check.
func WithReversalWindow(w Window) Option {
	return func(b *Builder) { b.reversalWindow = w }
}

// WithDerived forces the derived-metric lines on or off. By default they are
// shown in gating mode only.
func WithDerived(include bool) Option {
	return func(b *Builder) { b.includeDerived = include }
}

// Builder produces reports under a fixed gates policy. It is safe for
// concurrent use.
type Builder struct {
	evaluator      *gates.Evaluator
	reversalWindow Window
	includeDerived bool
}

// NewBuilder returns a builder for config.
func NewBuilder(config gates.Config, opts ...Option) *Builder {
	b := &Builder{
		evaluator:      gates.NewEvaluator(config),
		reversalWindow: WindowInSample,
		includeDerived: config.Mode == gates.ModeGating,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates r and assembles its report.
func (b *Builder) Build(r *alpha.BacktestResult) (*Report, error) {
	verdict, err := b.evaluator.Evaluate(r)
	if err != nil {
		return nil, err
	}
	cfg := b.evaluator.Config()

	// Mandatory checks are guaranteed present once Evaluate succeeded.
	sharpe, _ := r.Check(alpha.CheckLowSharpe)
	fitness, _ := r.Check(alpha.CheckLowFitness)
	low, _ := r.Check(alpha.CheckLowTurnover)
	high, _ := r.Check(alpha.CheckHighTurnover)

	report := &Report{
		AlphaID:     r.ID,
		Metrics:     make([]Metric, 0, 9),
		Warnings:    make([]string, 0, 2),
		Submittable: verdict.Submittable,
		Verdict:     verdict,
	}

	report.add(LabelSharpe, r.InSample.Sharpe, sharpe.Limit)
	report.add(LabelFitness, r.InSample.Fitness, fitness.Limit)
	report.addRange(LabelTurnover, r.InSample.Turnover, low.Limit, high.Limit)

	d := verdict.Derived
	if d.HasSubUniverse {
		report.add(LabelSubUniverseRobustness, d.SubUniverseRobustness, cfg.SubUniverseRobustness.Min)
	}
	if ladder, ok := alpha.FindFirst(r.Checks(), alpha.LadderChecks...); ok && ladder.HasValue() {
		report.add(LabelLadderSharpe, *ladder.Value, ladder.Limit)
	}

	if b.includeDerived {
		report.add(LabelAlphaQualityFactor, d.AlphaQualityFactor, cfg.AlphaQualityFactor.Min)
		report.add(LabelRoMaD, d.RoMaD, cfg.RoMaD.Min)
		report.add(LabelTurnoverStability, d.TurnoverStability, cfg.TurnoverStability.Min)
		report.add(LabelReturnTurnoverRatio, d.ReturnTurnoverRatio, cfg.ReturnTurnoverRatio.Min)
	}

	weight, _ := r.Check(alpha.CheckConcentratedWeight)
	report.Warnings = append(report.Warnings, weightDiagnostic(weight))
	if b.reversed(r, sharpe.Limit, fitness.Limit) {
		report.Warnings = append(report.Warnings, WarnDirectionReversed)
	}

	return report, nil
}

// Evaluate builds the report for r and renders it.
func (b *Builder) Evaluate(r *alpha.BacktestResult) (bool, string, error) {
	report, err := b.Build(r)
	if err != nil {
		return false, "", err
	}
	return report.Submittable, Format(report), nil
}

func (r *Report) add(label string, value, lower float64) {
	r.Metrics = append(r.Metrics, Metric{Label: label, Value: value, Lower: lower})
}

func (r *Report) addRange(label string, value, lower, upper float64) {
	r.Metrics = append(r.Metrics, Metric{Label: label, Value: value, Lower: lower, Upper: &upper})
}

// weightDiagnostic never stays silent: a passing check gets a confirmation.
// A reported value of exactly 0 is treated as not reported.
func weightDiagnostic(c alpha.ThresholdCheck) string {
	if c.Result.Passed() {
		return WarnWeightDistributed
	}
	if !c.HasValue() || *c.Value == 0 {
		return WarnWeightFallback
	}
	return fmt.Sprintf("Weight Concentration %s%% is above cutoff of %s%%.",
		FormatNumber(scoring.Round2(*c.Value*100)),
		FormatNumber(scoring.Round2(c.Limit*100)))
}

func (b *Builder) reversed(r *alpha.BacktestResult, sharpeFloor, fitnessFloor float64) bool {
	stats := &r.InSample
	if b.reversalWindow == WindowTrain {
		stats = r.Train
	}
	if stats == nil {
		return false
	}
	return stats.Sharpe <= -sharpeFloor/2 && stats.Fitness <= -fitnessFloor/2
}
