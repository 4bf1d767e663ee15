package gates

import (
	"fmt"

	"github.com/sawpanic/alphaloop/internal/alpha"
	"github.com/sawpanic/alphaloop/internal/scoring"
)

// State is the lifecycle of a submittability verdict.
type State int

const (
	StatePending State = iota
	StateSubmittable
	StateNotSubmittable
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateSubmittable:
		return "SUBMITTABLE"
	case StateNotSubmittable:
		return "NOT_SUBMITTABLE"
	default:
		return "UNKNOWN"
	}
}

// GateCheck is the outcome of one gate.
type GateCheck struct {
	Name        string  `json:"name"`
	Passed      bool    `json:"passed"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Description string  `json:"description"`
}

// Verdict is the evaluated submittability of one result.
type Verdict struct {
	AlphaID        string           `json:"alpha_id,omitempty"`
	Mode           Mode             `json:"mode"`
	Submittable    bool             `json:"submittable"`
	GateResults    []GateCheck      `json:"gate_results"`
	FailureReasons []string         `json:"failure_reasons"`
	PassedGates    []string         `json:"passed_gates"`
	Derived        *scoring.Derived `json:"derived,omitempty"`
	evaluated      bool
}

// State returns PENDING for a zero Verdict, otherwise the terminal state.
func (v *Verdict) State() State {
	if v == nil || !v.evaluated {
		return StatePending
	}
	if v.Submittable {
		return StateSubmittable
	}
	return StateNotSubmittable
}

// Submittable applies the all-present-checks-pass rule: every submission
// check that is present must PASS. An absent check is not a failure since
// several checks only exist for some regions and platform versions.
func Submittable(r *alpha.BacktestResult) bool {
	for _, c := range r.Checks() {
		if alpha.IsSubmissionCheck(c.Name) && !c.Result.Passed() {
			return false
		}
	}
	return true
}

// Evaluator decides submittability under a fixed policy. It holds no
// mutable state and is safe for concurrent use.
type Evaluator struct {
	config     Config
	calculator *scoring.Calculator
	checkOrder []string
}

// NewEvaluator builds an evaluator for config.
func NewEvaluator(config Config) *Evaluator {
	if config.Mode == "" {
		config.Mode = ModeAdvisory
	}
	return &Evaluator{
		config:     config,
		calculator: scoring.NewCalculator(config.SubUniverseChecks),
		checkOrder: checkOrder(config.SubUniverseChecks),
	}
}

// Config returns the evaluator policy.
func (e *Evaluator) Config() Config {
	return e.config
}

// checkOrder is alpha.SubmissionChecks with any extra sub-universe aliases
// slotted in after the primary sub-universe check.
func checkOrder(subUniverse []string) []string {
	order := make([]string, 0, len(alpha.SubmissionChecks)+len(subUniverse))
	seen := make(map[string]bool)
	for _, name := range alpha.SubmissionChecks {
		if seen[name] {
			continue
		}
		order = append(order, name)
		seen[name] = true
		if name != alpha.CheckLowSubUniverseSharpe {
			continue
		}
		for _, alias := range subUniverse {
			if !seen[alias] {
				order = append(order, alias)
				seen[alias] = true
			}
		}
	}
	return order
}

// Evaluate validates r and produces its verdict. The only error is a
// malformed document: a missing mandatory or duplicated check.
func (e *Evaluator) Evaluate(r *alpha.BacktestResult) (*Verdict, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	v := &Verdict{
		AlphaID:        r.ID,
		Mode:           e.config.Mode,
		GateResults:    []GateCheck{},
		FailureReasons: []string{},
		PassedGates:    []string{},
		evaluated:      true,
	}

	for _, name := range e.checkOrder {
		c, ok := r.Check(name)
		if !ok {
			continue
		}
		gate := GateCheck{
			Name:        name,
			Passed:      c.Result.Passed(),
			Value:       c.ValueOr(0),
			Threshold:   c.Limit,
			Description: fmt.Sprintf("%s: %s", name, c.Result),
		}
		v.record(gate, fmt.Sprintf("%s %s (value %s, limit %g)", name, c.Result, describeValue(c), c.Limit))
	}

	derived, err := e.calculator.Compute(r)
	if err != nil {
		return nil, err
	}
	v.Derived = &derived

	if e.config.Mode == ModeGating {
		e.applyDerivedGates(v, derived)
	}

	v.Submittable = len(v.FailureReasons) == 0
	return v, nil
}

func (e *Evaluator) applyDerivedGates(v *Verdict, d scoring.Derived) {
	gates := []struct {
		name       string
		value      float64
		bound      Bound
		applicable bool
		needsSplit bool
	}{
		{"alpha_quality_factor", d.AlphaQualityFactor, e.config.AlphaQualityFactor, true, true},
		{"return_turnover_ratio", d.ReturnTurnoverRatio, e.config.ReturnTurnoverRatio, true, false},
		{"turnover_stability", d.TurnoverStability, e.config.TurnoverStability, true, true},
		{"sub_universe_robustness", d.SubUniverseRobustness, e.config.SubUniverseRobustness, d.HasSubUniverse, false},
		{"romad", d.RoMaD, e.config.RoMaD, true, false},
	}

	for _, g := range gates {
		if !g.bound.Enabled || !g.applicable {
			continue
		}
		check := GateCheck{
			Name:        g.name,
			Passed:      g.value >= g.bound.Min,
			Value:       g.value,
			Threshold:   g.bound.Min,
			Description: fmt.Sprintf("%s %.2f ≥ %.2f", g.name, g.value, g.bound.Min),
		}
		reason := fmt.Sprintf("%s %.2f below %.2f", g.name, g.value, g.bound.Min)
		if g.needsSplit && !d.HasSplit {
			reason += " (no train/test split)"
		}
		v.record(check, reason)
	}
}

func (v *Verdict) record(g GateCheck, failure string) {
	v.GateResults = append(v.GateResults, g)
	if g.Passed {
		v.PassedGates = append(v.PassedGates, g.Name)
		return
	}
	v.FailureReasons = append(v.FailureReasons, failure)
}

func describeValue(c alpha.ThresholdCheck) string {
	if !c.HasValue() {
		return "n/a"
	}
	return fmt.Sprintf("%g", *c.Value)
}
