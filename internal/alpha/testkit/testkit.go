// Package testkit builds backtest result fixtures for tests across packages.
package testkit

import (
	"encoding/json"

	"github.com/sawpanic/alphaloop/internal/alpha"
)

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Check builds a threshold check. The optional value is the observed value.
func Check(name string, result alpha.Result, limit float64, value ...float64) alpha.ThresholdCheck {
	c := alpha.ThresholdCheck{Name: name, Result: result, Limit: limit}
	if len(value) > 0 {
		c.Value = Float(value[0])
	}
	return c
}

// Passing returns a submittable result: sharpe 1.5 over a 1.0 floor,
// fitness 0.8 over 0.5, turnover 0.3 inside [0.1, 0.9], no sub-universe
// check and a passing ladder sharpe of 1.2 over 1.0.
func Passing() *alpha.BacktestResult {
	return &alpha.BacktestResult{
		ID: "pass01",
		InSample: alpha.Stats{
			Sharpe:   1.5,
			Fitness:  0.8,
			Turnover: 0.3,
			Returns:  0.12,
			Drawdown: 0.05,
			Margin:   0.0008,
			Checks: []alpha.ThresholdCheck{
				Check(alpha.CheckLowSharpe, alpha.ResultPass, 1.0, 1.5),
				Check(alpha.CheckLowFitness, alpha.ResultPass, 0.5, 0.8),
				Check(alpha.CheckLowTurnover, alpha.ResultPass, 0.1, 0.3),
				Check(alpha.CheckHighTurnover, alpha.ResultPass, 0.9, 0.3),
				Check(alpha.CheckConcentratedWeight, alpha.ResultPass, 0.1),
				Check(alpha.CheckISLadderSharpe, alpha.ResultPass, 1.0, 1.2),
			},
		},
		Train: &alpha.Stats{Sharpe: 1.4, Fitness: 0.7, Turnover: 0.3, Returns: 0.11, Drawdown: 0.05},
		Test:  &alpha.Stats{Sharpe: 1.6, Fitness: 0.9, Turnover: 0.28, Returns: 0.13, Drawdown: 0.04},
	}
}

// With returns a copy of r with the named check replaced or appended.
func With(r *alpha.BacktestResult, c alpha.ThresholdCheck) *alpha.BacktestResult {
	out := Clone(r)
	for i := range out.InSample.Checks {
		if out.InSample.Checks[i].Name == c.Name {
			out.InSample.Checks[i] = c
			return out
		}
	}
	out.InSample.Checks = append(out.InSample.Checks, c)
	return out
}

// Without returns a copy of r with the named check removed.
func Without(r *alpha.BacktestResult, name string) *alpha.BacktestResult {
	out := Clone(r)
	checks := out.InSample.Checks[:0]
	for _, c := range out.InSample.Checks {
		if c.Name != name {
			checks = append(checks, c)
		}
	}
	out.InSample.Checks = checks
	return out
}

// Clone deep-copies r.
func Clone(r *alpha.BacktestResult) *alpha.BacktestResult {
	out := *r
	out.InSample.Checks = append([]alpha.ThresholdCheck(nil), r.InSample.Checks...)
	if r.Train != nil {
		train := *r.Train
		out.Train = &train
	}
	if r.Test != nil {
		test := *r.Test
		out.Test = &test
	}
	return &out
}

// Document renders r as the platform would send it.
func Document(r *alpha.BacktestResult) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return data
}
