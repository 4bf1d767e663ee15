package scoring

import (
	"math"

	"github.com/sawpanic/alphaloop/internal/alpha"
)

// SubUniverseScale maps the platform's own sub-universe ratio onto this
// package's scale. The platform check passes at value/limit >= 1, which
// lands at 0.75 here; 0.75 is therefore the floor everywhere the metric is
// consumed.
const SubUniverseScale = 0.75

// SubUniverseRobustness rescales the sub-universe sharpe check. names is the
// alias family to try, primary first; nil means alpha.SubUniverseChecks.
//
// The boolean is false when no alias is present: the metric is not
// applicable and must be omitted, not treated as a failure. A non-positive
// limit or value (or an unreported value) yields 0.
func SubUniverseRobustness(r *alpha.BacktestResult, names []string) (float64, bool) {
	if len(names) == 0 {
		names = alpha.SubUniverseChecks
	}
	check, ok := alpha.FindFirst(r.Checks(), names...)
	if !ok {
		return 0, false
	}

	value := check.ValueOr(0)
	if check.Limit <= 0 || value <= 0 {
		return 0, true
	}
	return Round2(SubUniverseScale * value / check.Limit), true
}

// AlphaQualityFactor measures how well the test window holds up against the
// train window. sharpeFloor and fitnessFloor are the in-sample submission
// floors; a train window below half of either is too weak to judge and
// scores 0.
//
// When either stability ratio is below 1 each ratio is capped at 1 so an
// improvement on one axis cannot offset a degradation on the other.
// Otherwise the uncapped product rewards genuine out-of-sample improvement.
// The sign follows the test sharpe.
func AlphaQualityFactor(r *alpha.BacktestResult, sharpeFloor, fitnessFloor float64) float64 {
	if !r.HasSplit() {
		return 0
	}
	train, test := r.Train, r.Test

	if train.Sharpe < sharpeFloor/2 || train.Fitness < fitnessFloor/2 {
		return 0
	}
	if test.Sharpe == 0 || train.Sharpe == 0 || train.Fitness == 0 {
		return 0
	}

	sharpeStability := test.Sharpe / train.Sharpe
	fitnessStability := test.Fitness / train.Fitness
	sign := 1.0
	if test.Sharpe < 0 {
		sign = -1.0
	}

	product := sharpeStability * fitnessStability
	if sharpeStability < 1 || fitnessStability < 1 {
		product = math.Min(1, sharpeStability) * math.Min(1, fitnessStability)
	}
	if product < 0 {
		// stabilities of opposite sign: the square root is undefined
		return 0
	}

	return Round2(sign * math.Sqrt(product))
}

// TurnoverStability is the symmetric similarity of train and test turnover,
// in (0, 1] when both are positive. Absent windows or zero turnover in both
// windows score 0.
func TurnoverStability(r *alpha.BacktestResult) float64 {
	if !r.HasSplit() {
		return 0
	}
	lo := math.Min(r.Train.Turnover, r.Test.Turnover)
	hi := math.Max(r.Train.Turnover, r.Test.Turnover)
	if hi <= 0 {
		return 0
	}
	return Round2(lo / hi)
}

// RoMaD is return over maximum drawdown. A non-positive drawdown scores 0.
func RoMaD(s alpha.Stats) float64 {
	if s.Drawdown <= 0 {
		return 0
	}
	return Round2(s.Returns / s.Drawdown)
}

// ReturnTurnoverRatio is returns per unit of turnover. A non-positive
// turnover scores 0.
func ReturnTurnoverRatio(s alpha.Stats) float64 {
	if s.Turnover <= 0 {
		return 0
	}
	return Round2(s.Returns / s.Turnover)
}

// Derived bundles every derived metric of a result.
type Derived struct {
	SubUniverseRobustness float64 `json:"sub_universe_robustness"`
	HasSubUniverse        bool    `json:"has_sub_universe"`
	AlphaQualityFactor    float64 `json:"alpha_quality_factor"`
	TurnoverStability     float64 `json:"turnover_stability"`
	RoMaD                 float64 `json:"romad"`
	ReturnTurnoverRatio   float64 `json:"return_turnover_ratio"`
	HasSplit              bool    `json:"has_split"`
}

// Calculator computes derived metrics with a fixed alias configuration.
// It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	subUniverseNames []string
}

// NewCalculator returns a calculator trying subUniverseNames for the
// sub-universe check; empty means alpha.SubUniverseChecks.
func NewCalculator(subUniverseNames []string) *Calculator {
	if len(subUniverseNames) == 0 {
		subUniverseNames = alpha.SubUniverseChecks
	}
	return &Calculator{subUniverseNames: append([]string(nil), subUniverseNames...)}
}

// SubUniverseNames returns the alias family in lookup order.
func (c *Calculator) SubUniverseNames() []string {
	return append([]string(nil), c.subUniverseNames...)
}

// Compute derives all metrics. The sharpe and fitness floors come from the
// mandatory LOW_SHARPE and LOW_FITNESS limits, so a result that failed
// validation yields an error here too.
func (c *Calculator) Compute(r *alpha.BacktestResult) (Derived, error) {
	sharpe, err := r.MustCheck(alpha.CheckLowSharpe)
	if err != nil {
		return Derived{}, err
	}
	fitness, err := r.MustCheck(alpha.CheckLowFitness)
	if err != nil {
		return Derived{}, err
	}

	d := Derived{
		AlphaQualityFactor:  AlphaQualityFactor(r, sharpe.Limit, fitness.Limit),
		TurnoverStability:   TurnoverStability(r),
		RoMaD:               RoMaD(r.InSample),
		ReturnTurnoverRatio: ReturnTurnoverRatio(r.InSample),
		HasSplit:            r.HasSplit(),
	}
	d.SubUniverseRobustness, d.HasSubUniverse = SubUniverseRobustness(r, c.subUniverseNames)
	return d, nil
}
