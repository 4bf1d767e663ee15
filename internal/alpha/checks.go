package alpha

import (
	"errors"
	"fmt"
)

// Check names reported by the platform in the in-sample block.
const (
	CheckLowSharpe            = "LOW_SHARPE"
	CheckLowFitness           = "LOW_FITNESS"
	CheckLowTurnover          = "LOW_TURNOVER"
	CheckHighTurnover         = "HIGH_TURNOVER"
	CheckConcentratedWeight   = "CONCENTRATED_WEIGHT"
	CheckLowSubUniverseSharpe = "LOW_SUB_UNIVERSE_SHARPE"
	CheckISLadderSharpe       = "IS_LADDER_SHARPE"
	CheckLow2YSharpe          = "LOW_2Y_SHARPE"
	CheckSelfCorrelation      = "SELF_CORRELATION"
	CheckMatchesCompetition   = "MATCHES_COMPETITION"
)

// MandatoryChecks must be present in every in-sample block. Threshold
// comparisons are meaningless without them.
var MandatoryChecks = []string{
	CheckLowSharpe,
	CheckLowFitness,
	CheckLowTurnover,
	CheckHighTurnover,
	CheckConcentratedWeight,
}

// SubUniverseChecks and LadderChecks are alias families, primary name first.
// Only one member of a family is reported by a given platform region/version
// and the whole family may be absent.
var (
	SubUniverseChecks = []string{CheckLowSubUniverseSharpe}
	LadderChecks      = []string{CheckISLadderSharpe, CheckLow2YSharpe}
)

// SubmissionChecks is the fixed, ordered set of checks that decide
// submittability.
var SubmissionChecks = []string{
	CheckLowSharpe,
	CheckLowFitness,
	CheckLowTurnover,
	CheckHighTurnover,
	CheckConcentratedWeight,
	CheckLowSubUniverseSharpe,
	CheckISLadderSharpe,
	CheckLow2YSharpe,
}

// IsSubmissionCheck reports whether name belongs to SubmissionChecks.
func IsSubmissionCheck(name string) bool {
	for _, n := range SubmissionChecks {
		if n == name {
			return true
		}
	}
	return false
}

// Result is the platform verdict on a single threshold check.
type Result string

const (
	ResultPass    Result = "PASS"
	ResultFail    Result = "FAIL"
	ResultWarning Result = "WARNING"
	ResultPending Result = "PENDING"
	ResultError   Result = "ERROR"
)

// Passed reports whether the check explicitly passed. Every other state,
// including ones this package does not know about, counts as non-pass.
func (r Result) Passed() bool {
	return r == ResultPass
}

// ThresholdCheck is a named platform-side rule with its limit and,
// for most rules, the observed value.
type ThresholdCheck struct {
	Name    string   `json:"name"`
	Result  Result   `json:"result"`
	Limit   float64  `json:"limit"`
	Value   *float64 `json:"value,omitempty"`
	Message string   `json:"message,omitempty"`
}

// HasValue reports whether the platform reported an observed value.
func (c ThresholdCheck) HasValue() bool {
	return c.Value != nil
}

// ValueOr returns the observed value or def when it was not reported.
func (c ThresholdCheck) ValueOr(def float64) float64 {
	if c.Value == nil {
		return def
	}
	return *c.Value
}

var (
	// ErrMissingMandatoryCheck marks a result document lacking a check every
	// document is required to carry.
	ErrMissingMandatoryCheck = errors.New("missing mandatory check")
	// ErrDuplicateCheck marks a document that reports the same check twice.
	ErrDuplicateCheck = errors.New("duplicate check")
	// ErrMissingInSample marks a document without an in-sample block.
	ErrMissingInSample = errors.New("missing in-sample statistics")
)

// MissingCheckError names the mandatory check that was absent.
type MissingCheckError struct {
	Name    string
	AlphaID string
}

func (e *MissingCheckError) Error() string {
	if e.AlphaID != "" {
		return fmt.Sprintf("alpha %s: %s %s", e.AlphaID, ErrMissingMandatoryCheck, e.Name)
	}
	return fmt.Sprintf("%s %s", ErrMissingMandatoryCheck, e.Name)
}

func (e *MissingCheckError) Unwrap() error {
	return ErrMissingMandatoryCheck
}

// FindCheck returns the first check named name. The boolean is false when
// no such check exists; absence is never an error at this level.
func FindCheck(checks []ThresholdCheck, name string) (ThresholdCheck, bool) {
	for _, c := range checks {
		if c.Name == name {
			return c, true
		}
	}
	return ThresholdCheck{}, false
}

// FindFirst tries names in order and returns the first check present.
func FindFirst(checks []ThresholdCheck, names ...string) (ThresholdCheck, bool) {
	for _, name := range names {
		if c, ok := FindCheck(checks, name); ok {
			return c, true
		}
	}
	return ThresholdCheck{}, false
}
