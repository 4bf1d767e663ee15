package alpha

import (
	"encoding/json"
	"fmt"
)

// Stats is one statistics window of a backtest.
type Stats struct {
	Sharpe   float64          `json:"sharpe"`
	Fitness  float64          `json:"fitness"`
	Turnover float64          `json:"turnover"`
	Returns  float64          `json:"returns"`
	Drawdown float64          `json:"drawdown"`
	Margin   float64          `json:"margin"`
	PnL      PnL              `json:"pnl"`
	Checks   []ThresholdCheck `json:"checks,omitempty"`
}

// BacktestResult is the platform document for one simulated expression.
// InSample covers the full window; Train and Test are nil when the
// simulation ran without a test period.
type BacktestResult struct {
	ID       string `json:"id,omitempty"`
	InSample Stats  `json:"is"`
	Train    *Stats `json:"train,omitempty"`
	Test     *Stats `json:"test,omitempty"`
}

type document struct {
	ID       string          `json:"id"`
	InSample *Stats          `json:"is"`
	Train    json.RawMessage `json:"train"`
	Test     json.RawMessage `json:"test"`
}

// Decode parses a platform result document and validates it.
func Decode(data []byte) (*BacktestResult, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode backtest result: %w", err)
	}
	if doc.InSample == nil {
		return nil, ErrMissingInSample
	}

	r := &BacktestResult{ID: doc.ID, InSample: *doc.InSample}

	var err error
	if r.Train, err = decodeWindow(doc.Train, "train"); err != nil {
		return nil, err
	}
	if r.Test, err = decodeWindow(doc.Test, "test"); err != nil {
		return nil, err
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// decodeWindow treats null and {} as an absent window; the platform sends
// either when no test period was configured.
func decodeWindow(raw json.RawMessage, name string) (*Stats, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, nil
	}
	var s Stats
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode %s window: %w", name, err)
	}
	return &s, nil
}

// Validate reports the first missing mandatory check or a duplicated
// submission check. It runs before any metric is computed so that missing
// data fails loudly instead of producing silently wrong numbers. Checks
// outside the submission vocabulary may repeat.
func (r *BacktestResult) Validate() error {
	seen := make(map[string]struct{}, len(r.InSample.Checks))
	for _, c := range r.InSample.Checks {
		if _, dup := seen[c.Name]; dup && IsSubmissionCheck(c.Name) {
			return fmt.Errorf("%w: %s", ErrDuplicateCheck, c.Name)
		}
		seen[c.Name] = struct{}{}
	}

	for _, name := range MandatoryChecks {
		if _, ok := seen[name]; !ok {
			return &MissingCheckError{Name: name, AlphaID: r.ID}
		}
	}
	return nil
}

// Checks returns the in-sample threshold checks.
func (r *BacktestResult) Checks() []ThresholdCheck {
	return r.InSample.Checks
}

// Check looks up an in-sample check by name.
func (r *BacktestResult) Check(name string) (ThresholdCheck, bool) {
	return FindCheck(r.InSample.Checks, name)
}

// MustCheck looks up a check the caller cannot do without.
func (r *BacktestResult) MustCheck(name string) (ThresholdCheck, error) {
	c, ok := FindCheck(r.InSample.Checks, name)
	if !ok {
		return ThresholdCheck{}, &MissingCheckError{Name: name, AlphaID: r.ID}
	}
	return c, nil
}

// HasSplit reports whether both the train and test windows are present.
func (r *BacktestResult) HasSplit() bool {
	return r.Train != nil && r.Test != nil
}
