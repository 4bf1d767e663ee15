package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sawpanic/alphaloop/internal/alpha"
	"github.com/sawpanic/alphaloop/internal/retry"
)

// Settings are the fixed simulation settings sent with every expression.
type Settings struct {
	InstrumentType string  `json:"instrumentType" yaml:"instrument_type"`
	Region         string  `json:"region" yaml:"region"`
	Universe       string  `json:"universe" yaml:"universe"`
	Delay          int     `json:"delay" yaml:"delay"`
	Decay          int     `json:"decay" yaml:"decay"`
	Neutralization string  `json:"neutralization" yaml:"neutralization"`
	Truncation     float64 `json:"truncation" yaml:"truncation"`
	Pasteurization string  `json:"pasteurization" yaml:"pasteurization"`
	TestPeriod     string  `json:"testPeriod" yaml:"test_period"`
	UnitHandling   string  `json:"unitHandling" yaml:"unit_handling"`
	NanHandling    string  `json:"nanHandling" yaml:"nan_handling"`
	Language       string  `json:"language" yaml:"language"`
	Visualization  bool    `json:"visualization" yaml:"visualization"`
}

// DefaultSettings simulate US top-3000 equities with a one-year test period.
func DefaultSettings() Settings {
	return Settings{
		InstrumentType: "EQUITY",
		Region:         "USA",
		Universe:       "TOP3000",
		Delay:          1,
		Decay:          0,
		Neutralization: "INDUSTRY",
		Truncation:     0,
		Pasteurization: "ON",
		TestPeriod:     "P1Y",
		UnitHandling:   "VERIFY",
		NanHandling:    "ON",
		Language:       "FASTEXPR",
		Visualization:  false,
	}
}

// SimulationPayload is the body of a simulation request.
type SimulationPayload struct {
	Type     string   `json:"type"`
	Settings Settings `json:"settings"`
	Regular  string   `json:"regular"`
}

// NewSimulation wraps a regular expression with settings.
func NewSimulation(settings Settings, expression string) SimulationPayload {
	return SimulationPayload{Type: "REGULAR", Settings: settings, Regular: expression}
}

// SimulationError is a simulation the platform rejected, for example on a
// syntax error in the expression.
type SimulationError struct {
	Status  string
	Message string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation %s: %s", e.Status, e.Message)
}

type simulationProgress struct {
	Progress *float64 `json:"progress"`
	Status   string   `json:"status"`
	Message  string   `json:"message"`
	Alpha    string   `json:"alpha"`
}

// Simulate submits payload and waits for the resulting alpha ID.
func (c *Client) Simulate(ctx context.Context, payload SimulationPayload) (string, error) {
	resp, data, err := c.do(ctx, http.MethodPost, c.resolve("/simulations"), payload, nil)
	if err != nil {
		return "", fmt.Errorf("submit simulation: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", newAPIError(resp, data)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("submit simulation: response has no Location header")
	}
	progressURL, err := resp.Request.URL.Parse(location)
	if err != nil {
		return "", fmt.Errorf("submit simulation: bad Location %q: %w", location, err)
	}

	return retry.Do(ctx, c.poll, "simulation", func(ctx context.Context, attempt int) (string, error) {
		resp, data, err := c.do(ctx, http.MethodGet, progressURL, nil, nil)
		if err != nil {
			return "", err
		}
		if resp.StatusCode >= 300 {
			return "", pollError(resp, data)
		}

		var p simulationProgress
		if err := json.Unmarshal(data, &p); err != nil {
			return "", retry.After(retryAfter(resp), ErrNotReady)
		}
		if p.Alpha != "" {
			c.report(Progress{Stage: "simulation", Attempt: attempt, Fraction: 1, AlphaID: p.Alpha})
			return p.Alpha, nil
		}
		if p.Status == "ERROR" || p.Status == "FAIL" {
			return "", retry.Permanent(&SimulationError{Status: p.Status, Message: p.Message})
		}

		fraction := -1.0
		if p.Progress != nil {
			fraction = *p.Progress
		}
		c.report(Progress{Stage: "simulation", Attempt: attempt, Fraction: fraction})
		return "", retry.After(retryAfter(resp), ErrNotReady)
	})
}

// pollDocument GETs target until the platform returns a non-empty body.
func (c *Client) pollDocument(ctx context.Context, stage string, target *url.URL) ([]byte, error) {
	return retry.Do(ctx, c.poll, stage, func(ctx context.Context, attempt int) ([]byte, error) {
		resp, data, err := c.do(ctx, http.MethodGet, target, nil, nil)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			return nil, pollError(resp, data)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			c.report(Progress{Stage: stage, Attempt: attempt, Fraction: -1})
			return nil, retry.After(retryAfter(resp), ErrNotReady)
		}
		return data, nil
	})
}

// Result fetches and decodes the backtest result of an alpha. The raw
// document is returned even when validation fails.
func (c *Client) Result(ctx context.Context, alphaID string) (*alpha.BacktestResult, []byte, error) {
	raw, err := c.pollDocument(ctx, "result", c.resolve("/alphas/"+url.PathEscape(alphaID)))
	if err != nil {
		return nil, nil, err
	}
	r, err := alpha.Decode(raw)
	return r, raw, err
}

// PnL fetches the daily cumulative PnL series of an alpha.
func (c *Client) PnL(ctx context.Context, alphaID string) ([]alpha.PnLPoint, error) {
	raw, err := c.pollDocument(ctx, "pnl", c.resolve("/alphas/"+url.PathEscape(alphaID)+"/recordsets/pnl"))
	if err != nil {
		return nil, err
	}
	var recordset struct {
		Records json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(raw, &recordset); err != nil {
		return nil, fmt.Errorf("decode pnl recordset: %w", err)
	}
	if len(recordset.Records) == 0 {
		return nil, nil
	}
	return alpha.ParsePnLRecords(recordset.Records)
}
