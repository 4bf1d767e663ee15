package gates

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/alphaloop/internal/alpha"
)

// Mode selects how derived metrics take part in the verdict.
type Mode string

const (
	// ModeAdvisory decides on platform checks alone; derived metrics are
	// reported with their bounds but never block submission.
	ModeAdvisory Mode = "advisory"
	// ModeGating additionally requires every enabled derived-metric bound.
	ModeGating Mode = "gating"
)

// ParseMode accepts the mode names case-insensitively. Empty means advisory.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAdvisory:
		return ModeAdvisory, nil
	case ModeGating:
		return ModeGating, nil
	default:
		return "", fmt.Errorf("unknown evaluation mode %q (want advisory or gating)", s)
	}
}

// Bound is a lower bound on a derived metric. Enabled bounds become hard
// gates in gating mode.
type Bound struct {
	Min     float64 `yaml:"min" json:"min"`
	Enabled bool    `yaml:"enabled" json:"enabled"`
}

// Config holds the submittability policy.
type Config struct {
	Mode Mode `yaml:"mode"`

	// SubUniverseChecks is the sub-universe alias family, primary first.
	SubUniverseChecks []string `yaml:"sub_universe_checks"`

	AlphaQualityFactor    Bound `yaml:"alpha_quality_factor"`    // ≥1
	ReturnTurnoverRatio   Bound `yaml:"return_turnover_ratio"`   // ≥2
	TurnoverStability     Bound `yaml:"turnover_stability"`      // ≥0.85
	SubUniverseRobustness Bound `yaml:"sub_universe_robustness"` // ≥0.75, only when reported
	RoMaD                 Bound `yaml:"romad"`                   // advisory unless enabled
}

// DefaultConfig returns the advisory policy with the standard bounds.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeAdvisory,
		SubUniverseChecks:     append([]string(nil), alpha.SubUniverseChecks...),
		AlphaQualityFactor:    Bound{Min: 1.0, Enabled: true},
		ReturnTurnoverRatio:   Bound{Min: 2.0, Enabled: true},
		TurnoverStability:     Bound{Min: 0.85, Enabled: true},
		SubUniverseRobustness: Bound{Min: 0.75, Enabled: true},
		RoMaD:                 Bound{Min: 1.0, Enabled: false},
	}
}

// LoadConfig reads a policy file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read gates config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse gates YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid gates configuration: %w", err)
	}
	return cfg, nil
}

// Validate ensures the policy is usable.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if len(c.SubUniverseChecks) == 0 {
		return fmt.Errorf("sub_universe_checks must name at least one check")
	}
	for _, name := range c.SubUniverseChecks {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("sub_universe_checks contains an empty name")
		}
	}

	bounds := map[string]Bound{
		"alpha_quality_factor":    c.AlphaQualityFactor,
		"return_turnover_ratio":   c.ReturnTurnoverRatio,
		"turnover_stability":      c.TurnoverStability,
		"sub_universe_robustness": c.SubUniverseRobustness,
		"romad":                   c.RoMaD,
	}
	for name, b := range bounds {
		if b.Min < -10 || b.Min > 100 {
			return fmt.Errorf("invalid %s bound: %.2f (must be -10 to 100)", name, b.Min)
		}
	}
	if c.TurnoverStability.Min > 1 {
		return fmt.Errorf("invalid turnover_stability bound: %.2f (stability never exceeds 1)", c.TurnoverStability.Min)
	}
	return nil
}

// DescribeThresholds returns a one-line summary of the policy.
func (c Config) DescribeThresholds() string {
	return fmt.Sprintf("Mode: %s | AQF: ≥%.2f | Return/Turnover: ≥%.2f | Turnover stability: ≥%.2f | SUR: ≥%.2f | RoMaD: ≥%.2f (gate %t)",
		c.Mode,
		c.AlphaQualityFactor.Min,
		c.ReturnTurnoverRatio.Min,
		c.TurnoverStability.Min,
		c.SubUniverseRobustness.Min,
		c.RoMaD.Min,
		c.RoMaD.Enabled)
}
