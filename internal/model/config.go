package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/sawpanic/alphaloop/internal/retry"
)

// FieldSpec describes one property of the structured answer.
type FieldSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Hidden fields are requested from the model but left out of the
	// transcript.
	Hidden bool `yaml:"hidden"`
}

// Schema is the structured output the model must produce.
type Schema struct {
	Description string      `yaml:"description"`
	Fields      []FieldSpec `yaml:"fields"`
}

// HiddenFields lists the names of hidden fields.
func (s Schema) HiddenFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Hidden {
			out = append(out, f.Name)
		}
	}
	return out
}

// DefaultSchema asks for an expression and its reasoning.
func DefaultSchema() Schema {
	return Schema{
		Description: "Schema for Structured Output of Alpha Expression.",
		Fields: []FieldSpec{
			{
				Name:        FieldExpression,
				Description: "Alphas are Mathematical models that seek to predict the future price movement of various financial instruments.",
			},
			{
				Name: FieldReasoning,
				Description: "A detailed explanation of the thought process behind constructing this Alpha. " +
					"This should include the financial or statistical hypothesis, why specific operators and data fields were chosen, " +
					"and how they are intended to interact to predict price movements. " +
					"If this is an iteration, explain how it addresses previous results or explores new ideas.",
			},
		},
	}
}

// Config configures the model client.
type Config struct {
	Model          string       `yaml:"model"`
	Temperature    float32      `yaml:"temperature"`
	ThinkingBudget int32        `yaml:"thinking_budget"`
	Schema         Schema       `yaml:"schema"`
	Retry          retry.Policy `yaml:"retry"`
}

// DefaultConfig mirrors the production model settings.
func DefaultConfig() Config {
	return Config{
		Model:          "gemini-2.5-pro",
		Temperature:    1,
		ThinkingBudget: 32768,
		Schema:         DefaultSchema(),
		Retry: retry.Policy{
			MaxAttempts:     20,
			MaxElapsed:      30 * time.Minute,
			InitialInterval: 5 * time.Second,
			Constant:        true,
		},
	}
}

// Validate checks the model settings.
func (c Config) Validate() error {
	if c.Model == "" {
		return errors.New("model name is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature %.2f outside [0, 2]", c.Temperature)
	}
	hasExpr := false
	seen := map[string]bool{}
	for _, f := range c.Schema.Fields {
		if f.Name == "" {
			return errors.New("schema field without name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = true
		if f.Name == FieldExpression {
			if f.Hidden {
				return fmt.Errorf("schema field %q cannot be hidden", FieldExpression)
			}
			hasExpr = true
		}
	}
	if !hasExpr {
		return fmt.Errorf("schema must include %q", FieldExpression)
	}
	return c.Retry.Validate()
}
