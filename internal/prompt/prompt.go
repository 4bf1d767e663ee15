// Package prompt assembles the system prompt and the opening user turn.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/sawpanic/alphaloop/internal/platform"
)

const (
	// OperatorsPlaceholder is replaced by the operator catalogue.
	OperatorsPlaceholder = "{operators}"

	vectorCategory = "VECTOR"
	groupCategory  = "Group"
)

// Config selects prompt inputs.
type Config struct {
	SystemPromptFile string   `yaml:"system_prompt_file"`
	OperatorsDir     string   `yaml:"operators_dir"`
	Operators        []string `yaml:"operators"`
	DataFields       []string `yaml:"data_fields"`
	GroupFields      int      `yaml:"group_fields"`
}

// DefaultConfig reads prompts/ and operators/ relative to the working
// directory.
func DefaultConfig() Config {
	return Config{
		SystemPromptFile: "prompts/system.txt",
		OperatorsDir:     "operators",
		GroupFields:      6,
	}
}

// Validate checks that there is something to prompt with.
func (c Config) Validate() error {
	if c.SystemPromptFile == "" {
		return errors.New("system prompt file is required")
	}
	if len(c.DataFields) == 0 {
		return errors.New("at least one data field is required")
	}
	if c.GroupFields < 0 {
		return fmt.Errorf("group_fields %d must not be negative", c.GroupFields)
	}
	return nil
}

// FieldSource looks up data fields on the platform.
type FieldSource interface {
	DataField(ctx context.Context, id string) (platform.DataField, error)
	SearchDataFields(ctx context.Context, q platform.DataFieldQuery) ([]platform.DataField, error)
}

// Assembler builds prompts from files in fsys.
type Assembler struct {
	cfg  Config
	fsys fs.FS
}

// NewAssembler reads prompt files from fsys, usually os.DirFS(".").
func NewAssembler(cfg Config, fsys fs.FS) *Assembler {
	return &Assembler{cfg: cfg, fsys: fsys}
}

// InitialPrompt describes the configured data fields. It returns the
// operator categories to load, with VECTOR added when a vector field is
// used.
func (a *Assembler) InitialPrompt(ctx context.Context, src FieldSource, settings platform.Settings) (string, []string, error) {
	operators := append([]string(nil), a.cfg.Operators...)

	var b strings.Builder
	b.WriteString("Data Field Context:")
	for _, id := range a.cfg.DataFields {
		f, err := src.DataField(ctx, id)
		if err != nil {
			return "", nil, fmt.Errorf("data field %s: %w", id, err)
		}
		if f.Type == vectorCategory && !contains(operators, vectorCategory) {
			operators = append(operators, vectorCategory)
		}
		fmt.Fprintf(&b, "\n%s (%s): %s", id, f.Type, f.Description)
	}

	if contains(operators, groupCategory) && a.cfg.GroupFields > 0 {
		groups, err := src.SearchDataFields(ctx, platform.DataFieldQuery{
			InstrumentType: settings.InstrumentType,
			Region:         settings.Region,
			Delay:          settings.Delay,
			Universe:       settings.Universe,
			Type:           "GROUP",
		})
		if err != nil {
			return "", nil, fmt.Errorf("group fields: %w", err)
		}
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].AlphaCount > groups[j].AlphaCount })
		if len(groups) > a.cfg.GroupFields {
			groups = groups[:a.cfg.GroupFields]
		}
		lines := make([]string, len(groups))
		for i, g := range groups {
			lines[i] = g.ID + " (GROUP)"
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(lines, "\n"))
	}
	return b.String(), operators, nil
}

// Operators concatenates the operator files of each category. Categories
// starting with "!" are disabled.
func (a *Assembler) Operators(categories []string) (string, error) {
	var b strings.Builder
	b.WriteString("**Operators Context**\n\n")
	for _, cat := range categories {
		if cat == "" || strings.HasPrefix(cat, "!") {
			continue
		}
		data, err := fs.ReadFile(a.fsys, path.Join(a.cfg.OperatorsDir, cat+".txt"))
		if err != nil {
			return "", fmt.Errorf("operators %s: %w", cat, err)
		}
		fmt.Fprintf(&b, "# %s\n", cat)
		b.Write(data)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// SystemPrompt fills the template's operator placeholder.
func (a *Assembler) SystemPrompt(categories []string) (string, error) {
	tmpl, err := fs.ReadFile(a.fsys, a.cfg.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("system prompt: %w", err)
	}
	ops, err := a.Operators(categories)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(tmpl), OperatorsPlaceholder, strings.TrimSpace(ops)), nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
