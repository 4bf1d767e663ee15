// Package config loads the alphaloop configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/alphaloop/internal/application/loop"
	"github.com/sawpanic/alphaloop/internal/explain"
	"github.com/sawpanic/alphaloop/internal/fastexpr"
	"github.com/sawpanic/alphaloop/internal/gates"
	"github.com/sawpanic/alphaloop/internal/infrastructure/db"
	httpserver "github.com/sawpanic/alphaloop/internal/interfaces/http"
	"github.com/sawpanic/alphaloop/internal/model"
	"github.com/sawpanic/alphaloop/internal/persistence/kafka"
	"github.com/sawpanic/alphaloop/internal/platform"
	"github.com/sawpanic/alphaloop/internal/prompt"
	"github.com/sawpanic/alphaloop/internal/session"
)

// DefaultPath is read when no --config flag is given and the file exists.
const DefaultPath = "config/alphaloop.yaml"

// Session backends.
const (
	SessionFile  = "file"
	SessionRedis = "redis"
	SessionNone  = "none"
)

// Config is the whole application configuration.
type Config struct {
	LogLevel      string `yaml:"log_level"`
	SecretsPrefix string `yaml:"secrets_prefix"`

	Platform platform.Config   `yaml:"platform"`
	Settings platform.Settings `yaml:"settings"`
	Model    model.Config      `yaml:"model"`
	Prompt   prompt.Config     `yaml:"prompt"`
	Loop     loop.Config       `yaml:"loop"`

	Gates          gates.Config           `yaml:"gates"`
	ReversalWindow string                 `yaml:"reversal_window"`
	Normalizer     []fastexpr.KeywordRule `yaml:"normalizer_rules"`

	Session SessionConfig           `yaml:"session"`
	Storage StorageConfig           `yaml:"storage"`
	Server  httpserver.ServerConfig `yaml:"server"`
}

// SessionConfig picks where platform sessions are cached.
type SessionConfig struct {
	Backend string              `yaml:"backend"`
	File    string              `yaml:"file"`
	Redis   session.RedisConfig `yaml:"redis"`
}

// StorageConfig lists the iteration sinks. The JSON directory is always
// written; the database and Kafka are optional.
type StorageConfig struct {
	Dir      string      `yaml:"dir"`
	Database db.Config   `yaml:"database"`
	Kafka    KafkaConfig `yaml:"kafka"`
}

// KafkaConfig enables the Kafka sink.
type KafkaConfig struct {
	Enabled      bool `yaml:"enabled"`
	kafka.Config `yaml:",inline"`
}

// Default returns a configuration that runs against the production
// platform with local file storage.
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		SecretsPrefix:  "",
		Platform:       platform.DefaultConfig(),
		Settings:       platform.DefaultSettings(),
		Model:          model.DefaultConfig(),
		Prompt:         prompt.DefaultConfig(),
		Loop:           loop.DefaultConfig(),
		Gates:          gates.DefaultConfig(),
		ReversalWindow: string(explain.WindowInSample),
		Normalizer:     append([]fastexpr.KeywordRule(nil), fastexpr.DefaultRules...),
		Session: SessionConfig{
			Backend: SessionFile,
			File:    filepath.Join(".alphaloop", "session.json"),
			Redis: session.RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: session.DefaultKeyPrefix,
			},
		},
		Storage: StorageConfig{
			Dir:      "results",
			Database: db.DefaultConfig(),
			Kafka: KafkaConfig{Config: kafka.Config{
				Topic:       "alphaloop.iterations",
				MaxAttempts: 3,
			}},
		},
		Server: httpserver.DefaultServerConfig(),
	}
}

// Load reads path on top of Default, applies environment overrides and
// validates the result. An empty path returns the defaults, or the file at
// DefaultPath when it exists.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg.Storage.Database.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section. Prompt inputs are checked by the commands
// that need them.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Platform.BaseURL == "" {
		return errors.New("platform base_url is required")
	}
	if err := c.Platform.Poll.Validate(); err != nil {
		return fmt.Errorf("platform poll: %w", err)
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("model: %w", err)
	}
	if err := c.Loop.Validate(); err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	if err := c.Gates.Validate(); err != nil {
		return fmt.Errorf("gates: %w", err)
	}
	if _, err := explain.ParseWindow(c.ReversalWindow); err != nil {
		return fmt.Errorf("reversal_window: %w", err)
	}
	for _, r := range c.Normalizer {
		if r.Func == "" || !strings.HasSuffix(r.Key, "=") {
			return fmt.Errorf("normalizer rule %q/%q needs a function and a key ending in '='", r.Func, r.Key)
		}
	}

	switch c.Session.Backend {
	case SessionFile:
		if c.Session.File == "" {
			return errors.New("session file path is required")
		}
	case SessionRedis:
		if c.Session.Redis.Addr == "" {
			return errors.New("session redis addr is required")
		}
	case SessionNone:
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}

	if c.Storage.Dir == "" {
		return errors.New("storage dir is required")
	}
	if err := c.Storage.Database.Validate(); err != nil {
		return fmt.Errorf("storage database: %w", err)
	}
	if c.Storage.Kafka.Enabled {
		if err := c.Storage.Kafka.Validate(); err != nil {
			return fmt.Errorf("storage kafka: %w", err)
		}
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// Window returns the parsed reversal window.
func (c *Config) Window() explain.Window {
	w, err := explain.ParseWindow(c.ReversalWindow)
	if err != nil {
		return explain.WindowInSample
	}
	return w
}

// NewNormalizer returns a normalizer for the configured rules.
func (c *Config) NewNormalizer() *fastexpr.Normalizer {
	return fastexpr.NewNormalizer(c.Normalizer...)
}

// Overrides are command-line values that win over the file.
type Overrides struct {
	LogLevel      string
	MaxIterations int
	Mode          string
	StorageDir    string
	DataFields    []string
	Operators     []string
}

// BindFlags registers the override flags on fs.
func (o *Overrides) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.IntVar(&o.MaxIterations, "max-iterations", 0, "iteration budget for a run")
	fs.StringVar(&o.Mode, "mode", "", "gates mode (advisory or gating)")
	fs.StringVar(&o.StorageDir, "storage-dir", "", "directory for run files")
	fs.StringSliceVar(&o.DataFields, "field", nil, "data field ID to prompt with (repeatable)")
	fs.StringSliceVar(&o.Operators, "operators", nil, "operator categories to include")
}

// Apply copies the set overrides into c and revalidates it.
func (o *Overrides) Apply(c *Config) error {
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.MaxIterations != 0 {
		c.Loop.MaxIterations = o.MaxIterations
	}
	if o.Mode != "" {
		mode, err := gates.ParseMode(o.Mode)
		if err != nil {
			return err
		}
		c.Gates.Mode = mode
	}
	if o.StorageDir != "" {
		c.Storage.Dir = o.StorageDir
	}
	if len(o.DataFields) > 0 {
		c.Prompt.DataFields = o.DataFields
	}
	if len(o.Operators) > 0 {
		c.Prompt.Operators = o.Operators
	}
	return c.Validate()
}
