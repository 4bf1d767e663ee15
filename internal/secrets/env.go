package secrets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvProvider implements SecretProvider for environment variables
type EnvProvider struct {
	prefix         string
	redactPatterns []*regexp.Regexp
	lookup         func(string) (string, bool)
}

// NewEnvProvider creates a new environment variable secret provider.
// Keys map to upper-cased variables, optionally prefixed ("PREFIX_KEY").
func NewEnvProvider(prefix string) *EnvProvider {
	defaultPatterns := []string{
		`(?i).*password.*`,
		`(?i).*secret.*`,
		`(?i).*key.*`,
		`(?i).*token.*`,
		`(?i).*dsn.*`,
		`(?i).*email.*`,
	}

	redactPatterns := make([]*regexp.Regexp, len(defaultPatterns))
	for i, pattern := range defaultPatterns {
		redactPatterns[i] = regexp.MustCompile(pattern)
	}

	return &EnvProvider{
		prefix:         prefix,
		redactPatterns: redactPatterns,
		lookup:         os.LookupEnv,
	}
}

// GetSecret retrieves a secret from environment variables
func (p *EnvProvider) GetSecret(ctx context.Context, key string) (*Secret, error) {
	envKey := p.buildEnvKey(key)
	value, ok := p.lookup(envKey)
	if !ok || value == "" {
		return nil, &SecretNotFoundError{Key: key, Provider: p.Name()}
	}

	return &Secret{
		Key:   key,
		Value: []byte(value),
		Metadata: map[string]string{
			"source":   "environment",
			"env_key":  envKey,
			"redacted": fmt.Sprint(p.ShouldRedact(envKey)),
		},
	}, nil
}

// Name implements SecretProvider
func (p *EnvProvider) Name() string {
	return "environment"
}

func (p *EnvProvider) buildEnvKey(key string) string {
	if p.prefix == "" {
		return strings.ToUpper(key)
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(p.prefix), strings.ToUpper(key))
}

// ShouldRedact reports whether a variable name looks sensitive
func (p *EnvProvider) ShouldRedact(envKey string) bool {
	for _, pattern := range p.redactPatterns {
		if pattern.MatchString(envKey) {
			return true
		}
	}
	return false
}
