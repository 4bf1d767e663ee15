package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Well-known secret keys.
const (
	KeyPlatformEmail    = "brain_email"
	KeyPlatformPassword = "brain_password"
	KeyModelAPIKeys     = "gemini_api_keys"
)

// SecretProvider defines the interface for secret sources
type SecretProvider interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (*Secret, error)
	// Name identifies the provider in errors and logs
	Name() string
}

// Secret represents a secret with metadata
type Secret struct {
	Key      string            `json:"key"`
	Value    []byte            `json:"-"` // Never serialize the actual value
	Metadata map[string]string `json:"metadata,omitempty"`
}

// String returns the secret value as a string
func (s *Secret) String() string {
	return string(s.Value)
}

// Redact returns a redacted version of the secret for logging
func (s *Secret) Redact() *Secret {
	redacted := *s
	if len(redacted.Value) > 0 {
		redacted.Value = []byte("[REDACTED]")
	}
	return &redacted
}

// ErrSecretNotFound is wrapped by every SecretNotFoundError
var ErrSecretNotFound = errors.New("secret not found")

// SecretNotFoundError wraps secret not found errors with context
type SecretNotFoundError struct {
	Key      string
	Provider string
}

func (e *SecretNotFoundError) Error() string {
	return fmt.Sprintf("secret '%s' not found in provider '%s'", e.Key, e.Provider)
}

func (e *SecretNotFoundError) Unwrap() error {
	return ErrSecretNotFound
}

// Manager resolves secrets from a primary provider with ordered fallbacks
type Manager struct {
	providers []SecretProvider
}

// NewManager creates a manager trying providers in order
func NewManager(primary SecretProvider, fallback ...SecretProvider) *Manager {
	return &Manager{providers: append([]SecretProvider{primary}, fallback...)}
}

// GetSecret returns the first provider's value for key
func (m *Manager) GetSecret(ctx context.Context, key string) (*Secret, error) {
	for _, p := range m.providers {
		secret, err := p.GetSecret(ctx, key)
		if err == nil {
			return secret, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return nil, fmt.Errorf("provider %s: %w", p.Name(), err)
		}
	}
	return nil, &SecretNotFoundError{Key: key, Provider: m.Name()}
}

// Name lists the providers in lookup order
func (m *Manager) Name() string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, ",")
}

// StaticProvider serves secrets from an in-memory map, typically the
// optional secrets block of the config file.
type StaticProvider map[string]string

// GetSecret implements SecretProvider
func (p StaticProvider) GetSecret(ctx context.Context, key string) (*Secret, error) {
	value, ok := p[strings.ToLower(key)]
	if !ok || value == "" {
		return nil, &SecretNotFoundError{Key: key, Provider: p.Name()}
	}
	return &Secret{Key: key, Value: []byte(value), Metadata: map[string]string{"source": "static"}}, nil
}

// Name implements SecretProvider
func (p StaticProvider) Name() string {
	return "static"
}
