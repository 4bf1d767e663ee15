package secrets

import (
	"context"
	"fmt"
	"strings"
)

// Credentials authenticate against the simulation platform.
type Credentials struct {
	Email    string
	Password string
}

// String never prints the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Email: %s, Password: [REDACTED]}", c.Email)
}

// PlatformCredentials loads the platform login.
func PlatformCredentials(ctx context.Context, p SecretProvider) (Credentials, error) {
	email, err := p.GetSecret(ctx, KeyPlatformEmail)
	if err != nil {
		return Credentials{}, fmt.Errorf("platform email: %w", err)
	}
	password, err := p.GetSecret(ctx, KeyPlatformPassword)
	if err != nil {
		return Credentials{}, fmt.Errorf("platform password: %w", err)
	}
	return Credentials{Email: email.String(), Password: password.String()}, nil
}

// ModelAPIKeys loads the comma-separated model API keys in rotation order.
func ModelAPIKeys(ctx context.Context, p SecretProvider) ([]string, error) {
	secret, err := p.GetSecret(ctx, KeyModelAPIKeys)
	if err != nil {
		return nil, fmt.Errorf("model API keys: %w", err)
	}

	var keys []string
	for _, k := range strings.Split(secret.String(), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, &SecretNotFoundError{Key: KeyModelAPIKeys, Provider: p.Name()}
	}
	return keys, nil
}
