package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/alphaloop/internal/secrets"
)

// Session describes an authenticated session.
type Session struct {
	UserID    string        `json:"user_id"`
	Token     string        `json:"token"`
	TTL       time.Duration `json:"ttl"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// PersonaRequiredError means the platform wants biometric confirmation at
// URL before the login can complete.
type PersonaRequiredError struct {
	URL string
}

func (e *PersonaRequiredError) Error() string {
	return "biometric authentication required: " + e.URL
}

type authResponse struct {
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Token struct {
		Expiry float64 `json:"expiry"`
	} `json:"token"`
}

// CheckSession validates the current token. It returns ErrSessionExpired
// when there is no token or the platform no longer accepts it.
func (c *Client) CheckSession(ctx context.Context) (*Session, error) {
	if c.Token() == "" {
		return nil, ErrSessionExpired
	}
	resp, data, err := c.do(ctx, http.MethodGet, c.resolve("/authentication"), nil, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrSessionExpired
	case resp.StatusCode >= 300:
		return nil, newAPIError(resp, data)
	}
	return c.session(data)
}

// Login reuses a valid stored token or authenticates with creds. A
// *PersonaRequiredError must be resolved with CompletePersona.
func (c *Client) Login(ctx context.Context, creds secrets.Credentials) (*Session, error) {
	s, err := c.CheckSession(ctx)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionExpired) {
		return nil, err
	}

	log.Info().Msg("Logging in")
	resp, data, err := c.do(ctx, http.MethodPost, c.resolve("/authentication"), nil, func(r *http.Request) {
		r.SetBasicAuth(creds.Email, creds.Password)
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if resp.Header.Get("WWW-Authenticate") == "persona" {
			return nil, &PersonaRequiredError{URL: c.resolveFrom(resp, resp.Header.Get("Location"))}
		}
		return nil, ErrInvalidCredentials
	}
	if resp.StatusCode >= 300 {
		return nil, newAPIError(resp, data)
	}
	return c.session(data)
}

// CompletePersona finishes a login after the biometric step at url.
func (c *Client) CompletePersona(ctx context.Context, url string) (*Session, error) {
	resp, data, err := c.do(ctx, http.MethodPost, c.resolve(url), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("complete biometric login: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, newAPIError(resp, data)
	}
	return c.session(data)
}

func (c *Client) resolveFrom(resp *http.Response, location string) string {
	u, err := resp.Request.URL.Parse(location)
	if err != nil {
		return c.resolve(location).String()
	}
	return u.String()
}

func (c *Client) session(data []byte) (*Session, error) {
	var ar authResponse
	if err := json.Unmarshal(data, &ar); err != nil {
		return nil, fmt.Errorf("decode authentication: %w", err)
	}
	ttl := time.Duration(ar.Token.Expiry * float64(time.Second))
	s := &Session{
		UserID:    ar.User.ID,
		Token:     c.Token(),
		TTL:       ttl,
		ExpiresAt: time.Now().Add(ttl),
	}
	log.Info().Str("user", s.UserID).Dur("ttl", ttl).Msg("Logged in")
	return s, nil
}
