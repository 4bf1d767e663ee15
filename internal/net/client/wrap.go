package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sawpanic/alphaloop/internal/net/circuit"
	"github.com/sawpanic/alphaloop/internal/net/ratelimit"
)

// DefaultUserAgent identifies the loop to the platform
const DefaultUserAgent = "alphaloop/1.0"

// WrapperConfig configures the HTTP client wrapper
type WrapperConfig struct {
	Provider       string
	UserAgent      string
	RateLimiter    *ratelimit.Limiter
	CircuitBreaker *circuit.Breaker
}

// Wrapper wraps an HTTP RoundTripper with rate limiting and circuit breaking.
// Responses below 500 are handed to the caller untouched, including 401 and
// 429, which carry protocol meaning for the platform client.
type Wrapper struct {
	config    WrapperConfig
	transport http.RoundTripper
}

// NewWrapper creates a new HTTP client wrapper
func NewWrapper(config WrapperConfig, transport http.RoundTripper) *Wrapper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	return &Wrapper{config: config, transport: transport}
}

// NewHTTPClient returns an http.Client using the wrapper as transport
func NewHTTPClient(config WrapperConfig, transport http.RoundTripper, jar http.CookieJar) *http.Client {
	return &http.Client{Transport: NewWrapper(config, transport), Jar: jar}
}

// RoundTrip implements http.RoundTripper
func (w *Wrapper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", w.config.UserAgent)
	}

	if w.config.RateLimiter != nil {
		if err := w.config.RateLimiter.Wait(req.Context(), req.URL.Host); err != nil {
			return nil, &ProviderError{
				Provider: w.config.Provider,
				Type:     "rate_limit",
				Err:      fmt.Errorf("rate limit wait failed: %w", err),
			}
		}
	}

	execute := func() (interface{}, error) {
		resp, err := w.transport.RoundTrip(req)
		if err != nil {
			return nil, &ProviderError{Provider: w.config.Provider, Type: "transport", Err: err}
		}
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &ProviderError{
				Provider:   w.config.Provider,
				Type:       "http_error",
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, body),
			}
		}
		return resp, nil
	}

	var (
		result interface{}
		err    error
	)
	if w.config.CircuitBreaker != nil {
		result, err = w.config.CircuitBreaker.Execute(execute)
		if errors.Is(err, circuit.ErrCircuitOpen) {
			err = &ProviderError{Provider: w.config.Provider, Type: "circuit", Err: err}
		}
	} else {
		result, err = execute()
	}
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// ProviderError represents an error from the upstream with context
type ProviderError struct {
	Provider   string `json:"provider"`
	Type       string `json:"type"` // "rate_limit", "circuit", "transport", "http_error"
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"`
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s %s error (HTTP %d): %v", e.Provider, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s %s error: %v", e.Provider, e.Type, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited returns true if the error is due to rate limiting
func (e *ProviderError) IsRateLimited() bool {
	return e.Type == "rate_limit"
}

// IsCircuitOpen returns true if the error is due to circuit breaker being open
func (e *ProviderError) IsCircuitOpen() bool {
	return e.Type == "circuit"
}

// Temporary reports whether retrying later may succeed
func (e *ProviderError) Temporary() bool {
	return e.Type != "rate_limit"
}
