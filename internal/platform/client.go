// Package platform is the HTTP client for the alpha simulation platform.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/alphaloop/internal/net/circuit"
	"github.com/sawpanic/alphaloop/internal/net/client"
	"github.com/sawpanic/alphaloop/internal/net/ratelimit"
	"github.com/sawpanic/alphaloop/internal/retry"
	"github.com/sawpanic/alphaloop/internal/secrets"
)

// DefaultBaseURL is the production API.
const DefaultBaseURL = "https://api.worldquantbrain.com"

// TokenCookie carries the session token.
const TokenCookie = "t"

var (
	// ErrNotReady marks a poll that should be repeated.
	ErrNotReady = errors.New("not ready")
	// ErrSessionExpired means the stored token no longer authenticates.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidCredentials is a plain 401 on login.
	ErrInvalidCredentials = errors.New("incorrect email or password")
)

// APIError is an unexpected HTTP status.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// redactor scrubs credentials the platform echoes back in error bodies.
var redactor = secrets.NewRedactor()

func newAPIError(resp *http.Response, body []byte) *APIError {
	text := redactor.RedactString(strings.TrimSpace(string(body)))
	if len(text) > 512 {
		text = text[:512]
	}
	return &APIError{
		Method:     resp.Request.Method,
		Path:       resp.Request.URL.Path,
		StatusCode: resp.StatusCode,
		Body:       text,
	}
}

// Config configures the client.
type Config struct {
	BaseURL   string         `yaml:"base_url"`
	RPS       float64        `yaml:"rps"`
	Burst     int            `yaml:"burst"`
	Timeout   time.Duration  `yaml:"timeout"`
	UserAgent string         `yaml:"user_agent"`
	Breaker   circuit.Config `yaml:"breaker"`
	Poll      retry.Policy   `yaml:"poll"`
}

// DefaultConfig returns production settings. Polling is bounded by time
// only since simulations report their own Retry-After.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		RPS:     2,
		Burst:   4,
		Timeout: 60 * time.Second,
		Breaker: circuit.DefaultConfig("platform"),
		Poll: retry.Policy{
			MaxElapsed:      30 * time.Minute,
			InitialInterval: 2 * time.Second,
			MaxInterval:     10 * time.Second,
			Constant:        true,
		},
	}
}

// Progress is reported while polling long-running requests.
type Progress struct {
	Stage    string
	Attempt  int
	Fraction float64 // -1 when the platform gives none
	AlphaID  string
}

// Option customises a Client.
type Option func(*Client)

// WithTransport replaces the base round tripper, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// WithProgress registers a polling progress callback.
func WithProgress(fn func(Progress)) Option {
	return func(c *Client) { c.progress = fn }
}

// Client talks to the platform. It holds the session cookie and is safe
// for concurrent use.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	jar       http.CookieJar
	transport http.RoundTripper
	poll      retry.Policy
	progress  func(Progress)
}

// New builds a client with rate limiting and circuit breaking.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid platform base URL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = circuit.DefaultConfig("platform")
	}

	c := &Client{baseURL: base, jar: jar, poll: cfg.Poll}
	for _, opt := range opts {
		opt(c)
	}

	c.http = client.NewHTTPClient(client.WrapperConfig{
		Provider:       "platform",
		UserAgent:      cfg.UserAgent,
		RateLimiter:    ratelimit.NewLimiter(cfg.RPS, cfg.Burst),
		CircuitBreaker: circuit.NewBreaker(cfg.Breaker, nil),
	}, c.transport, jar)
	c.http.Timeout = cfg.Timeout
	return c, nil
}

// Token returns the current session token, or "".
func (c *Client) Token() string {
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == TokenCookie {
			return ck.Value
		}
	}
	return ""
}

// SetToken installs a stored session token.
func (c *Client) SetToken(token string) {
	if token == "" {
		return
	}
	c.jar.SetCookies(c.baseURL, []*http.Cookie{{Name: TokenCookie, Value: token, Path: "/"}})
}

func (c *Client) resolve(ref string) *url.URL {
	u, err := url.Parse(ref)
	if err != nil {
		return c.baseURL.JoinPath(ref)
	}
	if u.IsAbs() {
		return u
	}
	if strings.HasPrefix(ref, "/") {
		out := *c.baseURL
		out.Path = strings.TrimRight(c.baseURL.Path, "/") + u.Path
		out.RawQuery = u.RawQuery
		return &out
	}
	return c.baseURL.ResolveReference(u)
}

// do sends a request and returns the response with its body fully read.
func (c *Client) do(ctx context.Context, method string, target *url.URL, payload interface{}, mutate func(*http.Request)) (*http.Response, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read %s %s: %w", method, target.Path, err)
	}
	return resp, data, nil
}

// getJSON performs a GET and decodes a 2xx body into out.
func (c *Client) getJSON(ctx context.Context, target *url.URL, out interface{}) error {
	resp, data, err := c.do(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return newAPIError(resp, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", target.Path, err)
	}
	return nil
}

// pollError turns a failed poll response into a retry decision.
func pollError(resp *http.Response, data []byte) error {
	apiErr := newAPIError(resp, data)
	if apiErr.Temporary() {
		return retry.After(retryAfter(resp), apiErr)
	}
	return retry.Permanent(apiErr)
}

// retryAfter reads Retry-After in (possibly fractional) seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func (c *Client) report(p Progress) {
	if c.progress != nil {
		c.progress(p)
	}
}
