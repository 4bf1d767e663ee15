package circuit

import (
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker rejects a call
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config represents circuit breaker configuration
type Config struct {
	Name                string        `yaml:"name"`
	MaxRequests         uint32        `yaml:"max_requests"`         // probes allowed while half-open
	Interval            time.Duration `yaml:"interval"`             // closed-state count reset period
	Timeout             time.Duration `yaml:"timeout"`              // open duration before half-open
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"` // failures that trip the breaker
	ErrorRateThreshold  float64       `yaml:"error_rate_threshold"` // percent, over at least 10 requests
}

// DefaultConfig is tuned for a single slow API with long-running jobs.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
		ErrorRateThreshold:  50,
	}
}

// Breaker guards calls to one upstream.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker; isSuccessful may be nil to count every
// non-nil error as a failure.
func NewBreaker(config Config, isSuccessful func(error) bool) *Breaker {
	settings := gobreaker.Settings{
		Name:          config.Name,
		MaxRequests:   config.MaxRequests,
		Interval:      config.Interval,
		Timeout:       config.Timeout,
		ReadyToTrip:   tripCondition(config),
		OnStateChange: logStateChange,
		IsSuccessful:  isSuccessful,
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Stats returns the breaker counters.
func (b *Breaker) Stats() Stats {
	counts := b.cb.Counts()
	return Stats{
		Name:                b.cb.Name(),
		State:               b.State(),
		Requests:            counts.Requests,
		TotalFailures:       counts.TotalFailures,
		ConsecutiveFailures: counts.ConsecutiveFailures,
	}
}

// Stats is a snapshot of a breaker.
type Stats struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	Requests            uint32 `json:"requests"`
	TotalFailures       uint32 `json:"total_failures"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// IsHealthy reports whether calls are currently let through
func (s Stats) IsHealthy() bool {
	return s.State != gobreaker.StateOpen.String()
}

func tripCondition(config Config) func(counts gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if config.ErrorRateThreshold > 0 && counts.Requests >= 10 {
			errorRate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
			if errorRate >= config.ErrorRateThreshold {
				return true
			}
		}
		return config.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= config.ConsecutiveFailures
	}
}

func logStateChange(name string, from, to gobreaker.State) {
	event := log.Info()
	if to == gobreaker.StateOpen {
		event = log.Warn()
	}
	event.Str("breaker", name).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state changed")
}
