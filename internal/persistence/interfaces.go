// Package persistence records loop iterations.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/alphaloop/internal/alpha"
	"github.com/sawpanic/alphaloop/internal/model"
)

// ErrDuplicate means the iteration was already stored.
var ErrDuplicate = errors.New("iteration already recorded")

// Iteration is one generate-simulate-evaluate round of a run.
type Iteration struct {
	RunID       uuid.UUID       `json:"run_id" db:"run_id"`
	Index       int             `json:"index" db:"idx"`
	Expression  string          `json:"expression" db:"expression"`
	Reasoning   string          `json:"reasoning" db:"reasoning"`
	AlphaID     string          `json:"alpha_id" db:"alpha_id"`
	Submittable bool            `json:"submittable" db:"submittable"`
	Feedback    string          `json:"feedback" db:"feedback"`
	Result      json.RawMessage `json:"result,omitempty" db:"result"`
	PnL         alpha.PnL       `json:"pnl" db:"-"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Sink stores iterations.
type Sink interface {
	Save(ctx context.Context, it Iteration) error
}

// TranscriptSink also keeps the latest conversation of a run.
type TranscriptSink interface {
	SaveTranscript(ctx context.Context, runID uuid.UUID, t model.Transcript) error
}

// IterationRepo is a queryable sink.
type IterationRepo interface {
	Sink
	ListRun(ctx context.Context, runID uuid.UUID) ([]Iteration, error)
}

// HealthCheck reports the state of a backing store.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool,omitempty"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth is implemented by stores that can be probed.
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}

// MultiSink fans iterations out to every sink. All sinks are attempted;
// their errors are joined.
type MultiSink []Sink

// Save implements Sink.
func (m MultiSink) Save(ctx context.Context, it Iteration) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, it); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveTranscript forwards to the sinks that keep transcripts.
func (m MultiSink) SaveTranscript(ctx context.Context, runID uuid.UUID, t model.Transcript) error {
	var errs []error
	for _, s := range m {
		ts, ok := s.(TranscriptSink)
		if !ok {
			continue
		}
		if err := ts.SaveTranscript(ctx, runID, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
