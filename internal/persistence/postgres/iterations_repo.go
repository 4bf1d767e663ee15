// Package postgres stores iterations in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/alphaloop/internal/persistence"
)

// Schema creates the iterations table.
const Schema = `
CREATE TABLE IF NOT EXISTS iterations (
	run_id      UUID        NOT NULL,
	idx         INTEGER     NOT NULL,
	expression  TEXT        NOT NULL,
	reasoning   TEXT        NOT NULL DEFAULT '',
	alpha_id    TEXT        NOT NULL DEFAULT '',
	submittable BOOLEAN     NOT NULL DEFAULT FALSE,
	feedback    TEXT        NOT NULL DEFAULT '',
	result      JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, idx)
)`

const uniqueViolation = "23505"

type iterationsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewIterationsRepo creates the PostgreSQL iteration repository.
func NewIterationsRepo(db *sqlx.DB, timeout time.Duration) persistence.IterationRepo {
	return &iterationsRepo{db: db, timeout: timeout}
}

// Migrate creates the schema if needed.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create iterations table: %w", err)
	}
	return nil
}

// Save inserts one iteration.
func (r *iterationsRepo) Save(ctx context.Context, it persistence.Iteration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var result []byte
	if len(it.Result) > 0 {
		result = it.Result
	}
	createdAt := it.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO iterations (run_id, idx, expression, reasoning, alpha_id, submittable, feedback, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		it.RunID.String(), it.Index, it.Expression, it.Reasoning, it.AlphaID,
		it.Submittable, it.Feedback, result, createdAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("iteration %s/%d: %w", it.RunID, it.Index, persistence.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert iteration: %w", err)
	}
	return nil
}

type iterationRow struct {
	RunID       string    `db:"run_id"`
	Index       int       `db:"idx"`
	Expression  string    `db:"expression"`
	Reasoning   string    `db:"reasoning"`
	AlphaID     string    `db:"alpha_id"`
	Submittable bool      `db:"submittable"`
	Feedback    string    `db:"feedback"`
	Result      []byte    `db:"result"`
	CreatedAt   time.Time `db:"created_at"`
}

// ListRun returns a run's iterations in order.
func (r *iterationsRepo) ListRun(ctx context.Context, runID uuid.UUID) ([]persistence.Iteration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_id, idx, expression, reasoning, alpha_id, submittable, feedback, result, created_at
		FROM iterations
		WHERE run_id = $1
		ORDER BY idx`

	rows, err := r.db.QueryxContext(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer rows.Close()

	var out []persistence.Iteration
	for rows.Next() {
		var row iterationRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		id, err := uuid.Parse(row.RunID)
		if err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", row.RunID, err)
		}
		out = append(out, persistence.Iteration{
			RunID:       id,
			Index:       row.Index,
			Expression:  row.Expression,
			Reasoning:   row.Reasoning,
			AlphaID:     row.AlphaID,
			Submittable: row.Submittable,
			Feedback:    row.Feedback,
			Result:      row.Result,
			CreatedAt:   row.CreatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read iterations: %w", err)
	}
	return out, nil
}
