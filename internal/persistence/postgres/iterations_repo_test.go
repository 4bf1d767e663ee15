package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/alphaloop/internal/persistence"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestIterationsRepo_Save(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIterationsRepo(db, time.Second)

	runID := uuid.New()
	created := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	it := persistence.Iteration{
		RunID:      runID,
		Index:      2,
		Expression: "rank(-returns)",
		AlphaID:    "kqXbr2E",
		Feedback:   "Sharpe: 1.5",
		Result:     []byte(`{"id":"kqXbr2E"}`),
		CreatedAt:  created,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO iterations")).
		WithArgs(runID.String(), 2, "rank(-returns)", "", "kqXbr2E", false, "Sharpe: 1.5", []byte(`{"id":"kqXbr2E"}`), created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), it))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIterationsRepo_SaveDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIterationsRepo(db, time.Second)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO iterations")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := repo.Save(context.Background(), persistence.Iteration{RunID: uuid.New(), Expression: "x"})
	assert.ErrorIs(t, err, persistence.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIterationsRepo_ListRun(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIterationsRepo(db, time.Second)

	runID := uuid.New()
	created := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"run_id", "idx", "expression", "reasoning", "alpha_id", "submittable", "feedback", "result", "created_at"}).
		AddRow(runID.String(), 0, "rank(close)", "momentum", "a1", false, "NOT", []byte(`{"id":"a1"}`), created).
		AddRow(runID.String(), 1, "rank(-returns)", "reversal", "a2", true, "OK", nil, created)

	mock.ExpectQuery(regexp.QuoteMeta("FROM iterations")).
		WithArgs(runID.String()).
		WillReturnRows(rows)

	got, err := repo.ListRun(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, runID, got[0].RunID)
	assert.JSONEq(t, `{"id":"a1"}`, string(got[0].Result))
	assert.True(t, got[1].Submittable)
	assert.Empty(t, got[1].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS iterations")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
