package db

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Disabled(t *testing.T) {
	m, err := NewManager(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.False(t, m.IsEnabled())
	assert.Nil(t, m.Iterations())
	assert.True(t, m.Health().Health(context.Background()).Healthy)
	assert.NoError(t, m.Close())
}

func TestNewManager_MigratesAndPings(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS iterations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPing()

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.DSN = "postgres://localhost/alphaloop"

	m, err := newManager(context.Background(), sqlx.NewDb(raw, "postgres"), cfg)
	require.NoError(t, err)
	assert.True(t, m.IsEnabled())
	assert.NotNil(t, m.Iterations())

	h := m.Health().Health(context.Background())
	assert.True(t, h.Healthy)
	assert.Equal(t, 4, h.ConnectionPool["max_open"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.DSN = "postgres://localhost/alphaloop"
	assert.NoError(t, cfg.Validate())

	cfg.MaxIdleConns = 10
	assert.Error(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://env/alphaloop")
	t.Setenv("PG_ENABLED", "true")
	t.Setenv("PG_QUERY_TIMEOUT", "3s")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "postgres://env/alphaloop", cfg.DSN)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 3*time.Second, cfg.QueryTimeout)
}
