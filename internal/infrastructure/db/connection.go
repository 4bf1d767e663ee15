// Package db manages the PostgreSQL connection behind the iteration
// history.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sawpanic/alphaloop/internal/persistence"
	"github.com/sawpanic/alphaloop/internal/persistence/postgres"
)

// Manager owns the connection pool and the iteration repository.
type Manager struct {
	db     *sqlx.DB
	config Config
	repo   persistence.IterationRepo
	health *healthChecker
}

// NewManager connects when config.Enabled. A disabled manager has no
// repository and reports healthy.
func NewManager(ctx context.Context, config Config) (*Manager, error) {
	if !config.Enabled {
		return &Manager{config: config, health: &healthChecker{}}, nil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newManager(ctx, db, config)
}

func newManager(ctx context.Context, db *sqlx.DB, config Config) (*Manager, error) {
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &Manager{
		db:     db,
		config: config,
		repo:   postgres.NewIterationsRepo(db, config.QueryTimeout),
		health: &healthChecker{enabled: true, db: db, timeout: config.QueryTimeout},
	}, nil
}

// Iterations returns the repository, or nil when the database is disabled.
func (m *Manager) Iterations() persistence.IterationRepo {
	return m.repo
}

// Health returns the health checker.
func (m *Manager) Health() persistence.RepositoryHealth {
	return m.health
}

// IsEnabled reports whether a database is connected.
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.db != nil
}

// Close closes the pool.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

type healthChecker struct {
	enabled bool
	db      *sqlx.DB
	timeout time.Duration
}

func (h *healthChecker) Health(ctx context.Context) persistence.HealthCheck {
	if !h.enabled {
		return persistence.HealthCheck{
			Healthy:   true,
			Errors:    []string{"Database persistence disabled"},
			LastCheck: time.Now(),
		}
	}

	start := time.Now()
	var errs []string
	healthy := true
	if err := h.Ping(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("ping failed: %v", err))
		healthy = false
	}

	stats := h.db.Stats()
	return persistence.HealthCheck{
		Healthy: healthy,
		Errors:  errs,
		ConnectionPool: map[string]int{
			"max_open":   stats.MaxOpenConnections,
			"open":       stats.OpenConnections,
			"in_use":     stats.InUse,
			"idle":       stats.Idle,
			"wait_count": int(stats.WaitCount),
		},
		LastCheck:      time.Now(),
		ResponseTimeMS: time.Since(start).Milliseconds(),
	}
}

func (h *healthChecker) Ping(ctx context.Context) error {
	if !h.enabled {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.db.PingContext(pingCtx)
}
