package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/alphaloop/internal/config"
	"github.com/sawpanic/alphaloop/internal/infrastructure/db"
	"github.com/sawpanic/alphaloop/internal/persistence"
	"github.com/sawpanic/alphaloop/internal/persistence/jsonfile"
	"github.com/sawpanic/alphaloop/internal/persistence/kafka"
)

// storage bundles the sinks of one run.
type storage struct {
	sinks   persistence.MultiSink
	files   *jsonfile.Store
	db      *db.Manager
	closers []func() error
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (*storage, error) {
	st := &storage{}

	files, err := jsonfile.New(cfg.Dir, "")
	if err != nil {
		return nil, err
	}
	st.files = files
	st.sinks = append(st.sinks, files)

	manager, err := db.NewManager(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	st.db = manager
	st.closers = append(st.closers, manager.Close)
	if manager.IsEnabled() {
		st.sinks = append(st.sinks, manager.Iterations())
	}

	if cfg.Kafka.Enabled {
		sink, err := kafka.NewSink(cfg.Kafka.Config)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		st.sinks = append(st.sinks, sink)
		st.closers = append(st.closers, sink.Close)
	}

	log.Info().
		Str("simulations", files.SimulationsPath()).
		Bool("database", manager.IsEnabled()).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("Storage ready")
	return st, nil
}

func (s *storage) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
