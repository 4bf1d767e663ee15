// Package jsonfile keeps a run's iterations and transcript as JSON files.
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	aio "github.com/sawpanic/alphaloop/internal/io"
	"github.com/sawpanic/alphaloop/internal/model"
	"github.com/sawpanic/alphaloop/internal/persistence"
)

// NameLayout names run files after their start time.
const NameLayout = "02012006-150405"

// Store writes <dir>/simulations/<name>.json, a JSON array with one entry
// per iteration, and <dir>/contexts/<name>.json with the latest transcript.
type Store struct {
	dir  string
	name string
	mu   sync.Mutex
}

// New creates the store and an empty simulations file. An empty name
// uses the current time.
func New(dir, name string) (*Store, error) {
	if name == "" {
		name = time.Now().Format(NameLayout)
	}
	s := &Store{dir: dir, name: name}
	if err := aio.WriteJSONAtomic(s.SimulationsPath(), []persistence.Iteration{}, 0o644); err != nil {
		return nil, fmt.Errorf("create simulations file: %w", err)
	}
	return s, nil
}

// SimulationsPath is the iterations file.
func (s *Store) SimulationsPath() string {
	return filepath.Join(s.dir, "simulations", s.name+".json")
}

// TranscriptPath is the transcript file.
func (s *Store) TranscriptPath() string {
	return filepath.Join(s.dir, "contexts", s.name+".json")
}

// Save appends it to the simulations file.
func (s *Store) Save(_ context.Context, it persistence.Iteration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	its, err := s.load()
	if err != nil {
		return err
	}
	its = append(its, it)
	return aio.WriteJSONAtomic(s.SimulationsPath(), its, 0o644)
}

// SaveTranscript rewrites the transcript file.
func (s *Store) SaveTranscript(_ context.Context, runID uuid.UUID, t model.Transcript) error {
	doc := struct {
		RunID uuid.UUID    `json:"run_id"`
		Turns []model.Turn `json:"turns"`
	}{RunID: runID, Turns: t.Turns}
	return aio.WriteJSONAtomic(s.TranscriptPath(), doc, 0o644)
}

// ListRun returns the stored iterations of runID.
func (s *Store) ListRun(_ context.Context, runID uuid.UUID) ([]persistence.Iteration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	its, err := s.load()
	if err != nil {
		return nil, err
	}
	var out []persistence.Iteration
	for _, it := range its {
		if it.RunID == runID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Store) load() ([]persistence.Iteration, error) {
	var its []persistence.Iteration
	err := aio.ReadJSON(s.SimulationsPath(), &its)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return its, err
}
