package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	aio "github.com/sawpanic/alphaloop/internal/io"
	"github.com/sawpanic/alphaloop/internal/platform"
)

// FileStore keeps sessions in a JSON file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore uses the JSON file at path, created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) read() (map[string]*platform.Session, error) {
	sessions := map[string]*platform.Session{}
	err := aio.ReadJSON(f.path, &sessions)
	if errors.Is(err, os.ErrNotExist) {
		return sessions, nil
	}
	return sessions, err
}

// Load returns the stored session or ErrNotFound.
func (f *FileStore) Load(_ context.Context, account string) (*platform.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sessions, err := f.read()
	if err != nil {
		return nil, err
	}
	s, ok := sessions[account]
	if !ok || expired(s, time.Now()) {
		return nil, ErrNotFound
	}
	return s, nil
}

// Save stores s for account.
func (f *FileStore) Save(_ context.Context, account string, s *platform.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sessions, err := f.read()
	if err != nil {
		return err
	}
	sessions[account] = s
	return aio.WriteJSONAtomic(f.path, sessions, 0o600)
}

// Delete removes the stored session.
func (f *FileStore) Delete(_ context.Context, account string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	sessions, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := sessions[account]; !ok {
		return nil
	}
	delete(sessions, account)
	return aio.WriteJSONAtomic(f.path, sessions, 0o600)
}
