// Package session persists platform session tokens between runs.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/sawpanic/alphaloop/internal/platform"
)

// ErrNotFound means no usable session is stored for the account.
var ErrNotFound = errors.New("session not found")

// Store loads and saves platform sessions keyed by account.
type Store interface {
	Load(ctx context.Context, account string) (*platform.Session, error)
	Save(ctx context.Context, account string, s *platform.Session) error
	Delete(ctx context.Context, account string) error
}

// Restore installs a stored token into c. A missing session is not an
// error; the client will log in with credentials instead.
func Restore(ctx context.Context, store Store, account string, c *platform.Client) error {
	s, err := store.Load(ctx, account)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	c.SetToken(s.Token)
	return nil
}

func expired(s *platform.Session, now time.Time) bool {
	return s.Token == "" || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}
