package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/alphaloop/internal/config"
	"github.com/sawpanic/alphaloop/internal/platform"
	"github.com/sawpanic/alphaloop/internal/secrets"
	"github.com/sawpanic/alphaloop/internal/session"
)

// sessionStore opens the configured session backend. The returned closer
// is never nil.
func sessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.SessionRedis:
		store, err := session.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case config.SessionFile:
		return session.NewFileStore(cfg.File), noop, nil
	default:
		return nil, noop, nil
	}
}

// connect builds a platform client and logs in, reusing a stored session
// when it is still accepted. A biometric step is completed interactively.
func connect(ctx context.Context, cfg *config.Config, opts ...platform.Option) (*platform.Client, error) {
	provider := secrets.NewEnvProvider(cfg.SecretsPrefix)
	creds, err := secrets.PlatformCredentials(ctx, provider)
	if err != nil {
		return nil, err
	}

	client, err := platform.New(cfg.Platform, opts...)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := sessionStore(ctx, cfg.Session)
	if err != nil {
		log.Warn().Err(err).Msg("Session store unavailable, logging in without it")
	}
	defer closeStore()

	if store != nil {
		if err := session.Restore(ctx, store, creds.Email, client); err != nil {
			log.Warn().Err(err).Msg("Failed to restore session")
		}
	}

	s, err := login(ctx, client, creds, os.Stdin, os.Stdout)
	if err != nil {
		return nil, err
	}
	log.Info().Str("user", s.UserID).Dur("ttl", s.TTL).Msg("Authenticated")

	if store != nil {
		if err := store.Save(ctx, creds.Email, s); err != nil {
			log.Warn().Err(err).Msg("Failed to save session")
		}
	}
	return client, nil
}

func login(ctx context.Context, client *platform.Client, creds secrets.Credentials, in io.Reader, out io.Writer) (*platform.Session, error) {
	s, err := client.Login(ctx, creds)
	var persona *platform.PersonaRequiredError
	if !errors.As(err, &persona) {
		return s, err
	}

	fmt.Fprintf(out, "Complete biometric authentication at:\n%s\nPress Enter when done.\n", persona.URL)
	if _, err := bufio.NewReader(in).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return client.CompletePersona(ctx, persona.URL)
}
