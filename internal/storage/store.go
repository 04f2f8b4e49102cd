package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNotConfigured     = errors.New("log store is not configured")
	ErrConnection        = errors.New("log store connection failed")
	ErrWrite             = errors.New("log store write failed")
	ErrRead              = errors.New("log store read failed")
	ErrUnsupportedScheme = errors.New("unsupported log store scheme")
)

type Config struct {
	// Timeout bounds one whole connect/operate/close cycle.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Store opens a fresh backend connection for every operation and releases it
// on every exit path. Nothing is cached between calls because the target
// URI can change with each request.
type Store struct {
	timeout time.Duration
	logger  zerolog.Logger
	open    openFunc
}

func New(cfg Config) *Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Store{timeout: cfg.Timeout, logger: cfg.Logger, open: openBackend}
}

func (s *Store) Ping(ctx context.Context, uri, dbName string) error {
	return s.with(ctx, uri, dbName, func(ctx context.Context, b backend) error {
		if err := b.Ping(ctx); err != nil {
			return fmt.Errorf("%w: ping: %w", ErrConnection, err)
		}
		return nil
	})
}

func (s *Store) Write(ctx context.Context, uri, dbName string, rec Record) error {
	return s.with(ctx, uri, dbName, func(ctx context.Context, b backend) error {
		if err := b.Insert(ctx, rec); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
		return nil
	})
}

func (s *Store) ReadRecent(ctx context.Context, uri, dbName string, limit int) ([]Record, error) {
	return s.find(ctx, uri, dbName, Query{Limit: limit})
}

// Search matches term case-insensitively against question or answer. A blank
// term behaves exactly like ReadRecent.
func (s *Store) Search(ctx context.Context, uri, dbName, term string, limit int) ([]Record, error) {
	return s.find(ctx, uri, dbName, Query{Term: term, Limit: limit})
}

func (s *Store) find(ctx context.Context, uri, dbName string, q Query) ([]Record, error) {
	q = q.normalize()
	var out []Record
	err := s.with(ctx, uri, dbName, func(ctx context.Context, b backend) error {
		recs, err := b.Find(ctx, q)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRead, err)
		}
		out = recs
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

func (s *Store) with(ctx context.Context, uri, dbName string, fn func(context.Context, backend) error) error {
	if strings.TrimSpace(uri) == "" {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	b, err := s.open(ctx, uri, dbName)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := b.Close(closeCtx); err != nil {
			s.logger.Warn().Err(err).Str("uri", RedactURI(uri)).Msg("failed to close log store connection")
		}
	}()

	return fn(ctx, b)
}
