package chat

import (
	"context"
	"errors"
	"strings"

	"chatrecall/internal/settings"
	"chatrecall/internal/storage"
)

type HistoryRequest struct {
	Settings settings.Raw
	Search   string
}

// History returns the newest logged exchanges, optionally filtered. With no
// database configured it returns an empty list and no error. On a read
// failure it still returns an empty, non-nil list alongside the error.
func (s *Service) History(ctx context.Context, req HistoryRequest) ([]storage.Record, error) {
	cfg := settings.Resolve(req.Settings, s.env)
	if !cfg.PersistenceConfigured() {
		s.metrics.LogReads.WithLabelValues("unconfigured").Inc()
		return []storage.Record{}, nil
	}

	var (
		recs []storage.Record
		err  error
	)
	if term := strings.TrimSpace(req.Search); term != "" {
		recs, err = s.store.Search(ctx, cfg.DatabaseURI, cfg.DatabaseName, term, s.historyLimit)
	} else {
		recs, err = s.store.ReadRecent(ctx, cfg.DatabaseURI, cfg.DatabaseName, s.historyLimit)
	}
	if err != nil {
		s.metrics.LogReads.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Str("uri", storage.RedactURI(cfg.DatabaseURI)).Msg("failed to load logs")
		return []storage.Record{}, err
	}
	s.metrics.LogReads.WithLabelValues("ok").Inc()
	if recs == nil {
		recs = []storage.Record{}
	}
	return recs, nil
}

var ErrMissingURI = errors.New("Missing or invalid mongoUri")

// TestConnection pings the given store and returns every failure as is.
func (s *Service) TestConnection(ctx context.Context, uri, dbName string) error {
	if strings.TrimSpace(uri) == "" {
		return ErrMissingURI
	}
	return s.store.Ping(ctx, strings.TrimSpace(uri), strings.TrimSpace(dbName))
}
