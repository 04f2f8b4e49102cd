package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chatrecall/internal/metrics"
	"chatrecall/internal/providers"
	"chatrecall/internal/providers/registry"
	"chatrecall/internal/settings"
	"chatrecall/internal/stats"
	"chatrecall/internal/storage"
)

var ErrInvalidMessage = errors.New("Missing 'message'")

// LogStore is the part of storage.Store the pipeline needs.
type LogStore interface {
	Ping(ctx context.Context, uri, dbName string) error
	Write(ctx context.Context, uri, dbName string, rec storage.Record) error
	ReadRecent(ctx context.Context, uri, dbName string, limit int) ([]storage.Record, error)
	Search(ctx context.Context, uri, dbName, term string, limit int) ([]storage.Record, error)
}

var _ LogStore = (*storage.Store)(nil)

type ProviderFactory func(cfg settings.Effective) (providers.Provider, error)

type Config struct {
	Store           LogStore
	Env             settings.EnvDefaults
	Providers       ProviderFactory
	ProviderTimeout time.Duration
	HistoryLimit    int
	Logger          zerolog.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

type Service struct {
	store           LogStore
	env             settings.EnvDefaults
	providers       ProviderFactory
	providerTimeout time.Duration
	historyLimit    int
	logger          zerolog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.Providers == nil {
		cfg.Providers = func(eff settings.Effective) (providers.Provider, error) {
			return registry.Build(eff, registry.BuildOptions{})
		}
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 60 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = storage.DefaultLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:           cfg.Store,
		env:             cfg.Env,
		providers:       cfg.Providers,
		providerTimeout: cfg.ProviderTimeout,
		historyLimit:    cfg.HistoryLimit,
		logger:          cfg.Logger,
		metrics:         m,
		now:             cfg.Now,
	}
}

type Request struct {
	Message   string
	SessionID *string
	Settings  settings.Raw
}

type Response struct {
	Answer string          `json:"answer"`
	Logged bool            `json:"logged"`
	Stats  stats.ChatStats `json:"stats"`
}

// Chat runs one exchange: validate, resolve, call the provider once, then
// try to persist. Only validation, configuration and provider failures are
// returned; persistence problems end up as Logged=false.
func (s *Service) Chat(ctx context.Context, req Request) (Response, error) {
	if req.Message == "" {
		s.metrics.ChatRequests.WithLabelValues("unknown", "invalid").Inc()
		return Response{}, ErrInvalidMessage
	}

	cfg := settings.Resolve(req.Settings, s.env)
	provider := string(cfg.Provider)

	p, err := s.providers(cfg)
	if err != nil {
		s.metrics.ChatRequests.WithLabelValues(provider, "error").Inc()
		return Response{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	start := s.now()
	res, err := p.Complete(callCtx, cfg.SystemInstruction, req.Message)
	llmMs := s.now().Sub(start).Milliseconds()
	cancel()
	s.metrics.ProviderLatency.WithLabelValues(provider).Observe(float64(llmMs) / 1000)
	if err != nil {
		s.metrics.ChatRequests.WithLabelValues(provider, "error").Inc()
		s.logger.Error().Err(err).Str("provider", provider).Str("model", cfg.Model()).Msg("provider call failed")
		return Response{}, err
	}
	if res.Model == "" {
		res.Model = cfg.Model()
	}

	logged, dbMs := s.persist(context.WithoutCancel(ctx), cfg, req, res)
	s.metrics.ChatRequests.WithLabelValues(provider, "ok").Inc()

	return Response{
		Answer: res.Answer,
		Logged: logged,
		Stats:  stats.Compute(cfg.Provider, res, llmMs, dbMs),
	}, nil
}

// persist never fails the request. dbMs is only reported for a successful write.
func (s *Service) persist(ctx context.Context, cfg settings.Effective, req Request, res providers.Result) (logged bool, dbMs *int64) {
	if !cfg.PersistenceConfigured() {
		s.metrics.LogWrites.WithLabelValues("skipped").Inc()
		s.logger.Warn().Msg("log write skipped: no database configured")
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			s.metrics.LogWrites.WithLabelValues("failed").Inc()
			s.logger.Error().Interface("panic", r).Str("uri", storage.RedactURI(cfg.DatabaseURI)).Msg("log write panicked")
			logged, dbMs = false, nil
		}
	}()

	rec := storage.Record{
		SessionID: sessionID(req.SessionID),
		Question:  req.Message,
		Answer:    res.Answer,
		Model:     res.Model,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}

	start := s.now()
	if err := s.store.Write(ctx, cfg.DatabaseURI, cfg.DatabaseName, rec); err != nil {
		s.metrics.LogWrites.WithLabelValues("failed").Inc()
		s.logger.Error().Err(err).Str("uri", storage.RedactURI(cfg.DatabaseURI)).Str("db", cfg.DatabaseName).Msg("log write failed")
		return false, nil
	}
	ms := s.now().Sub(start).Milliseconds()
	s.metrics.LogWrites.WithLabelValues("logged").Inc()
	return true, &ms
}

func sessionID(id *string) *string {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil
	}
	v := *id
	return &v
}
