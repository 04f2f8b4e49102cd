package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chatrecall/internal/chat"
	"chatrecall/internal/storage"
)

// ChatService is what the HTTP layer needs from the chat pipeline.
type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (chat.Response, error)
	History(ctx context.Context, req chat.HistoryRequest) ([]storage.Record, error)
	TestConnection(ctx context.Context, uri, dbName string) error
}

var _ ChatService = (*chat.Service)(nil)

type Config struct {
	Chat        ChatService
	Logger      zerolog.Logger
	HealthPath  string
	MetricsPath string
	// MetricsHandler defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

type Server struct {
	router chi.Router
	chat   ChatService
	logger zerolog.Logger
}

func New(cfg Config) *Server {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = promhttp.Handler()
	}

	s := &Server{chat: cfg.Chat, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get(cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle(cfg.MetricsPath, cfg.MetricsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/logs", s.handleLogsGet)
		r.Post("/logs", s.handleLogsPost)
		r.Post("/test-db", s.handleTestDB)
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

const requestIDHeader = "X-Request-ID"

type ctxKey struct{}

// requestID keeps a caller supplied X-Request-ID or mints one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", requestIDFrom(r.Context())).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}
