package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"
	"github.com/rs/zerolog"

	"chatrecall/internal/chat"
	"chatrecall/internal/metrics"
	"chatrecall/internal/storage"
)

// ChatService is the slice of the chat pipeline the bot talks to.
type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (chat.Response, error)
	History(ctx context.Context, req chat.HistoryRequest) ([]storage.Record, error)
}

type Service struct {
	chat         ChatService
	logger       zerolog.Logger
	metrics      *metrics.Metrics
	replyTimeout time.Duration
}

type Config struct {
	Chat    ChatService
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// ReplyTimeout bounds one chat or history call made for a message.
	ReplyTimeout time.Duration
}

func NewService(cfg Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 90 * time.Second
	}
	return &Service{
		chat:         cfg.Chat,
		logger:       cfg.Logger,
		metrics:      m,
		replyTimeout: cfg.ReplyTimeout,
	}
}

func (s *Service) Register(d *ext.Dispatcher) {
	d.AddHandler(handlers.NewCommand("start", s.help))
	d.AddHandler(handlers.NewCommand("help", s.help))
	d.AddHandler(handlers.NewCommand("history", s.history))
	d.AddHandler(handlers.NewCommand("search", s.search))
	d.AddHandler(handlers.NewMessage(func(msg *gotgbot.Message) bool {
		return message.Text(msg) && !strings.HasPrefix(msg.Text, "/")
	}, s.text))
}

func (s *Service) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.replyTimeout)
}
