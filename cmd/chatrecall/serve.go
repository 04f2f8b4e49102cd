package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chatrecall/internal/chat"
	"chatrecall/internal/metrics"
	"chatrecall/internal/providers"
	"chatrecall/internal/providers/registry"
	"chatrecall/internal/server"
	"chatrecall/internal/settings"
	"chatrecall/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the Telegram poller when a bot token is set)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	env := cfg.EnvDefaults()
	log.Info().
		Str("addr", cfg.HTTP.ListenAddr).
		Bool("hosted_key_from_env", env.OpenAIAPIKey != "").
		Bool("log_store_from_env", env.MongoURI != "").
		Bool("telegram", cfg.Telegram.BotToken != "").
		Msg("starting chatrecall")

	m := metrics.Global()
	httpClient := providerHTTPClient(cfg.LLM.Timeout)
	svc := chat.NewService(chat.Config{
		Store: newStore(),
		Env:   env,
		Providers: func(eff settings.Effective) (providers.Provider, error) {
			return registry.Build(eff, registry.BuildOptions{
				HTTPClient:    httpClient,
				HostedBaseURL: cfg.LLM.OpenAIBaseURL,
			})
		},
		ProviderTimeout: cfg.LLM.Timeout,
		HistoryLimit:    cfg.Store.HistoryLimit,
		Logger:          log.Logger,
		Metrics:         m,
	})

	errCh := make(chan error, 2)

	var updater *ext.Updater
	if cfg.Telegram.BotToken != "" {
		u, err := startTelegram(svc, m)
		if err != nil {
			return err
		}
		updater = u
	}

	httpServer := &http.Server{
		Addr: cfg.HTTP.ListenAddr,
		Handler: server.New(server.Config{
			Chat:        svc,
			Logger:      log.Logger,
			HealthPath:  cfg.HTTP.HealthPath,
			MetricsPath: cfg.HTTP.MetricsPath,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if updater != nil {
		if err := updater.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop updater")
		}
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
	return runErr
}

// providerHTTPClient is shared by every provider built for a request, so
// PROVIDER_TIMEOUT is the only cap on an upstream call.
func providerHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func startTelegram(svc *chat.Service, m *metrics.Metrics) (*ext.Updater, error) {
	bot, err := gotgbot.NewBot(cfg.Telegram.BotToken, nil)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %s", sanitizeTelegramErr(err, cfg.Telegram.BotToken))
	}
	log.Info().Str("bot_username", bot.User.Username).Int64("bot_id", bot.User.Id).Msg("telegram bot initialized")

	logTelegramErr := func(err error) {
		log.Error().Str("component", "telegram").Msg(sanitizeTelegramErr(err, cfg.Telegram.BotToken))
	}
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		MaxRoutines:      50,
		UnhandledErrFunc: logTelegramErr,
		Processor: telegram.Processor{
			Metrics: m,
			Logger:  log.Logger,
		},
	})
	telegram.NewService(telegram.Config{
		Chat:         svc,
		Logger:       log.Logger,
		Metrics:      m,
		ReplyTimeout: cfg.LLM.Timeout + cfg.Store.Timeout,
	}).Register(dispatcher)

	updater := ext.NewUpdater(dispatcher, &ext.UpdaterOpts{
		UnhandledErrFunc: logTelegramErr,
	})
	if err := updater.StartPolling(bot, &ext.PollingOpts{
		EnableWebhookDeletion: true,
		DropPendingUpdates:    true,
		GetUpdatesOpts: &gotgbot.GetUpdatesOpts{
			Timeout: 50,
			RequestOpts: &gotgbot.RequestOpts{
				Timeout: 60 * time.Second,
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("start polling: %s", sanitizeTelegramErr(err, cfg.Telegram.BotToken))
	}
	log.Info().Msg("telegram polling started")
	return updater, nil
}

func sanitizeTelegramErr(err error, token string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if strings.TrimSpace(token) == "" {
		return msg
	}

	msg = strings.ReplaceAll(msg, token, "<redacted-token>")
	if idx := strings.Index(token, ":"); idx > 0 {
		botID := token[:idx]
		msg = strings.ReplaceAll(msg, "/bot"+botID+":", "/bot<redacted>:")
		msg = strings.ReplaceAll(msg, "bot"+botID+"/", "bot<redacted>/")
	}
	return msg
}
