package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chatrecall/internal/settings"
)

var (
	ErrInvalidLogLevel     = errors.New("LOG_LEVEL must be one of debug, info, warn, error")
	ErrInvalidHistoryLimit = errors.New("HISTORY_LIMIT must be > 0")
)

type Config struct {
	HTTP     HTTPConfig
	LLM      LLMConfig
	Mongo    MongoConfig
	Store    StoreConfig
	Telegram TelegramConfig
	Log      LogConfig
}

type HTTPConfig struct {
	ListenAddr  string
	HealthPath  string
	MetricsPath string
}

type LLMConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Timeout       time.Duration
}

// MongoConfig holds the process-level log store fallbacks. The URI may use
// any scheme the log store understands, not only mongodb.
type MongoConfig struct {
	URI string
	DB  string
}

type StoreConfig struct {
	Timeout      time.Duration
	HistoryLimit int
}

type TelegramConfig struct {
	BotToken string
}

type LogConfig struct {
	Level string
}

// fileConfig mirrors the optional YAML file named by CHATRECALL_CONFIG.
// Environment variables win over anything set here.
type fileConfig struct {
	HTTP struct {
		ListenAddr  string `yaml:"listen_addr"`
		HealthPath  string `yaml:"health_path"`
		MetricsPath string `yaml:"metrics_path"`
	} `yaml:"http"`
	LLM struct {
		OpenAIAPIKey  string `yaml:"openai_api_key"`
		OpenAIBaseURL string `yaml:"openai_base_url"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"llm"`
	Mongo struct {
		URI string `yaml:"uri"`
		DB  string `yaml:"db"`
	} `yaml:"mongo"`
	Store struct {
		Timeout      string `yaml:"timeout"`
		HistoryLimit int    `yaml:"history_limit"`
	} `yaml:"store"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
	} `yaml:"telegram"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func Load() (*Config, error) {
	fc, err := loadFile(mustEnv("CHATRECALL_CONFIG", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			ListenAddr:  mustEnv("HTTP_LISTEN_ADDR", or(fc.HTTP.ListenAddr, ":3000")),
			HealthPath:  mustEnv("HEALTH_PATH", or(fc.HTTP.HealthPath, "/healthz")),
			MetricsPath: mustEnv("METRICS_PATH", or(fc.HTTP.MetricsPath, "/metrics")),
		},
		LLM: LLMConfig{
			OpenAIAPIKey:  mustEnv("OPENAI_API_KEY", fc.LLM.OpenAIAPIKey),
			OpenAIBaseURL: mustEnv("OPENAI_BASE_URL", fc.LLM.OpenAIBaseURL),
			Timeout:       mustDuration("PROVIDER_TIMEOUT", parseDuration(fc.LLM.Timeout, 60*time.Second)),
		},
		Mongo: MongoConfig{
			URI: mustEnv("MONGO_URI", fc.Mongo.URI),
			DB:  mustEnv("MONGO_DB", fc.Mongo.DB),
		},
		Store: StoreConfig{
			Timeout:      mustDuration("STORE_TIMEOUT", parseDuration(fc.Store.Timeout, 10*time.Second)),
			HistoryLimit: mustInt("HISTORY_LIMIT", orInt(fc.Store.HistoryLimit, 50)),
		},
		Telegram: TelegramConfig{
			BotToken: mustEnv("TELEGRAM_BOT_TOKEN", fc.Telegram.BotToken),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", or(fc.Log.Level, "info"))),
		},
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, ErrInvalidLogLevel
	}
	if cfg.Store.HistoryLimit <= 0 {
		return nil, ErrInvalidHistoryLimit
	}

	return cfg, nil
}

// EnvDefaults are the per-request fallbacks handed to settings resolution.
func (c *Config) EnvDefaults() settings.EnvDefaults {
	return settings.EnvDefaults{
		OpenAIAPIKey: c.LLM.OpenAIAPIKey,
		MongoURI:     c.Mongo.URI,
		MongoDB:      c.Mongo.DB,
	}
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func or(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
