package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config — настройки бота, читаемые из env (и .env, если он есть).
type Config struct {
	Token       string `env:"TG_TOKEN,required"`
	APIEndpoint string `env:"TG_API_ENDPOINT" envDefault:"https://api.telegram.org/bot%s/%s"`
	// DSN postgres; если пусто — SQLite по DBPath.
	DatabaseURL    string        `env:"DATABASE_URL"`
	DBPath         string        `env:"DB_PATH" envDefault:"history.db"`
	PollTimeout    time.Duration `env:"POLL_TIMEOUT" envDefault:"2s"`
	IdleDelay      time.Duration `env:"IDLE_DELAY" envDefault:"3s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	// host:port для /metrics; пусто — сервер метрик не поднимается.
	MetricsAddr string `env:"METRICS_ADDR"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env not found, relying on environment")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
