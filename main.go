package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func openStore(cfg Config) (Store, error) {
	if cfg.DatabaseURL != "" {
		store, err := NewPostgresStore(cfg.DatabaseURL, cfg.StoreTimeout)
		if err != nil {
			return nil, err
		}
		slog.Info("БД: PostgreSQL")
		return store, nil
	}
	store, err := NewSQLiteStore(cfg.DBPath, cfg.StoreTimeout)
	if err != nil {
		return nil, err
	}
	slog.Info("БД: SQLite", "path", cfg.DBPath)
	return store, nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Config error", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	tgbotapi.SetLogger(slogBotLogger{log: logger})

	store, err := openStore(cfg)
	if err != nil {
		slog.Error("DB error", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	gw, err := NewTelegramGateway(cfg.Token, cfg.APIEndpoint, cfg.PollTimeout, cfg.RequestTimeout)
	if err != nil {
		slog.Error("TG bot error", "err", err)
		os.Exit(1)
	}
	slog.Info("Telegram бот запущен", "username", gw.UserName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Завершение...")
		cancel()
	}()

	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, reg)
	}

	bot := NewBot(cfg, store, gw, gw.UserName(), logger, m)
	bot.Run(ctx)
	slog.Info("Бот остановлен")
}
