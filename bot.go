package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const defaultIdleDelay = 3 * time.Second

// pollingSetup — gateway, которому перед long polling нужна подготовка:
// снять webhook (иначе getUpdates отвечает 409) и опубликовать меню команд.
type pollingSetup interface {
	DeleteWebhook() error
	RegisterCommands() error
}

// Bot — единственный фоновый цикл: опрос, разбор апдейтов, пауза.
type Bot struct {
	gw         Gateway
	poller     *Poller
	dispatcher *Dispatcher
	idleDelay  time.Duration
	log        *slog.Logger
	metrics    *metrics
}

// NewBot собирает цикл из хранилища и gateway.
func NewBot(cfg Config, store Store, gw Gateway, botName string, log *slog.Logger, m *metrics) *Bot {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = newMetrics(nil)
	}
	idle := cfg.IdleDelay
	if idle <= 0 {
		idle = defaultIdleDelay
	}
	nav := NewNavigator(store, gw, log, m)
	return &Bot{
		gw:         gw,
		poller:     NewPoller(store, gw, cfg.PollTimeout),
		dispatcher: NewDispatcher(store, nav, gw, botName, log, m),
		idleDelay:  idle,
		log:        log,
		metrics:    m,
	}
}

// Run крутит цикл до отмены ctx. Ошибки цикла не фатальны: после пустого
// или неудачного опроса цикл ждёт idleDelay и пробует снова.
func (b *Bot) Run(ctx context.Context) {
	if setup, ok := b.gw.(pollingSetup); ok {
		if err := setup.DeleteWebhook(); err != nil {
			b.log.Error("TG deleteWebhook failed", "err", err)
		}
		if err := setup.RegisterCommands(); err != nil {
			b.log.Error("TG setMyCommands failed", "err", err)
		}
	}

	for ctx.Err() == nil {
		if b.cycle(ctx) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(b.idleDelay):
		}
	}
}

// cycle делает один опрос и возвращает число разобранных апдейтов.
func (b *Bot) cycle(ctx context.Context) int {
	updates, err := b.poller.Poll(ctx)
	if err != nil {
		stage := StageFetch
		var pe *PollError
		if errors.As(err, &pe) {
			stage = pe.Stage
		}
		b.metrics.pollErrors.WithLabelValues(stage).Inc()
		b.log.Warn("reconnect after failure on polling", "stage", stage, "err", err)
		return 0
	}

	// Начатый апдейт доводится до конца и после отмены ctx; каждый вызов
	// store ограничен своим таймаутом.
	dctx := context.WithoutCancel(ctx)
	n := 0
	for _, upd := range updates {
		// Недообработанные апдейты придут снова: курсор их ещё не прошёл.
		if ctx.Err() != nil {
			break
		}
		b.dispatcher.Dispatch(dctx, upd)
		n++
	}
	return n
}
