package main

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Dispatcher разбирает апдейт и двигает курсор. Вызывается строго
// последовательно из одного цикла.
type Dispatcher struct {
	store   Store
	nav     *Navigator
	gw      Gateway
	botName string
	log     *slog.Logger
	metrics *metrics
}

func NewDispatcher(store Store, nav *Navigator, gw Gateway, botName string, log *slog.Logger, m *metrics) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = newMetrics(nil)
	}
	return &Dispatcher{store: store, nav: nav, gw: gw, botName: botName, log: log, metrics: m}
}

// Dispatch выполняет все подходящие ветки апдейта, затем сдвигает курсор на
// update_id+1 независимо от их исхода.
func (d *Dispatcher) Dispatch(ctx context.Context, upd tgbotapi.Update) {
	if upd.EditedMessage != nil {
		d.handleEdit(ctx, upd.EditedMessage)
	}
	if upd.Message != nil {
		d.handleMessage(ctx, upd.Message)
	}
	if upd.CallbackQuery != nil {
		d.handleCallback(ctx, upd.CallbackQuery)
	}

	next := int64(upd.UpdateID) + 1
	if err := d.store.AdvanceOffset(ctx, next); err != nil {
		d.metrics.failures.WithLabelValues("advance_offset").Inc()
		d.log.Error("advance offset failed", "update", upd.UpdateID, "err", err)
	}
}

func (d *Dispatcher) handleEdit(ctx context.Context, edited *tgbotapi.Message) {
	d.metrics.updates.WithLabelValues("edit").Inc()
	if edited.Text == "" {
		return
	}
	found, err := d.store.EditMessageText(ctx, int64(edited.MessageID), edited.Text)
	if err != nil {
		d.metrics.failures.WithLabelValues("edit").Inc()
		d.log.Error("edit archived message failed", "msg", edited.MessageID, "err", err)
		return
	}
	if !found {
		d.log.Info("edit for message not in archive", "msg", edited.MessageID)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID

	switch d.command(msg.Text) {
	case cmdHistory:
		d.metrics.updates.WithLabelValues("command").Inc()
		d.navigate(ctx, labelHistory, chatID, d.nav.History)
	case cmdNext:
		d.metrics.updates.WithLabelValues("command").Inc()
		d.navigate(ctx, labelNext, chatID, d.nav.Next)
	case cmdLast:
		d.metrics.updates.WithLabelValues("command").Inc()
		d.navigate(ctx, labelLast, chatID, d.nav.Last)
	case cmdExit:
		d.metrics.updates.WithLabelValues("command").Inc()
		d.navigate(ctx, "exit", chatID, d.nav.Exit)
	default:
		d.metrics.updates.WithLabelValues("message").Inc()
		d.archive(ctx, msg)
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	d.metrics.updates.WithLabelValues("callback").Inc()
	defer func() {
		if err := d.gw.AnswerCallback(cb.ID); err != nil {
			d.log.Warn("answer callback failed", "callback", cb.ID, "err", err)
		}
	}()

	if cb.Message == nil || cb.Message.Chat == nil {
		d.log.Debug("callback without origin message", "callback", cb.ID)
		return
	}
	chatID := cb.Message.Chat.ID

	switch cb.Data {
	case cmdNext:
		d.navigate(ctx, labelNext, chatID, d.nav.Next)
	case cmdLast:
		d.navigate(ctx, labelLast, chatID, d.nav.Last)
	case cmdExit:
		d.navigate(ctx, "exit", chatID, d.nav.Exit)
	default:
		d.log.Debug("unknown callback data", "data", cb.Data, "chat", chatID)
	}
}

func (d *Dispatcher) archive(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Text == "" {
		return
	}
	m := ArchivedMessage{MessageID: int64(msg.MessageID), ChatID: msg.Chat.ID, Text: msg.Text}
	if err := d.store.ArchiveMessage(ctx, m); err != nil {
		d.metrics.failures.WithLabelValues("archive").Inc()
		d.log.Error("archive message failed", "chat", m.ChatID, "msg", m.MessageID, "err", err)
		return
	}
	d.metrics.archived.Inc()
	d.log.Debug("message archived", "chat", m.ChatID, "msg", m.MessageID)
}

func (d *Dispatcher) navigate(ctx context.Context, op string, chatID int64, fn func(context.Context, int64) error) {
	if err := fn(ctx, chatID); err != nil {
		d.metrics.failures.WithLabelValues(op).Inc()
		d.log.Error("navigation failed", "op", op, "chat", chatID, "err", err)
	}
}

// command возвращает команду без суффикса "@<bot>", который клиенты
// добавляют в группах. Текст с аргументами командой не считается.
func (d *Dispatcher) command(text string) string {
	if d.botName != "" {
		text = strings.TrimSuffix(text, "@"+d.botName)
	}
	return text
}
