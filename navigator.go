package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Метки ссылок; пишутся в link_message.text для диагностики.
const (
	labelHistory = "history"
	labelNext    = "next"
	labelLast    = "last"
)

// emptyCardText подставляется, если в архиве пустой текст: Bot API не
// принимает sendMessage без текста.
const emptyCardText = "(пустое сообщение)"

// Navigator — машина состояний карточки навигации. У чата либо нет ссылки,
// либо ровно одна; каждая команда снимает старую карточку и, если есть куда
// перейти, публикует новую.
type Navigator struct {
	store   Store
	gw      Gateway
	log     *slog.Logger
	metrics *metrics
}

func NewNavigator(store Store, gw Gateway, log *slog.Logger, m *metrics) *Navigator {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = newMetrics(nil)
	}
	return &Navigator{store: store, gw: gw, log: log, metrics: m}
}

// History открывает историю чата с самого первого сообщения.
func (n *Navigator) History(ctx context.Context, chatID int64) error {
	if _, err := n.dropLink(ctx, chatID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	first, err := n.store.FirstMessage(ctx, chatID)
	if errors.Is(err, ErrNotFound) {
		n.log.Debug("history is empty", "chat", chatID)
		return nil
	}
	if err != nil {
		return err
	}
	return n.show(ctx, chatID, first, labelHistory)
}

// Next переходит к следующему сообщению после текущего якоря.
func (n *Navigator) Next(ctx context.Context, chatID int64) error {
	return n.step(ctx, chatID, labelNext, n.store.NextMessage)
}

// Last переходит к предыдущему сообщению перед текущим якорем.
func (n *Navigator) Last(ctx context.Context, chatID int64) error {
	return n.step(ctx, chatID, labelLast, n.store.PrevMessage)
}

// Exit убирает карточку без замены.
func (n *Navigator) Exit(ctx context.Context, chatID int64) error {
	_, err := n.dropLink(ctx, chatID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (n *Navigator) step(ctx context.Context, chatID int64, label string,
	lookup func(ctx context.Context, chatID, anchorID int64) (ArchivedMessage, error)) error {
	cur, err := n.dropLink(ctx, chatID)
	if errors.Is(err, ErrNotFound) {
		n.log.Debug("no navigation card", "chat", chatID, "cmd", label)
		return nil
	}
	if err != nil {
		return err
	}

	target, err := lookup(ctx, chatID, cur.AnchorID)
	if errors.Is(err, ErrNotFound) {
		n.log.Debug("end of history", "chat", chatID, "anchor", cur.AnchorID, "cmd", label)
		return nil
	}
	if err != nil {
		return err
	}
	return n.show(ctx, chatID, target, label)
}

// dropLink снимает ссылку чата и удаляет её карточку из чата. Ошибка
// удаления в чате только логируется: старая карточка может остаться видимой.
func (n *Navigator) dropLink(ctx context.Context, chatID int64) (NavigationLink, error) {
	link, err := n.store.TakeLink(ctx, chatID)
	if err != nil {
		return NavigationLink{}, err
	}
	if err := n.gw.DeleteMessage(link.ChatID, link.ID); err != nil {
		n.metrics.failures.WithLabelValues("delete_card").Inc()
		n.log.Warn("delete card failed", "chat", link.ChatID, "card", link.ID, "err", err)
	}
	return link, nil
}

func (n *Navigator) show(ctx context.Context, chatID int64, target ArchivedMessage, label string) error {
	text := target.Text
	if text == "" {
		text = emptyCardText
	}
	cardID, err := n.gw.SendCard(chatID, text)
	if err != nil {
		return fmt.Errorf("post %s card: %w", label, err)
	}

	link := NavigationLink{ID: cardID, ChatID: chatID, AnchorID: target.MessageID, Label: label}
	if err := n.store.PutLink(ctx, link); err != nil {
		// Без ссылки карточку уже никто не снимет.
		if derr := n.gw.DeleteMessage(chatID, cardID); derr != nil {
			n.log.Warn("delete unlinked card failed", "chat", chatID, "card", cardID, "err", derr)
		}
		return err
	}

	n.metrics.cards.WithLabelValues(label).Inc()
	n.log.Info("card posted", "chat", chatID, "card", cardID, "anchor", target.MessageID, "label", label)
	return nil
}
