package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sentCard struct {
	chatID int64
	cardID int64
	text   string
}

type deletedMsg struct {
	chatID    int64
	messageID int64
}

// fakeGateway записывает исходящие вызовы вместо Bot API.
type fakeGateway struct {
	lastID   int64
	sent     []sentCard
	deleted  []deletedMsg
	answered []string

	sendErr   error
	deleteErr error

	updates    [][]tgbotapi.Update
	updatesErr error
	offsets    []int64

	webhookDeleted int
	commandsSet    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{lastID: 1000}
}

func (g *fakeGateway) GetUpdates(offset int64, timeout time.Duration) ([]tgbotapi.Update, error) {
	g.offsets = append(g.offsets, offset)
	if g.updatesErr != nil {
		return nil, g.updatesErr
	}
	if len(g.updates) == 0 {
		return nil, nil
	}
	batch := g.updates[0]
	g.updates = g.updates[1:]
	return batch, nil
}

func (g *fakeGateway) SendCard(chatID int64, text string) (int64, error) {
	if g.sendErr != nil {
		return 0, g.sendErr
	}
	g.lastID++
	g.sent = append(g.sent, sentCard{chatID: chatID, cardID: g.lastID, text: text})
	return g.lastID, nil
}

func (g *fakeGateway) DeleteMessage(chatID, messageID int64) error {
	g.deleted = append(g.deleted, deletedMsg{chatID: chatID, messageID: messageID})
	return g.deleteErr
}

func (g *fakeGateway) AnswerCallback(callbackID string) error {
	g.answered = append(g.answered, callbackID)
	return nil
}

func (g *fakeGateway) DeleteWebhook() error {
	g.webhookDeleted++
	return nil
}

func (g *fakeGateway) RegisterCommands() error {
	g.commandsSet++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestNavigator(t *testing.T) (*Navigator, *sqlStore, *fakeGateway) {
	t.Helper()
	s := openTestStore(t)
	gw := newFakeGateway()
	return NewNavigator(s, gw, discardLogger(), newMetrics(nil)), s, gw
}

// anchorOf возвращает якорь текущей ссылки чата или 0, если ссылки нет.
func anchorOf(t *testing.T, s *sqlStore, chatID int64) int64 {
	t.Helper()
	var anchors []int64
	if err := s.db.Select(&anchors, s.db.Rebind("SELECT message_id FROM link_message WHERE chat_id = ?"), chatID); err != nil {
		t.Fatalf("select links: %v", err)
	}
	switch len(anchors) {
	case 0:
		return 0
	case 1:
		return anchors[0]
	default:
		t.Fatalf("chat %d has %d links", chatID, len(anchors))
		return 0
	}
}

func TestNavigator_ForwardOrdering(t *testing.T) {
	nav, s, gw := newTestNavigator(t)
	ctx := context.Background()
	const chat = 1
	archive(t, s, chat, 3, 7, 9)

	steps := []struct {
		name       string
		op         func(context.Context, int64) error
		wantAnchor int64
		wantSent   int
	}{
		{"history", nav.History, 3, 1},
		{"next", nav.Next, 7, 2},
		{"next again", nav.Next, 9, 3},
		{"past the end", nav.Next, 0, 3},
	}

	for _, st := range steps {
		if err := st.op(ctx, chat); err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if got := anchorOf(t, s, chat); got != st.wantAnchor {
			t.Errorf("%s: anchor = %d, want %d", st.name, got, st.wantAnchor)
		}
		if len(gw.sent) != st.wantSent {
			t.Errorf("%s: sent %d cards, want %d", st.name, len(gw.sent), st.wantSent)
		}
	}

	// Каждая карточка, кроме последней, снята следующей командой; последнюю
	// снял переход за конец истории.
	if len(gw.deleted) != 3 {
		t.Fatalf("deleted %d cards, want 3", len(gw.deleted))
	}
	for i, d := range gw.deleted {
		if d.messageID != gw.sent[i].cardID {
			t.Errorf("deleted[%d] = %d, want card %d", i, d.messageID, gw.sent[i].cardID)
		}
	}
	if gw.sent[1].text != "msg 7" {
		t.Errorf("card text = %q, want %q", gw.sent[1].text, "msg 7")
	}
}

func TestNavigator_BackwardOrdering(t *testing.T) {
	nav, s, gw := newTestNavigator(t)
	ctx := context.Background()
	const chat = 1
	archive(t, s, chat, 3, 7, 9)

	for _, op := range []func(context.Context, int64) error{nav.History, nav.Next, nav.Next} {
		if err := op(ctx, chat); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	for _, want := range []int64{7, 3, 0} {
		if err := nav.Last(ctx, chat); err != nil {
			t.Fatalf("Last: %v", err)
		}
		if got := anchorOf(t, s, chat); got != want {
			t.Errorf("anchor = %d, want %d", got, want)
		}
	}
	if len(gw.sent) != 5 {
		t.Errorf("sent %d cards, want 5", len(gw.sent))
	}
}

func TestNavigator_HistoryEmptyChat(t *testing.T) {
	nav, s, gw := newTestNavigator(t)
	if err := nav.History(context.Background(), 1); err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(gw.sent) != 0 || len(gw.deleted) != 0 {
		t.Errorf("sent %d deleted %d, want nothing", len(gw.sent), len(gw.deleted))
	}
	if got := anchorOf(t, s, 1); got != 0 {
		t.Errorf("anchor = %d, want no link", got)
	}
}

func TestNavigator_HistoryReplacesCard(t *testing.T) {
	nav, s, gw := newTestNavigator(t)
	ctx := context.Background()
	archive(t, s, 1, 3, 7)

	if err := nav.History(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := nav.Next(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := nav.History(ctx, 1); err != nil {
		t.Fatal(err)
	}

	if got := anchorOf(t, s, 1); got != 3 {
		t.Errorf("anchor = %d, want 3", got)
	}
	if len(gw.deleted) != 2 || gw.deleted[1].messageID != gw.sent[1].cardID {
		t.Errorf("deleted = %+v, want both earlier cards", gw.deleted)
	}
}

func TestNavigator_StepWithoutLinkIsNoop(t *testing.T) {
	nav, s, gw := newTestNavigator(t)
	ctx := context.Background()
	archive(t, s, 1, 3, 7)

	for name, op := range map[string]func(context.Context, int64) error{
		"next": nav.Next,
		"last": nav.Last,
		"exit": nav.Exit,
	} {
		if err := op(ctx, 1); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if len(gw.sent) != 0 || len(gw.deleted) != 0 {
		t.Errorf("sent %d deleted %d, want nothing", len(gw.sent), len(gw.deleted))
	}
}

func TestNavigator_DeleteFailureStillPosts(t *testing.T) {
	nav, s, gw := newTestNavigator(t)
	ctx := context.Background()
	archive(t, s, 1, 3, 7)

	if err := nav.History(ctx, 1); err != nil {
		t.Fatal(err)
	}
	gw.deleteErr = errors.New("message can't be deleted")
	if err := nav.Next(ctx, 1); err != nil {
		t.Fatalf("Next: %v", err)
	}

	if got := anchorOf(t, s, 1); got != 7 {
		t.Errorf("anchor = %d, want 7", got)
	}
	if len(gw.sent) != 2 {
		t.Errorf("sent %d cards, want 2", len(gw.sent))
	}
}

func TestNavigator_Exit(t *testing.T) {
	nav, s, gw := newTestNavigator(t)
	ctx := context.Background()
	archive(t, s, 1, 3)

	if err := nav.History(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := nav.Exit(ctx, 1); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if got := anchorOf(t, s, 1); got != 0 {
		t.Errorf("anchor = %d, want no link", got)
	}
	if len(gw.deleted) != 1 || gw.deleted[0].messageID != gw.sent[0].cardID {
		t.Errorf("deleted = %+v, want the history card", gw.deleted)
	}
}

func TestNavigator_SendFailureLeavesNoLink(t *testing.T) {
	nav, s, gw := newTestNavigator(t)
	archive(t, s, 1, 3)
	gw.sendErr = &GatewayError{Kind: KindTransport, Method: "sendMessage", Err: errors.New("timeout")}

	if err := nav.History(context.Background(), 1); err == nil {
		t.Fatal("History succeeded, want send error")
	}
	if got := anchorOf(t, s, 1); got != 0 {
		t.Errorf("anchor = %d, want no link", got)
	}
}

// failingLinkStore ломает запись ссылки.
type failingLinkStore struct {
	Store
}

func (failingLinkStore) PutLink(context.Context, NavigationLink) error {
	return errors.New("disk I/O error")
}

func TestNavigator_UnlinkedCardIsRemoved(t *testing.T) {
	s := openTestStore(t)
	gw := newFakeGateway()
	nav := NewNavigator(failingLinkStore{s}, gw, discardLogger(), nil)
	archive(t, s, 1, 3)

	if err := nav.History(context.Background(), 1); err == nil {
		t.Fatal("History succeeded, want store error")
	}
	if len(gw.sent) != 1 || len(gw.deleted) != 1 || gw.deleted[0].messageID != gw.sent[0].cardID {
		t.Errorf("sent = %+v deleted = %+v, want the posted card removed", gw.sent, gw.deleted)
	}
}

func TestNavigator_AtMostOneLinkPerChat(t *testing.T) {
	nav, s, _ := newTestNavigator(t)
	ctx := context.Background()
	archive(t, s, 1, 1, 2, 3, 4)
	archive(t, s, 2, 10, 11)

	ops := []struct {
		chat int64
		op   func(context.Context, int64) error
	}{
		{1, nav.History}, {2, nav.History}, {1, nav.Next}, {1, nav.History},
		{2, nav.Next}, {2, nav.Next}, {1, nav.Next}, {1, nav.Last}, {1, nav.Last},
		{1, nav.Last}, {2, nav.History}, {1, nav.History}, {1, nav.Exit}, {1, nav.History},
	}
	for i, o := range ops {
		if err := o.op(ctx, o.chat); err != nil {
			t.Fatalf("op %d: %v", i, err)
		}
		for _, chat := range []int64{1, 2} {
			if n := countRows(t, s, "SELECT count(*) FROM link_message WHERE chat_id = ?", chat); n > 1 {
				t.Fatalf("after op %d chat %d has %d links", i, chat, n)
			}
		}
	}
}
