package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Команды бота; те же строки приходят как data у inline-кнопок.
const (
	cmdHistory = "/history"
	cmdNext    = "/next"
	cmdLast    = "/last"
	cmdExit    = "/exit"
)

// pollSlack — запас HTTP-клиента поверх серверного таймаута long polling.
const pollSlack = 5 * time.Second

// Gateway — исходящие вызовы к Bot API.
type Gateway interface {
	GetUpdates(offset int64, timeout time.Duration) ([]tgbotapi.Update, error)
	SendCard(chatID int64, text string) (int64, error)
	DeleteMessage(chatID, messageID int64) error
	AnswerCallback(callbackID string) error
}

// ErrorKind классифицирует ошибки обращения к Bot API.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindAPI       ErrorKind = "api"
	KindDecode    ErrorKind = "decode"
)

// GatewayError — ошибка вызова method с указанием класса.
type GatewayError struct {
	Kind   ErrorKind
	Method string
	Err    error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s error: %v", e.Method, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindTransport
	var (
		apiErr    *tgbotapi.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		urlErr    *url.Error
	)
	switch {
	case errors.As(err, &apiErr):
		kind = KindAPI
	case errors.As(err, &urlErr):
		kind = KindTransport
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		kind = KindDecode
	}
	return &GatewayError{Kind: kind, Method: method, Err: err}
}

// tgGateway ходит в Bot API двумя клиентами: long polling держит соединение
// до pollTimeout, остальные вызовы ограничены коротким таймаутом.
type tgGateway struct {
	poll *tgbotapi.BotAPI
	api  *tgbotapi.BotAPI
}

// NewTelegramGateway проверяет токен через getMe и возвращает gateway.
func NewTelegramGateway(token, endpoint string, pollTimeout, requestTimeout time.Duration) (*tgGateway, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: requestTimeout})
	if err != nil {
		return nil, classify("getMe", err)
	}
	poll := *api
	poll.Client = &http.Client{Timeout: pollTimeout + pollSlack}
	return &tgGateway{poll: &poll, api: api}, nil
}

// UserName — имя бота из getMe.
func (g *tgGateway) UserName() string {
	return g.api.Self.UserName
}

func (g *tgGateway) GetUpdates(offset int64, timeout time.Duration) ([]tgbotapi.Update, error) {
	u := tgbotapi.NewUpdate(int(offset))
	u.Timeout = int(timeout / time.Second)
	if u.Timeout < 1 {
		u.Timeout = 1
	}
	updates, err := g.poll.GetUpdates(u)
	if err != nil {
		return nil, classify("getUpdates", err)
	}
	return updates, nil
}

func (g *tgGateway) SendCard(chatID int64, text string) (int64, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = navKeyboard()
	sent, err := g.api.Send(msg)
	if err != nil {
		return 0, classify("sendMessage", err)
	}
	return int64(sent.MessageID), nil
}

func (g *tgGateway) DeleteMessage(chatID, messageID int64) error {
	_, err := g.api.Request(tgbotapi.NewDeleteMessage(chatID, int(messageID)))
	return classify("deleteMessage", err)
}

func (g *tgGateway) AnswerCallback(callbackID string) error {
	_, err := g.api.Request(tgbotapi.NewCallback(callbackID, ""))
	return classify("answerCallbackQuery", err)
}

// DeleteWebhook снимает webhook, если он остался от другого режима работы.
func (g *tgGateway) DeleteWebhook() error {
	_, err := g.api.Request(tgbotapi.DeleteWebhookConfig{})
	return classify("deleteWebhook", err)
}

// RegisterCommands публикует меню команд бота.
func (g *tgGateway) RegisterCommands() error {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "history", Description: "Открыть историю с первого сообщения"},
		tgbotapi.BotCommand{Command: "next", Description: "Следующее сообщение"},
		tgbotapi.BotCommand{Command: "last", Description: "Предыдущее сообщение"},
		tgbotapi.BotCommand{Command: "exit", Description: "Закрыть карточку истории"},
	)
	_, err := g.api.Request(cmds)
	return classify("setMyCommands", err)
}

func navKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("next", cmdNext),
			tgbotapi.NewInlineKeyboardButtonData("last", cmdLast),
		),
	)
}

// slogBotLogger перенаправляет внутренние логи tgbotapi в slog.
type slogBotLogger struct {
	log *slog.Logger
}

func (l slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)), "component", "tgbotapi")
}

func (l slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "tgbotapi")
}
