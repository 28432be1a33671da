package main

import (
	"context"
	"errors"
)

// ErrNotFound — ожидаемая строка отсутствует (нет истории, нет ссылки, конец архива).
var ErrNotFound = errors.New("not found")

// ArchivedMessage — сообщение пользователя в архиве.
type ArchivedMessage struct {
	MessageID int64  `db:"message_id"`
	ChatID    int64  `db:"chat_id"`
	Text      string `db:"text"`
}

// NavigationLink связывает показанную карточку навигации с сообщением архива.
// ID — message_id самой карточки в чате.
type NavigationLink struct {
	ID       int64  `db:"id"`
	ChatID   int64  `db:"chat_id"`
	AnchorID int64  `db:"message_id"`
	Label    string `db:"text"`
}

// Store — абстракция хранилища: архив, ссылки навигации и курсор апдейтов.
type Store interface {
	// ArchiveMessage сохраняет сообщение. Повторный message_id игнорируется.
	ArchiveMessage(ctx context.Context, m ArchivedMessage) error
	// EditMessageText переписывает текст; false, если сообщения нет в архиве.
	EditMessageText(ctx context.Context, messageID int64, text string) (bool, error)

	FirstMessage(ctx context.Context, chatID int64) (ArchivedMessage, error)
	NextMessage(ctx context.Context, chatID, afterID int64) (ArchivedMessage, error)
	PrevMessage(ctx context.Context, chatID, beforeID int64) (ArchivedMessage, error)

	// TakeLink удаляет ссылку чата и возвращает её одним запросом.
	TakeLink(ctx context.Context, chatID int64) (NavigationLink, error)
	// PutLink заменяет ссылку чата в одной транзакции.
	PutLink(ctx context.Context, link NavigationLink) error

	Offset(ctx context.Context) (int64, error)
	// AdvanceOffset двигает курсор вперёд; меньшее значение не записывается.
	AdvanceOffset(ctx context.Context, next int64) error

	Close() error
}
