package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const defaultStoreTimeout = 5 * time.Second

// sqlStore реализует Store поверх sqlx для postgres и sqlite3.
// Запросы пишутся с '?' и переписываются под драйвер через Rebind.
type sqlStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func newSQLStore(db *sqlx.DB, timeout time.Duration) *sqlStore {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &sqlStore{db: db, timeout: timeout}
}

func (s *sqlStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func (s *sqlStore) ArchiveMessage(ctx context.Context, m ArchivedMessage) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO message (message_id, chat_id, text)
		 VALUES (:message_id, :chat_id, :text)
		 ON CONFLICT (message_id) DO NOTHING`, m)
	if err != nil {
		return fmt.Errorf("archive message %d: %w", m.MessageID, err)
	}
	return nil
}

func (s *sqlStore) EditMessageText(ctx context.Context, messageID int64, text string) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	res, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE message SET text = ? WHERE message_id = ?"), text, messageID)
	if err != nil {
		return false, fmt.Errorf("edit message %d: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("edit message %d: %w", messageID, err)
	}
	return n > 0, nil
}

func (s *sqlStore) FirstMessage(ctx context.Context, chatID int64) (ArchivedMessage, error) {
	return s.getMessage(ctx,
		"SELECT message_id, chat_id, text FROM message WHERE chat_id = ? ORDER BY message_id ASC LIMIT 1",
		chatID)
}

func (s *sqlStore) NextMessage(ctx context.Context, chatID, afterID int64) (ArchivedMessage, error) {
	return s.getMessage(ctx,
		"SELECT message_id, chat_id, text FROM message WHERE chat_id = ? AND message_id > ? ORDER BY message_id ASC LIMIT 1",
		chatID, afterID)
}

func (s *sqlStore) PrevMessage(ctx context.Context, chatID, beforeID int64) (ArchivedMessage, error) {
	return s.getMessage(ctx,
		"SELECT message_id, chat_id, text FROM message WHERE chat_id = ? AND message_id < ? ORDER BY message_id DESC LIMIT 1",
		chatID, beforeID)
}

func (s *sqlStore) getMessage(ctx context.Context, query string, args ...any) (ArchivedMessage, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var m ArchivedMessage
	err := s.db.GetContext(ctx, &m, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ArchivedMessage{}, ErrNotFound
	}
	if err != nil {
		return ArchivedMessage{}, fmt.Errorf("select message: %w", err)
	}
	return m, nil
}

func (s *sqlStore) TakeLink(ctx context.Context, chatID int64) (NavigationLink, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var link NavigationLink
	err := s.db.GetContext(ctx, &link, s.db.Rebind(
		"DELETE FROM link_message WHERE chat_id = ? RETURNING id, chat_id, message_id, text"), chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return NavigationLink{}, ErrNotFound
	}
	if err != nil {
		return NavigationLink{}, fmt.Errorf("take link for chat %d: %w", chatID, err)
	}
	return link, nil
}

func (s *sqlStore) PutLink(ctx context.Context, link NavigationLink) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put link: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM link_message WHERE chat_id = ?"), link.ChatID); err != nil {
		return fmt.Errorf("put link: delete previous: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO link_message (id, chat_id, message_id, text)
		 VALUES (:id, :chat_id, :message_id, :text)`, link); err != nil {
		return fmt.Errorf("put link: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put link: commit: %w", err)
	}
	return nil
}

func (s *sqlStore) Offset(ctx context.Context) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var offset int64
	err := s.db.GetContext(ctx, &offset, `SELECT update_id FROM "update" WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read offset: %w", err)
	}
	return offset, nil
}

func (s *sqlStore) AdvanceOffset(ctx context.Context, next int64) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE "update" SET update_id = ? WHERE id = 1 AND update_id < ?`), next, next)
	if err != nil {
		return fmt.Errorf("advance offset to %d: %w", next, err)
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
