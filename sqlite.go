package main

import (
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

func NewSQLiteStore(dbPath string, timeout time.Duration) (Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db.DB, "sqlite3"); err != nil {
		db.Close()
		return nil, err
	}

	return newSQLStore(db, timeout), nil
}
