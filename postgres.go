package main

import (
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func NewPostgresStore(dsn string, timeout time.Duration) (Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(db.DB, "postgres"); err != nil {
		db.Close()
		return nil, err
	}

	return newSQLStore(db, timeout), nil
}
