package main

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql
var sqliteMigrationsFS embed.FS

//go:embed migrations/postgres/*.sql
var postgresMigrationsFS embed.FS

// legacyVersion — схема, которую старая версия бота создавала вручную:
// message, link_message и "update" без schema_migrations.
const legacyVersion = 1

// runMigrations доводит схему до последней версии. Базу старого формата
// сначала помечает как legacyVersion, чтобы данные не пересоздавались.
func runMigrations(db *sql.DB, driver string) error {
	m, err := newMigrator(db, driver)
	if err != nil {
		return err
	}

	if err := adoptLegacy(m, db, driver); err != nil {
		return fmt.Errorf("adopt legacy schema: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}
	slog.Info("migrations: up to date", "driver", driver, "version", version, "dirty", dirty)
	return nil
}

func newMigrator(db *sql.DB, driver string) (*migrate.Migrate, error) {
	var (
		sourceFS fs.FS
		subdir   string
		dbDriver database.Driver
		err      error
	)
	switch driver {
	case "sqlite3":
		sourceFS, subdir = sqliteMigrationsFS, "migrations/sqlite"
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case "postgres":
		sourceFS, subdir = postgresMigrationsFS, "migrations/postgres"
		dbDriver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return nil, fmt.Errorf("unsupported migration driver: %s", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("migrate db driver: %w", err)
	}

	source, err := iofs.New(sourceFS, subdir)
	if err != nil {
		return nil, fmt.Errorf("iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, driver, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	return m, nil
}

// adoptLegacy ставит legacyVersion, если версия ещё не записана, а таблицы
// архива уже есть. Перед этим схема старого бота приводится к виду версии 1.
func adoptLegacy(m *migrate.Migrate, db *sql.DB, driver string) error {
	_, _, err := m.Version()
	if !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	if !tableExists(db, driver, "message") || !tableExists(db, driver, "link_message") {
		return nil
	}
	if err := normalizeLegacy(db, driver); err != nil {
		return fmt.Errorf("normalize legacy schema: %w", err)
	}
	slog.Warn("migrations: legacy DB detected, forcing version", "version", legacyVersion)
	return m.Force(legacyVersion)
}

// normalizeLegacy переводит варианты старой схемы в раскладку версии 1:
// якорь в link_message.message_id (раньше reply_to_message_id), колонка
// link_unique и таблица "update".
func normalizeLegacy(db *sql.DB, driver string) error {
	var stmts []string
	if !columnExists(db, driver, "link_message", "message_id") && columnExists(db, driver, "link_message", "reply_to_message_id") {
		stmts = append(stmts, "ALTER TABLE link_message RENAME COLUMN reply_to_message_id TO message_id")
	}
	if !columnExists(db, driver, "link_message", "link_unique") {
		stmts = append(stmts, "ALTER TABLE link_message ADD COLUMN link_unique BOOLEAN")
	}
	if !tableExists(db, driver, "update") {
		idType := "INTEGER"
		if driver == "postgres" {
			idType = "BIGINT"
		}
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE "update" (id %[1]s PRIMARY KEY, update_id %[1]s NOT NULL DEFAULT 0)`, idType))
	}
	if len(stmts) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, q := range stmts {
		slog.Info("migrations: legacy fixup", "stmt", q)
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("%s: %w", q, err)
		}
	}
	return tx.Commit()
}

func tableExists(db *sql.DB, driver, table string) bool {
	var n int
	var err error
	switch driver {
	case "sqlite3":
		err = db.QueryRow("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	case "postgres":
		err = db.QueryRow("SELECT count(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1", table).Scan(&n)
	default:
		return false
	}
	return err == nil && n > 0
}

func columnExists(db *sql.DB, driver, table, column string) bool {
	var n int
	var err error
	switch driver {
	case "sqlite3":
		err = db.QueryRow("SELECT count(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&n)
	case "postgres":
		err = db.QueryRow("SELECT count(*) FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2", table, column).Scan(&n)
	default:
		return false
	}
	return err == nil && n > 0
}
