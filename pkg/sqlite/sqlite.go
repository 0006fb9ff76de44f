package sqlite

import (
	"context"
	"embed"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

type DB struct {
	// Path of the database file, ":memory:" for a throwaway database.
	Path string `yaml:"path" envconfig:"SQLITE_PATH" default:"circulation.db"`
}

const migrationsDir = "sqlite"

func NewSQLiteDB(ctx context.Context, cfg *DB, migrations embed.FS) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", cfg.Path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "sqlx.Open")
	}
	// one writer; also keeps a ":memory:" database on a single connection
	db.SetMaxOpenConns(1)

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping")
	}
	if err = Migrate(db, migrations); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(db *sqlx.DB, migrations embed.FS) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return errors.Wrap(err, "goose.SetDialect")
	}
	return errors.Wrap(goose.Up(db.DB, migrationsDir), "goose.Up")
}

func IsUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	return errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
