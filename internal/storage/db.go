package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db     *sql.DB
	driver string
	sql    sq.StatementBuilderType
	now    func() time.Time
}

type Option func(*Store)

// WithClock overrides the insertion and access timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func Open(ctx context.Context, driver, dsn string, autoMigrate bool, opts ...Option) (*Store, error) {
	driver = normalizeDriver(driver)
	if dsn == "" {
		return nil, fmt.Errorf("dsn is empty")
	}

	sqlDriver := driver
	if driver == "postgres" {
		sqlDriver = "pgx"
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	switch driver {
	case "sqlite":
		// A single connection serializes writers and keeps :memory: databases shared.
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if autoMigrate {
		switch driver {
		case "postgres":
			goose.SetBaseFS(migrationsFS)
			if err := goose.SetDialect("postgres"); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("set goose dialect: %w", err)
			}
			if err := goose.UpContext(ctx, db, "migrations"); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		case "sqlite":
			if err := initSQLiteSchema(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("init sqlite schema: %w", err)
			}
		default:
			_ = db.Close()
			return nil, fmt.Errorf("unsupported driver %q", driver)
		}
	}

	var placeholder sq.PlaceholderFormat = sq.Question
	if driver == "postgres" {
		placeholder = sq.Dollar
	}

	s := &Store{
		db:     db,
		driver: driver,
		sql:    sq.StatementBuilder.PlaceholderFormat(placeholder),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func normalizeDriver(driver string) string {
	d := strings.ToLower(strings.TrimSpace(driver))
	switch d {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return d
	}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Driver() string {
	return s.driver
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS stories (
    id TEXT PRIMARY KEY,
    cache_key TEXT NOT NULL,
    category TEXT NOT NULL,
    epoch TEXT NOT NULL,
    model_id TEXT NOT NULL,
    language TEXT NOT NULL,
    story_type TEXT NOT NULL,
    story_index INTEGER NOT NULL,
    headline TEXT NOT NULL,
    summary TEXT NOT NULL,
    full_text TEXT NOT NULL,
    source TEXT NOT NULL,
    historical_figure TEXT NOT NULL DEFAULT '',
    published_at DATETIME NOT NULL,
    created_at DATETIME NOT NULL,
    last_accessed DATETIME,
    access_count INTEGER NOT NULL DEFAULT 0,
    requested_count INTEGER NOT NULL DEFAULT 0,
    UNIQUE(cache_key, story_index)
);
CREATE INDEX IF NOT EXISTS idx_stories_cache_key ON stories(cache_key);
CREATE INDEX IF NOT EXISTS idx_stories_selection ON stories(category, epoch, language, story_type);
CREATE INDEX IF NOT EXISTS idx_stories_created_at ON stories(created_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}
