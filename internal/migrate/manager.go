// Package migrate applies the embedded schema and seed files with goose.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed sql/schema/*.sql sql/seeds/*.sql
var files embed.FS

const (
	schemaDir = "sql/schema"
	seedsDir  = "sql/seeds"

	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"
)

// goose keeps its base FS, dialect and version table in package state.
var gooseMu sync.Mutex

// seams for tests
var (
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.UpContext(ctx, db, dir, opts...)
	}
	gooseDownContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return goose.DownContext(ctx, db, dir, opts...)
	}
	gooseVersionContext = func(ctx context.Context, db *sql.DB) (int64, error) {
		return goose.GetDBVersionContext(ctx, db)
	}
)

// Manager runs schema migrations and role seeds against one database.
type Manager struct {
	db              *sql.DB
	fsys            fs.FS
	migrationsTable string
	seedsTable      string
	log             *slog.Logger
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithSeedsTable overrides the default seeds bookkeeping table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// WithLogger routes goose output to l.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager constructs a Manager over the embedded SQL files.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		fsys:            files,
		migrationsTable: defaultMigrationsTable,
		seedsTable:      defaultSeedsTable,
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending schema migrations.
func (m *Manager) Up(ctx context.Context) error {
	return m.run(m.migrationsTable, func() error {
		if err := gooseUpContext(ctx, m.db, schemaDir); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	})
}

// Down rolls back the most recent schema migration.
func (m *Manager) Down(ctx context.Context) error {
	return m.run(m.migrationsTable, func() error {
		if err := gooseDownContext(ctx, m.db, schemaDir); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	})
}

// Status returns the current schema version (0 when nothing is applied).
func (m *Manager) Status(ctx context.Context) (int64, error) {
	var version int64
	err := m.run(m.migrationsTable, func() error {
		v, err := gooseVersionContext(ctx, m.db)
		if err != nil {
			return fmt.Errorf("migrate status: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

// Seed inserts the role catalog. Seeds are idempotent and tracked in their
// own table so they never shift the schema version.
func (m *Manager) Seed(ctx context.Context) error {
	return m.run(m.seedsTable, func() error {
		if err := gooseUpContext(ctx, m.db, seedsDir); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		return nil
	})
}

func (m *Manager) run(table string, fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(m.fsys)
	defer goose.SetBaseFS(nil)
	goose.SetTableName(table)
	goose.SetLogger(gooseLogger{log: m.log})
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return fn()
}

type gooseLogger struct {
	log *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}
