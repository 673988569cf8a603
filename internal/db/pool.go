// Package db owns the connection pool to the relational store and the
// query executor every repository goes through.
package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"bookshelf.org/internal/apperr"
)

// Pool is a bounded set of store connections shared by all requests.
type Pool struct {
	db             *sql.DB
	acquireTimeout time.Duration
	log            *slog.Logger
}

// Open connects to the store described by cfg and verifies it with a ping.
// A failed ping is logged and returned; callers are expected to abort startup.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*Pool, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()

	sqlDB, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		log.Error("store open failed", "dsn", cfg.Redacted(), "error", err)
		return nil, apperr.Connectivityf(err, "open store")
	}
	p := New(sqlDB, cfg, log)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		log.Error("store connection failed", "dsn", cfg.Redacted(), "error", err)
		_ = sqlDB.Close()
		return nil, apperr.Connectivityf(err, "connect to store")
	}
	log.Info("store connection established",
		"dsn", cfg.Redacted(),
		"max_open_conns", cfg.MaxOpenConns,
		"acquire_timeout", cfg.AcquireTimeout.String(),
	)
	return p, nil
}

// New wraps an already opened *sql.DB and applies the pool bounds from cfg.
func New(sqlDB *sql.DB, cfg Config, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return &Pool{
		db:             sqlDB,
		acquireTimeout: cfg.AcquireTimeout,
		log:            log.With("component", "db"),
	}
}

// DB exposes the underlying handle for migrations and stats collection.
func (p *Pool) DB() *sql.DB { return p.db }

// Executor returns an executor that acquires a connection per statement.
func (p *Pool) Executor() *Executor {
	return &Executor{pool: p, log: p.log}
}

// Ping checks that a connection can be acquired and used.
func (p *Pool) Ping(ctx context.Context) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release(conn)
	if err := conn.PingContext(ctx); err != nil {
		return Translate(err)
	}
	return nil
}

// Close releases every connection held by the pool.
func (p *Pool) Close() error {
	return p.db.Close()
}

// WithTx runs fn inside a transaction bound to a single connection.
// It commits when fn returns nil and rolls back on error or panic; panics are rethrown.
// If ctx is cancelled while the transaction is open, database/sql rolls it back.
func (p *Pool) WithTx(ctx context.Context, fn func(ctx context.Context, ex *Executor) error) (err error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer p.release(conn)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		p.log.ErrorContext(ctx, "begin transaction failed", "error", err)
		return Translate(err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				p.log.ErrorContext(ctx, "rollback failed", "error", rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			p.log.ErrorContext(ctx, "commit failed", "error", cErr)
			err = Translate(cErr)
		}
	}()

	return fn(ctx, &Executor{pool: p, tx: tx, log: p.log})
}

// acquire takes a connection from the pool, waiting at most acquireTimeout.
func (p *Pool) acquire(ctx context.Context) (*sql.Conn, error) {
	actx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	conn, err := p.db.Conn(actx)
	if err == nil {
		return conn, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		p.log.ErrorContext(ctx, "connection acquire timed out",
			"timeout", p.acquireTimeout.String(),
			"in_use", p.db.Stats().InUse,
		)
		return nil, apperr.Connectivityf(ErrAcquireTimeout, "no store connection available within %s", p.acquireTimeout)
	}
	p.log.ErrorContext(ctx, "connection acquire failed", "error", err)
	return nil, Translate(err)
}

func (p *Pool) release(conn *sql.Conn) {
	if err := conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		p.log.Warn("connection release failed", "error", err)
	}
}
