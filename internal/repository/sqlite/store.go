// Package sqlite is the single-node storage driver: users, refresh tokens and
// rate-limit counters in one SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/NordCoder/doggy-auth/internal/domain"
	domainauth "github.com/NordCoder/doggy-auth/internal/domain/auth"
	"github.com/NordCoder/doggy-auth/internal/domain/ratelimit"
	"github.com/NordCoder/doggy-auth/internal/domain/user"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	ErrNotFound = domain.ErrNotFound
	ErrConflict = domain.ErrConflict
)

var (
	_ user.Repo                   = (*Store)(nil)
	_ domainauth.RefreshTokenRepo = (*Store)(nil)
	_ domainauth.Transactor       = (*Store)(nil)
	_ ratelimit.CounterStore      = (*Store)(nil)
)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

const defaultQueryTimeout = 2 * time.Second

type Store struct {
	db *sql.DB
	// QueryTimeout bounds each call, including the wait for the single connection.
	QueryTimeout time.Duration
}

// Open opens (or creates) the database file and applies the embedded migrations.
// SQLite allows one writer, so the pool is pinned to a single connection and
// every transaction is serialised.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db, QueryTimeout: defaultQueryTimeout}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	db.SetMaxOpenConns(1)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return err
	}
	_, err = p.Up(ctx)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.QueryTimeout)
}

type txKey struct{}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) conn(ctx context.Context) execQueryer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx mirrors the Postgres transactor: nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) (txErr error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if txErr != nil {
			_ = tx.Rollback()
			return
		}
		if err := tx.Commit(); err != nil {
			txErr = fmt.Errorf("commit tx: %w", err)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
