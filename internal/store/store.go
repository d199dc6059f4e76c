// Package store owns the PostgreSQL connection pool and schema migrations
// shared by the UTXO repository and the ledger engine. It holds no
// business logic: it is a stateless façade over *sql.DB, the way the
// teacher's internal/storage.Storage is a façade over its SQLite handle.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/klingon-exchange/custody-ledger/internal/config"
	"github.com/klingon-exchange/custody-ledger/internal/logging"
)

// Store wraps the shared *sql.DB connection pool.
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

// Open opens the PostgreSQL connection pool described by cfg and runs
// schema migrations.
func Open(cfg config.DatabaseConfig) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &Store{db: db, log: logging.GetDefault().Component("store")}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Begin opens a new transaction. Every mutating UTXO-repo or ledger-engine
// operation runs under a transaction opened this way, so a single commit
// covers both the UTXO transition and the matching ledger posting.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// migrate creates every table this core owns if it does not already
// exist. Unlike the teacher's tolerant ALTER-TABLE migrations (which
// ignore "already exists" errors on a SQLite file that predates a
// column), schema changes here are expressed as idempotent
// CREATE TABLE/INDEX IF NOT EXISTS statements, since Postgres supports
// that directly.
func (s *Store) migrate() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}
	s.log.Debug("schema migrated", "statements", len(schemaStatements))
	return nil
}
