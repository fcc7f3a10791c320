package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

type DB struct {
	*sqlx.DB
	sem *semaphore.Weighted
}

var (
	dbInstance *DB
	once       sync.Once
)

// NewDB creates a new database connection pool
func NewDB(cfg *config.DatabaseConfig) (*DB, error) {
	var err error
	once.Do(func() {
		var db *sqlx.DB
		db, err = sqlx.Connect("pgx", cfg.DSN())
		if err != nil {
			return
		}

		maxConns := cfg.MaxConns
		if maxConns <= 0 {
			maxConns = 10
		}

		// Configure connection pool
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(max(maxConns/4, 1))
		db.SetConnMaxLifetime(5 * time.Minute)

		dbInstance = Wrap(db, int64(maxConns))
	})

	return dbInstance, err
}

// Wrap builds a DB around an existing handle, allowing at most limit
// concurrent transactions.
func Wrap(db *sqlx.DB, limit int64) *DB {
	if limit <= 0 {
		limit = 1
	}
	return &DB{DB: db, sem: semaphore.NewWeighted(limit)}
}

// WithTx executes a function within a transaction
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	// Acquire semaphore
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("could not acquire semaphore: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}
