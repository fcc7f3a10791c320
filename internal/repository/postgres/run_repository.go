package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/repository"
)

const runColumns = `id, mode, status, window_start, window_end, pair_count, row_count,
	skipped_pairs, dropped_pairs, report_key, started_at, completed_at, error_message`

type runRepository struct {
	db *DB
}

func NewRunRepository(db *DB) repository.RunRepository {
	return &runRepository{db: db}
}

// CreateRun creates a new recovery run record
func (r *runRepository) CreateRun(ctx context.Context, run *domain.RecoveryRun) error {
	query := `
		INSERT INTO recovery_runs (mode, status, window_start, window_end, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	if err := r.db.QueryRowContext(
		ctx, query,
		run.Mode, run.Status, run.WindowStart, run.WindowEnd, run.StartedAt,
	).Scan(&run.ID); err != nil {
		return fmt.Errorf("failed to create recovery run: %w", err)
	}
	return nil
}

// UpdateRun updates an existing recovery run
func (r *runRepository) UpdateRun(ctx context.Context, run *domain.RecoveryRun) error {
	query := `
		UPDATE recovery_runs
		SET status = $1, pair_count = $2, row_count = $3, skipped_pairs = $4, dropped_pairs = $5,
		    report_key = $6, completed_at = $7, error_message = $8
		WHERE id = $9
	`

	if _, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.Pairs, run.Rows, run.SkippedPairs, run.DroppedPairs,
		run.ReportKey, run.CompletedAt, run.ErrorMessage, run.ID,
	); err != nil {
		return fmt.Errorf("failed to update recovery run %d: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a recovery run by ID; it returns nil when none exists.
func (r *runRepository) GetRun(ctx context.Context, id int64) (*domain.RecoveryRun, error) {
	query := `SELECT ` + runColumns + ` FROM recovery_runs WHERE id = $1`

	var run domain.RecoveryRun
	err := r.db.GetContext(ctx, &run, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting recovery run %d: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first.
func (r *runRepository) ListRuns(ctx context.Context, limit int) ([]domain.RecoveryRun, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + runColumns + ` FROM recovery_runs ORDER BY started_at DESC, id DESC LIMIT $1`

	var runs []domain.RecoveryRun
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("error listing recovery runs: %w", err)
	}
	return runs, nil
}
