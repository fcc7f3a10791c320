package postgres

import (
	"context"
	"fmt"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Postgres caps a statement at 65535 parameters; a recovered row binds 32.
const recoveredBatchSize = 1000

const recoveredColumns = observationColumns + `,
	is_poisson_like, median_lag_days,
	sold_corrected, received_corrected, stock_corrected, ordered_simulated`

const upsertRecoveredQuery = `
	INSERT INTO recovered_observations (` + recoveredColumns + `, updated_at)
	VALUES (
		:date, :store, :product, :price, :promotion, :is_weekend,
		:category, :consumer_group, :substance,
		:sold, :stock, :received, :ordered, :receipt_count,
		:network_sold, :network_stock, :network_received, :network_receipt_count,
		:day_of_week, :day, :month, :year,
		:season, :precise_season, :temperature, :pressure,
		:is_poisson_like, :median_lag_days,
		:sold_corrected, :received_corrected, :stock_corrected, :ordered_simulated,
		NOW()
	)
	ON CONFLICT (date, store, product)
	DO UPDATE SET
		is_poisson_like = EXCLUDED.is_poisson_like,
		median_lag_days = EXCLUDED.median_lag_days,
		sold_corrected = EXCLUDED.sold_corrected,
		received_corrected = EXCLUDED.received_corrected,
		stock_corrected = EXCLUDED.stock_corrected,
		ordered_simulated = EXCLUDED.ordered_simulated,
		updated_at = NOW()`

type recoveredRepository struct {
	db *DB
}

func NewRecoveredRepository(db *DB) repository.RecoveredRepository {
	return &recoveredRepository{db: db}
}

// SaveRecovered upserts rows in batches inside one transaction.
func (r *recoveredRepository) SaveRecovered(ctx context.Context, rows []domain.CorrectedObservation) error {
	if len(rows) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for start := 0; start < len(rows); start += recoveredBatchSize {
			end := min(start+recoveredBatchSize, len(rows))
			if _, err := tx.NamedExecContext(ctx, upsertRecoveredQuery, rows[start:end]); err != nil {
				return fmt.Errorf("failed to upsert recovered rows %d-%d: %w", start, end, err)
			}
		}
		return nil
	})
}

func (r *recoveredRepository) FetchTrailing(ctx context.Context, days int, stores []string) ([]domain.CorrectedObservation, error) {
	if days <= 0 {
		days = 30
	}

	query := `
		SELECT ` + recoveredColumns + `
		FROM recovered_observations
		WHERE date >= (
			SELECT MIN(date) FROM (
				SELECT DISTINCT date FROM recovered_observations ORDER BY date DESC LIMIT $1
			) recent
		)`
	args := []interface{}{days}
	if len(stores) > 0 {
		query += ` AND store = ANY($2::text[])`
		args = append(args, pq.Array(stores))
	}
	query += ` ORDER BY date, store, product`

	var rows []domain.CorrectedObservation
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching trailing recovered rows: %w", err)
	}
	return rows, nil
}
