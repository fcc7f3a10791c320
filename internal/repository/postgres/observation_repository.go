package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/repository"
	"github.com/lib/pq"
)

const observationColumns = `
	date, store, product, price, promotion, is_weekend,
	category, consumer_group, substance,
	sold, stock, received, ordered, receipt_count,
	network_sold, network_stock, network_received, network_receipt_count,
	day_of_week, day, month, year,
	season, precise_season, temperature, pressure`

type observationRepository struct {
	db *DB
}

func NewObservationRepository(db *DB) repository.ObservationRepository {
	return &observationRepository{db: db}
}

func (r *observationRepository) FetchObservations(ctx context.Context, filter domain.ObservationFilter) ([]domain.DemandObservation, error) {
	where, args := observationConditions(filter)
	query := fmt.Sprintf(`
		SELECT %s
		FROM demand_observations
		%s
		ORDER BY store, product, date`, observationColumns, where)

	var rows []domain.DemandObservation
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching observations: %w", err)
	}
	return rows, nil
}

func observationConditions(filter domain.ObservationFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	argCounter := 1

	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", argCounter))
		args = append(args, filter.From)
		argCounter++
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", argCounter))
		args = append(args, filter.To)
		argCounter++
	}
	if len(filter.Stores) > 0 {
		conditions = append(conditions, fmt.Sprintf("store = ANY($%d::text[])", argCounter))
		args = append(args, pq.Array(filter.Stores))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
