package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/repository"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const profileBatchSize = 5000

const profileColumns = `store, product, is_poisson_like, median_lag_days, lag_matched, run_id, computed_at`

const upsertProfilesQuery = `
	INSERT INTO pair_profiles (` + profileColumns + `)
	VALUES (:store, :product, :is_poisson_like, :median_lag_days, :lag_matched, :run_id, :computed_at)
	ON CONFLICT (store, product)
	DO UPDATE SET
		is_poisson_like = EXCLUDED.is_poisson_like,
		median_lag_days = EXCLUDED.median_lag_days,
		lag_matched = EXCLUDED.lag_matched,
		run_id = EXCLUDED.run_id,
		computed_at = EXCLUDED.computed_at`

type profileRepository struct {
	db *DB
}

func NewProfileRepository(db *DB) repository.ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) UpsertProfiles(ctx context.Context, profiles []domain.PairProfile) error {
	if len(profiles) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for start := 0; start < len(profiles); start += profileBatchSize {
			end := min(start+profileBatchSize, len(profiles))
			if _, err := tx.NamedExecContext(ctx, upsertProfilesQuery, profiles[start:end]); err != nil {
				return fmt.Errorf("failed to upsert pair profiles: %w", err)
			}
		}
		return nil
	})
}

// GetProfiles returns the profiles of keys. An empty key list loads every profile.
func (r *profileRepository) GetProfiles(ctx context.Context, keys []domain.PairKey) (map[domain.PairKey]domain.PairProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM pair_profiles`
	var args []interface{}
	if len(keys) > 0 {
		stores := make([]string, len(keys))
		products := make([]string, len(keys))
		for i, k := range keys {
			stores[i] = k.Store
			products[i] = k.Product
		}
		query += ` WHERE (store, product) IN (SELECT * FROM unnest($1::text[], $2::text[]))`
		args = append(args, pq.Array(stores), pq.Array(products))
	}

	var profiles []domain.PairProfile
	if err := r.db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, fmt.Errorf("error getting pair profiles: %w", err)
	}

	out := make(map[domain.PairKey]domain.PairProfile, len(profiles))
	for _, p := range profiles {
		out[p.Key()] = p
	}
	return out, nil
}

func (r *profileRepository) GetProfile(ctx context.Context, key domain.PairKey) (*domain.PairProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM pair_profiles WHERE store = $1 AND product = $2`

	var profile domain.PairProfile
	err := r.db.GetContext(ctx, &profile, query, key.Store, key.Product)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting pair profile %s: %w", key, err)
	}
	return &profile, nil
}
