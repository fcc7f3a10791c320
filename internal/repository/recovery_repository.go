// internal/repository/recovery_repository.go
package repository

import (
	"context"

	"github.com/andresuchdata/demand-recovery/internal/domain"
)

// ObservationRepository reads the cleaned daily input series.
type ObservationRepository interface {
	FetchObservations(ctx context.Context, filter domain.ObservationFilter) ([]domain.DemandObservation, error)
}

// RecoveredRepository stores the corrected series.
type RecoveredRepository interface {
	SaveRecovered(ctx context.Context, rows []domain.CorrectedObservation) error
	// FetchTrailing returns the rows of the last days distinct dates.
	FetchTrailing(ctx context.Context, days int, stores []string) ([]domain.CorrectedObservation, error)
}

// ProfileRepository stores the per-pair label and lag reused by incremental runs.
type ProfileRepository interface {
	UpsertProfiles(ctx context.Context, profiles []domain.PairProfile) error
	GetProfiles(ctx context.Context, keys []domain.PairKey) (map[domain.PairKey]domain.PairProfile, error)
	GetProfile(ctx context.Context, key domain.PairKey) (*domain.PairProfile, error)
}

// RunRepository tracks recovery runs.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.RecoveryRun) error
	UpdateRun(ctx context.Context, run *domain.RecoveryRun) error
	GetRun(ctx context.Context, id int64) (*domain.RecoveryRun, error)
	ListRuns(ctx context.Context, limit int) ([]domain.RecoveryRun, error)
}
