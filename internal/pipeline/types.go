package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/recovery"
)

// ErrNoObservations is returned when the selected window holds no rows.
var ErrNoObservations = errors.New("no observations in the selected window")

// ProfileStore persists pair profiles. *service.ProfileService satisfies it.
type ProfileStore interface {
	GetProfiles(ctx context.Context, keys []domain.PairKey) (map[domain.PairKey]domain.PairProfile, error)
	SaveProfiles(ctx context.Context, profiles []domain.PairProfile) error
	ReplaceProfiles(ctx context.Context, profiles []domain.PairProfile) error
}

// ReportArchive keeps a copy of every finished run's report.
// *storage.ReportArchive satisfies it.
type ReportArchive interface {
	Save(ctx context.Context, run domain.RecoveryRun, report any) (string, error)
}

// RunConfig holds configuration for the recovery pipeline
type RunConfig struct {
	// FilterActive drops retired pairs before a full run.
	FilterActive     bool
	ActiveWindowDays int
	MinTotalSales    int

	// HistoryDays is how many trailing recovered dates incremental runs read
	// to fill in missing profiles.
	HistoryDays int

	RetryAttempts int           // Number of attempts for each persistence step
	RetryBackoff  time.Duration // Backoff duration between attempts
}

// DefaultRunConfig returns sensible defaults
func DefaultRunConfig() RunConfig {
	return RunConfig{
		FilterActive:     false,
		ActiveWindowDays: 365,
		MinTotalSales:    6,
		HistoryDays:      30,
		RetryAttempts:    3,
		RetryBackoff:     2 * time.Second,
	}
}

// Outcome is what a finished run hands back to the caller.
type Outcome struct {
	Run    domain.RecoveryRun
	Report recovery.Report
}
