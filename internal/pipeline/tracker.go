package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/metrics"
	"github.com/andresuchdata/demand-recovery/internal/recovery"
	"github.com/andresuchdata/demand-recovery/internal/repository"
	"github.com/rs/zerolog"
)

// runTracker records the lifecycle of a run in the runs table.
type runTracker struct {
	repo    repository.RunRepository
	log     zerolog.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

func (t *runTracker) start(ctx context.Context, mode domain.RunMode, from, to time.Time) (*domain.RecoveryRun, error) {
	run := &domain.RecoveryRun{
		Mode:        mode,
		Status:      domain.RunStatusProcessing,
		WindowStart: from,
		WindowEnd:   to,
		StartedAt:   t.now(),
	}
	if err := t.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create recovery run: %w", err)
	}

	t.log.Info().
		Int64("run_id", run.ID).
		Str("mode", domain.RunModeLabel(mode)).
		Time("window_start", from).
		Time("window_end", to).
		Msg("recovery run started")
	return run, nil
}

func (t *runTracker) complete(ctx context.Context, run *domain.RecoveryRun, report recovery.Report) error {
	run.Status = domain.RunStatusCompleted
	run.Pairs = report.Pairs
	run.Rows = report.Rows
	run.SkippedPairs = len(report.SkippedPairs)
	run.DroppedPairs = len(report.DroppedPairs)
	now := t.now()
	run.CompletedAt = &now

	if err := t.repo.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("failed to complete recovery run: %w", err)
	}
	t.metrics.RunFinished(*run, now.Sub(run.StartedAt))

	t.log.Info().
		Int64("run_id", run.ID).
		Int("pairs", run.Pairs).
		Int("rows", run.Rows).
		Int("skipped_pairs", run.SkippedPairs).
		Int("dropped_pairs", run.DroppedPairs).
		Dur("elapsed", now.Sub(run.StartedAt)).
		Msg("recovery run completed")
	return nil
}

// fail marks the run failed and returns cause unchanged. A
// failure to record it is only logged.
func (t *runTracker) fail(ctx context.Context, run *domain.RecoveryRun, cause error) error {
	run.Status = domain.RunStatusFailed
	run.ErrorMessage = cause.Error()
	now := t.now()
	run.CompletedAt = &now

	// The caller's context may already be cancelled.
	if err := t.repo.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		t.log.Error().Err(err).Int64("run_id", run.ID).Msg("could not mark recovery run failed")
	}

	t.metrics.RunFinished(*run, now.Sub(run.StartedAt))
	t.log.Error().Err(cause).Int64("run_id", run.ID).Msg("recovery run failed")
	return cause
}
