package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"golang.org/x/sync/errgroup"
)

// persist writes the corrected rows and the profiles of a run concurrently.
// A full run replaces the cached profiles, an incremental run only adds to them.
func (o *Orchestrator) persist(ctx context.Context, rows []domain.CorrectedObservation, profiles []domain.PairProfile, replace bool) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return o.withRetry(gctx, "save recovered rows", func(ctx context.Context) error {
			return o.recovered.SaveRecovered(ctx, rows)
		})
	})

	g.Go(func() error {
		return o.withRetry(gctx, "save pair profiles", func(ctx context.Context) error {
			if replace {
				return o.profiles.ReplaceProfiles(ctx, profiles)
			}
			return o.profiles.SaveProfiles(ctx, profiles)
		})
	})

	return g.Wait()
}

// withRetry runs fn up to RetryAttempts times, waiting RetryBackoff between
// attempts.
func (o *Orchestrator) withRetry(ctx context.Context, step string, fn func(ctx context.Context) error) error {
	attempts := max(o.cfg.RetryAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		o.metrics.RetryObserved(step)
		o.log.Warn().
			Err(err).
			Str("step", step).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("persistence step failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.RetryBackoff):
		}
	}
	return fmt.Errorf("%s: %w", step, err)
}
