package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/metrics"
	"github.com/andresuchdata/demand-recovery/internal/recovery"
	"github.com/andresuchdata/demand-recovery/internal/repository"
	"github.com/rs/zerolog"
)

// Orchestrator runs the recovery engine against the database: it loads a
// window, runs the engine, persists rows and profiles, and tracks the run.
type Orchestrator struct {
	engine       *recovery.Engine
	observations repository.ObservationRepository
	recovered    repository.RecoveredRepository
	profiles     ProfileStore
	archive      ReportArchive
	tracker      *runTracker
	metrics      *metrics.Recorder
	cfg          RunConfig
	log          zerolog.Logger
}

// Deps groups the collaborators of an Orchestrator. Archive and Metrics are
// optional.
type Deps struct {
	Engine       *recovery.Engine
	Observations repository.ObservationRepository
	Recovered    repository.RecoveredRepository
	Profiles     ProfileStore
	Runs         repository.RunRepository
	Archive      ReportArchive
	Metrics      *metrics.Recorder
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(deps Deps, cfg RunConfig, logger zerolog.Logger) *Orchestrator {
	log := logger.With().Str("component", "pipeline").Logger()
	return &Orchestrator{
		engine:       deps.Engine,
		observations: deps.Observations,
		recovered:    deps.Recovered,
		profiles:     deps.Profiles,
		archive:      deps.Archive,
		tracker:      &runTracker{repo: deps.Runs, log: log, metrics: deps.Metrics, now: time.Now},
		metrics:      deps.Metrics,
		cfg:          cfg,
		log:          log,
	}
}

// RunFirst recomputes labels, lags and corrections for every pair in filter.
func (o *Orchestrator) RunFirst(ctx context.Context, filter domain.ObservationFilter) (*Outcome, error) {
	rows, err := o.observations.FetchObservations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch observations: %w", err)
	}

	if o.cfg.FilterActive {
		before := len(rows)
		rows = recovery.FilterActivePairs(rows, o.cfg.ActiveWindowDays, o.cfg.MinTotalSales)
		o.log.Info().
			Int("rows_before", before).
			Int("rows_after", len(rows)).
			Msg("inactive pairs filtered")
	}
	if len(rows) == 0 {
		return nil, ErrNoObservations
	}

	from, to := dateRange(rows)
	run, err := o.tracker.start(ctx, domain.RunModeFirst, from, to)
	if err != nil {
		return nil, err
	}

	result, err := o.engine.FirstFullSalesRecovery(ctx, rows)
	if err != nil {
		return nil, o.tracker.fail(ctx, run, err)
	}
	for i := range result.Profiles {
		result.Profiles[i].RunID = run.ID
	}

	if err := o.persist(ctx, result.Rows, result.Profiles, true); err != nil {
		return nil, o.tracker.fail(ctx, run, err)
	}

	return o.finish(ctx, run, result.Report)
}

// RunNext corrects a new window with the persisted profiles. Profiles missing
// from the profile store are rebuilt from the trailing recovered history.
func (o *Orchestrator) RunNext(ctx context.Context, filter domain.ObservationFilter) (*Outcome, error) {
	rows, err := o.observations.FetchObservations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch observations: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNoObservations
	}

	from, to := dateRange(rows)
	run, err := o.tracker.start(ctx, domain.RunModeNext, from, to)
	if err != nil {
		return nil, err
	}

	profiles, recovered, err := o.loadProfiles(ctx, rows, filter.Stores)
	if err != nil {
		return nil, o.tracker.fail(ctx, run, err)
	}

	result, err := o.engine.NextFullSalesRecovery(ctx, rows, profiles)
	if err != nil {
		return nil, o.tracker.fail(ctx, run, err)
	}

	// Profiles recovered from history and those classified from this window
	// become regular profiles.
	fresh := append(recovered, result.Profiles...)
	for i := range fresh {
		fresh[i].RunID = run.ID
	}

	if err := o.persist(ctx, result.Rows, fresh, false); err != nil {
		return nil, o.tracker.fail(ctx, run, err)
	}

	return o.finish(ctx, run, result.Report)
}

// loadProfiles returns the profile of every pair in rows that has one, and the
// profiles that had to be rebuilt from the recovered history.
func (o *Orchestrator) loadProfiles(ctx context.Context, rows []domain.DemandObservation, stores []string) (map[domain.PairKey]domain.PairProfile, []domain.PairProfile, error) {
	keys := pairKeys(rows)

	profiles, err := o.profiles.GetProfiles(ctx, keys)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load pair profiles: %w", err)
	}

	var missing []domain.PairKey
	for _, k := range keys {
		if _, ok := profiles[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return profiles, nil, nil
	}

	history, err := o.recovered.FetchTrailing(ctx, o.cfg.HistoryDays, stores)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch recovered history: %w", err)
	}
	fromHistory := recovery.ProfilesFromHistory(history)

	var rebuilt []domain.PairProfile
	for _, k := range missing {
		if p, ok := fromHistory[k]; ok {
			profiles[k] = p
			rebuilt = append(rebuilt, p)
		}
	}

	o.log.Info().
		Int("pairs", len(keys)).
		Int("missing_profiles", len(missing)).
		Int("rebuilt_from_history", len(rebuilt)).
		Int("history_days", o.cfg.HistoryDays).
		Msg("pair profiles loaded")
	return profiles, rebuilt, nil
}

// finish archives the report, when an archive is configured, and closes the run.
// An archive failure does not fail the run.
func (o *Orchestrator) finish(ctx context.Context, run *domain.RecoveryRun, report recovery.Report) (*Outcome, error) {
	if o.archive != nil {
		key, err := o.archive.Save(ctx, *run, report)
		if err != nil {
			o.log.Warn().Err(err).Int64("run_id", run.ID).Msg("could not archive run report")
		} else {
			run.ReportKey = key
		}
	}

	if err := o.tracker.complete(ctx, run, report); err != nil {
		return nil, err
	}
	o.metrics.ReportObserved(run.Mode, report)
	return &Outcome{Run: *run, Report: report}, nil
}

func dateRange(rows []domain.DemandObservation) (time.Time, time.Time) {
	from, to := rows[0].Date, rows[0].Date
	for _, r := range rows[1:] {
		if r.Date.Before(from) {
			from = r.Date
		}
		if r.Date.After(to) {
			to = r.Date
		}
	}
	return from, to
}

func pairKeys(rows []domain.DemandObservation) []domain.PairKey {
	seen := make(map[domain.PairKey]bool)
	var keys []domain.PairKey
	for _, r := range rows {
		k := r.Key()
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// IsNoObservations reports whether err means the window was empty.
func IsNoObservations(err error) bool {
	return errors.Is(err, ErrNoObservations)
}
