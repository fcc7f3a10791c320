package recovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Report aggregates what a recovery run did.
type Report struct {
	Pairs           int              `json:"pairs"`
	Rows            int              `json:"rows"`
	PoissonPairs    int              `json:"poisson_pairs"`
	NonPoissonPairs int              `json:"non_poisson_pairs"`
	ImputedDays     int              `json:"imputed_days"`
	DefaultLagPairs int              `json:"default_lag_pairs"`
	DeficitRuns     int              `json:"deficit_runs"`
	SimulatedOrders int              `json:"simulated_orders"`
	SkippedPairs    []domain.PairKey `json:"skipped_pairs"`
	DroppedPairs    []domain.PairKey `json:"dropped_pairs"`
}

// Result is the output of a recovery run.
type Result struct {
	Rows     []domain.CorrectedObservation
	Profiles []domain.PairProfile
	Report   Report
}

// Engine runs the recovery stages over a batch of pairs. Pairs are processed
// in parallel; each worker only touches its own pair's rows.
type Engine struct {
	cfg        Config
	log        zerolog.Logger
	classifier Classifier

	// PoissonImputer serves Poisson-like pairs, BoostedImputer the rest.
	PoissonImputer Imputer
	BoostedImputer Imputer

	now func() time.Time
}

// NewEngine validates cfg and builds an engine with the default strategies.
func NewEngine(cfg Config, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recovery config: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{
		cfg:            cfg,
		log:            logger.With().Str("component", "recovery").Logger(),
		classifier:     NewClassifier(cfg),
		PoissonImputer: PoissonRegressionImputer{Alpha: cfg.PoissonAlpha, MaxIter: cfg.PoissonMaxIter},
		BoostedImputer: BoostedImputer{Config: cfg.Boosting},
		now:            time.Now,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) imputerFor(poissonLike bool) Imputer {
	if poissonLike {
		return e.PoissonImputer
	}
	return e.BoostedImputer
}

// pairOutcome is what one worker produces for one pair.
type pairOutcome struct {
	profile domain.PairProfile
	imputed int
	stats   SimulationStats
	fitErr  *domain.PairFittingError
}

// FirstFullSalesRecovery runs classification, imputation, lag estimation and
// inventory simulation over a complete history. It returns the corrected rows
// and one profile per pair.
func (e *Engine) FirstFullSalesRecovery(ctx context.Context, rows []domain.DemandObservation) (*Result, error) {
	start := time.Now()
	if err := ValidateObservations(rows); err != nil {
		return nil, err
	}

	pairs := groupByPair(rows)
	outcomes := make([]pairOutcome, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = e.recoverPair(pairs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("recovery interrupted: %w", err)
	}

	computedAt := e.now().UTC()
	result := &Result{
		Rows:     make([]domain.CorrectedObservation, 0, len(rows)),
		Profiles: make([]domain.PairProfile, 0, len(pairs)),
	}
	report := &result.Report
	for i, p := range pairs {
		out := outcomes[i]
		out.profile.ComputedAt = computedAt

		report.Pairs++
		if out.profile.IsPoissonLike {
			report.PoissonPairs++
		} else {
			report.NonPoissonPairs++
		}
		if !out.profile.LagMatched {
			report.DefaultLagPairs++
		}
		report.ImputedDays += out.imputed
		report.DeficitRuns += out.stats.DeficitRuns
		report.SimulatedOrders += out.stats.SimulatedOrders

		if out.fitErr != nil {
			report.SkippedPairs = append(report.SkippedPairs, p.key)
			e.log.Warn().
				Err(out.fitErr.Err).
				Str("store", p.key.Store).
				Str("product", p.key.Product).
				Str("strategy", out.fitErr.Strategy).
				Msg("imputer fit failed, censored days left unmodified")
		}

		result.Rows = append(result.Rows, p.rows...)
		result.Profiles = append(result.Profiles, out.profile)
	}
	report.Rows = len(result.Rows)
	sortCorrected(result.Rows)

	e.log.Info().
		Int("pairs", report.Pairs).
		Int("poisson_pairs", report.PoissonPairs).
		Int("non_poisson_pairs", report.NonPoissonPairs).
		Int("imputed_days", report.ImputedDays).
		Int("default_lag_pairs", report.DefaultLagPairs).
		Int("skipped_pairs", len(report.SkippedPairs)).
		Dur("elapsed", time.Since(start)).
		Msg("full sales recovery completed")

	return result, nil
}

// recoverPair runs the four stages on one pair. Classification precedes
// imputation, and the lag profile is known before the simulation starts.
func (e *Engine) recoverPair(p pairSeries) pairOutcome {
	var out pairOutcome

	poissonLike := e.classifier.Label(p.rows)

	imputed, err := ImputePair(p.key, p.rows, e.imputerFor(poissonLike), e.cfg.MinTrainingRows, PairRand(e.cfg.Seed, p.key))
	if err != nil {
		var fitErr *domain.PairFittingError
		if !errors.As(err, &fitErr) {
			fitErr = &domain.PairFittingError{Key: p.key, Err: err}
		}
		out.fitErr = fitErr
	}
	out.imputed = imputed

	lag := LagProfileFor(p.key, p.rows, e.cfg.DefaultLagDays)
	out.stats = Simulate(p.rows, lag.MedianLagDays, e.cfg.MaxDeficitPeriod)

	for i := range p.rows {
		p.rows[i].IsPoissonLike = poissonLike
		p.rows[i].MedianLagDays = lag.MedianLagDays
	}

	out.profile = domain.NewPairProfile(domain.DistributionLabel{PairKey: p.key, IsPoissonLike: poissonLike}, lag)
	return out
}

// NextFullSalesRecovery processes a new window using the profiles persisted by
// an earlier batch run. Nothing is retrained: the window's corrected fields
// carry the recorded values forward together with the pair's label and lag.
// Pairs without a profile are handled according to the unmatched pair policy.
// Result.Profiles only holds profiles created here for such pairs.
func (e *Engine) NextFullSalesRecovery(ctx context.Context, window []domain.DemandObservation, profiles map[domain.PairKey]domain.PairProfile) (*Result, error) {
	if err := ValidateObservations(window); err != nil {
		return nil, err
	}

	result := &Result{Rows: make([]domain.CorrectedObservation, 0, len(window))}
	report := &result.Report
	computedAt := e.now().UTC()

	for _, p := range groupByPair(window) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("recovery interrupted: %w", err)
		}

		profile, ok := profiles[p.key]
		if !ok {
			warning := &domain.UnmatchedPairWarning{Key: p.key}
			if e.cfg.UnmatchedPairs != PolicyClassify {
				report.DroppedPairs = append(report.DroppedPairs, p.key)
				e.log.Warn().
					Err(warning).
					Str("store", p.key.Store).
					Str("product", p.key.Product).
					Int("rows", len(p.rows)).
					Msg("pair dropped from incremental window")
				continue
			}

			label := domain.DistributionLabel{PairKey: p.key, IsPoissonLike: e.classifier.Label(p.rows)}
			lag := domain.LagProfile{PairKey: p.key, MedianLagDays: e.cfg.DefaultLagDays}
			profile = domain.NewPairProfile(label, lag)
			profile.ComputedAt = computedAt
			result.Profiles = append(result.Profiles, profile)
			report.DefaultLagPairs++
			e.log.Warn().
				Err(warning).
				Str("store", p.key.Store).
				Str("product", p.key.Product).
				Bool("is_poisson_like", label.IsPoissonLike).
				Float64("median_lag_days", lag.MedianLagDays).
				Msg("pair classified from incremental window")
		}

		report.Pairs++
		if profile.IsPoissonLike {
			report.PoissonPairs++
		} else {
			report.NonPoissonPairs++
		}
		for i := range p.rows {
			p.rows[i].IsPoissonLike = profile.IsPoissonLike
			p.rows[i].MedianLagDays = profile.MedianLagDays
		}
		result.Rows = append(result.Rows, p.rows...)
	}

	report.Rows = len(result.Rows)
	sortCorrected(result.Rows)

	e.log.Info().
		Int("pairs", report.Pairs).
		Int("rows", report.Rows).
		Int("dropped_pairs", len(report.DroppedPairs)).
		Msg("incremental sales recovery completed")

	return result, nil
}

// sortCorrected orders rows by date, store and product.
func sortCorrected(rows []domain.CorrectedObservation) {
	slices.SortFunc(rows, func(a, b domain.CorrectedObservation) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		if c := strings.Compare(a.Store, b.Store); c != 0 {
			return c
		}
		return strings.Compare(a.Product, b.Product)
	})
}
