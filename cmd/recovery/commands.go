package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/cache"
	"github.com/andresuchdata/demand-recovery/internal/config"
	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/metrics"
	"github.com/andresuchdata/demand-recovery/internal/pipeline"
	"github.com/andresuchdata/demand-recovery/internal/recovery"
	"github.com/andresuchdata/demand-recovery/internal/repository/postgres"
	"github.com/andresuchdata/demand-recovery/internal/service"
	"github.com/andresuchdata/demand-recovery/internal/storage"
	"github.com/andresuchdata/demand-recovery/pkg/logger"
	"github.com/urfave/cli/v2"
)

const dateLayout = "2006-01-02"

type ctxKey string

const (
	dbKey  ctxKey = "db"
	cfgKey ctxKey = "config"
)

func withDB(cfg *config.Config) cli.BeforeFunc {
	return func(c *cli.Context) error {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.PingContext(c.Context); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}

		c.Context = context.WithValue(c.Context, dbKey, db)
		c.Context = context.WithValue(c.Context, cfgKey, cfg)
		return nil
	}
}

func closeDB(c *cli.Context) error {
	if db, ok := c.Context.Value(dbKey).(*postgres.DB); ok && db != nil {
		return db.Close()
	}
	return nil
}

func dbFrom(c *cli.Context) *postgres.DB {
	return c.Context.Value(dbKey).(*postgres.DB)
}

func configFrom(c *cli.Context) *config.Config {
	return c.Context.Value(cfgKey).(*config.Config)
}

func runMigrations(c *cli.Context) error {
	applied, err := postgres.Migrate(c.Context, dbFrom(c), c.String("dir"))
	if err != nil {
		return err
	}
	logger.Log.Info().Int("applied", applied).Str("dir", c.String("dir")).Msg("migrations applied")
	return nil
}

func runFirst(c *cli.Context) error {
	orch, recorder, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	out, err := orch.RunFirst(c.Context, windowFilter(c))
	writeMetrics(c, recorder)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runNext(c *cli.Context) error {
	orch, recorder, err := newOrchestrator(c)
	if err != nil {
		return err
	}
	out, err := orch.RunNext(c.Context, windowFilter(c))
	writeMetrics(c, recorder)
	if pipeline.IsNoObservations(err) {
		logger.Log.Warn().Msg("nothing to recover in the selected window")
		return nil
	}
	if err != nil {
		return err
	}
	return printJSON(out)
}

func listRuns(c *cli.Context) error {
	runs := postgres.NewRunRepository(dbFrom(c))

	if id := c.Int64("id"); id > 0 {
		run, err := runs.GetRun(c.Context, id)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run %d not found", id)
		}
		return printJSON(run)
	}

	list, err := runs.ListRuns(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(list)
}

func showProfile(c *cli.Context) error {
	profiles, err := newProfileService(c)
	if err != nil {
		return err
	}

	key := domain.PairKey{Store: c.String("store"), Product: c.String("product")}
	p, err := profiles.GetProfile(c.Context, key)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("no profile for %s", key)
	}
	return printJSON(p)
}

func showReports(cfg *config.Config) cli.ActionFunc {
	return func(c *cli.Context) error {
		if !cfg.Storage.Enabled {
			return fmt.Errorf("report storage is disabled, set STORAGE_ENABLED=true")
		}
		archive, err := newArchive(c, cfg.Storage)
		if err != nil {
			return err
		}

		if key := c.String("key"); key != "" {
			var report recovery.Report
			doc, err := archive.Load(c.Context, key, &report)
			if err != nil {
				return err
			}
			return printJSON(pipeline.Outcome{Run: doc.Run, Report: report})
		}

		var mode domain.RunMode
		if name := c.String("mode"); name != "" {
			m, ok := domain.ParseRunMode(name)
			if !ok {
				return fmt.Errorf("unknown run mode %q", name)
			}
			mode = m
		}
		keys, err := archive.List(c.Context, mode)
		if err != nil {
			return err
		}
		return printJSON(keys)
	}
}

func newProfileService(c *cli.Context) (*service.ProfileService, error) {
	cfg := configFrom(c)
	profileCache, err := cache.NewProfileCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize profile cache: %w", err)
	}
	return service.NewProfileService(postgres.NewProfileRepository(dbFrom(c)), profileCache), nil
}

func newArchive(c *cli.Context, cfg config.StorageConfig) (*storage.ReportArchive, error) {
	client, err := storage.NewMinioClient(c.Context, cfg)
	if err != nil {
		return nil, err
	}
	return storage.NewReportArchive(client, cfg.Prefix), nil
}

func newOrchestrator(c *cli.Context) (*pipeline.Orchestrator, *metrics.Recorder, error) {
	cfg := configFrom(c)
	db := dbFrom(c)

	engineCfg := cfg.Recovery.EngineConfig()
	if c.IsSet("workers") {
		engineCfg.Workers = c.Int("workers")
	}
	if c.IsSet("seed") {
		engineCfg.Seed = c.Uint64("seed")
	}
	if c.IsSet("policy") {
		engineCfg.UnmatchedPairs = recovery.UnmatchedPairPolicy(c.String("policy"))
	}

	engine, err := recovery.NewEngine(engineCfg, logger.Log)
	if err != nil {
		return nil, nil, err
	}

	profiles, err := newProfileService(c)
	if err != nil {
		return nil, nil, err
	}

	recorder := metrics.NewRecorder()
	deps := pipeline.Deps{
		Engine:       engine,
		Observations: postgres.NewObservationRepository(db),
		Recovered:    postgres.NewRecoveredRepository(db),
		Profiles:     profiles,
		Runs:         postgres.NewRunRepository(db),
		Metrics:      recorder,
	}
	if cfg.Storage.Enabled {
		archive, err := newArchive(c, cfg.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize report storage: %w", err)
		}
		deps.Archive = archive
	}

	runCfg := pipeline.DefaultRunConfig()
	runCfg.FilterActive = c.Bool("filter-active")
	runCfg.ActiveWindowDays = cfg.Recovery.ActiveWindowDays
	runCfg.MinTotalSales = cfg.Recovery.MinTotalSales
	runCfg.HistoryDays = cfg.Recovery.HistoryDays

	return pipeline.NewOrchestrator(deps, runCfg, logger.Log), recorder, nil
}

// writeMetrics dumps the run metrics for the node-exporter textfile collector.
// A write failure is logged and does not change the command's result.
func writeMetrics(c *cli.Context, recorder *metrics.Recorder) {
	path := c.String("metrics-file")
	if path == "" {
		return
	}
	if err := recorder.WriteTextfile(path); err != nil {
		logger.Log.Warn().Err(err).Str("path", path).Msg("could not write metrics file")
	}
}

func windowFilter(c *cli.Context) domain.ObservationFilter {
	var filter domain.ObservationFilter
	if from := c.Timestamp("from"); from != nil {
		filter.From = dateOf(*from)
	}
	if to := c.Timestamp("to"); to != nil {
		filter.To = dateOf(*to)
	}
	filter.Stores = c.StringSlice("store")
	return filter
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
