// cmd/recovery/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresuchdata/demand-recovery/internal/config"
	"github.com/andresuchdata/demand-recovery/pkg/logger"
	"github.com/urfave/cli/v2"
)

func newLogLevelFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		EnvVars: []string{"LOG_LEVEL"},
	}
}

// windowFlags select the observations a run reads.
func windowFlags() []cli.Flag {
	return []cli.Flag{
		&cli.TimestampFlag{
			Name:   "from",
			Usage:  "First date of the window (YYYY-MM-DD)",
			Layout: dateLayout,
		},
		&cli.TimestampFlag{
			Name:   "to",
			Usage:  "Last date of the window (YYYY-MM-DD)",
			Layout: dateLayout,
		},
		&cli.StringSliceFlag{
			Name:    "store",
			Usage:   "Restrict the run to these stores (repeatable)",
			EnvVars: []string{"RECOVERY_STORES"},
		},
	}
}

// engineFlags override the recovery settings loaded from the environment.
func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Number of pairs processed in parallel",
		},
		&cli.Uint64Flag{
			Name:  "seed",
			Usage: "Seed of the Poisson sampler",
		},
		&cli.StringFlag{
			Name:    "metrics-file",
			Usage:   "Write Prometheus run metrics to this textfile",
			EnvVars: []string{"RECOVERY_METRICS_FILE"},
		},
	}
}

func main() {
	cfg := config.Load()

	app := &cli.App{
		Name:  "recovery",
		Usage: "Recover censored demand from store sales history",
		Flags: []cli.Flag{
			newLogLevelFlag(),
		},
		Before: func(c *cli.Context) error {
			level := cfg.Log.Level
			if c.IsSet("log-level") {
				level = c.String("log-level")
			}
			return logger.Init(logger.Options{Level: level, File: cfg.Log.File})
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply pending SQL migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dir",
						Usage:   "Directory containing migration files",
						Value:   "./scripts/migrations",
						EnvVars: []string{"MIGRATIONS_DIR"},
					},
				},
				Before: withDB(cfg),
				After:  closeDB,
				Action: runMigrations,
			},
			{
				Name:  "first",
				Usage: "Full recovery: relabel, impute and simulate every pair",
				Flags: append(append(windowFlags(), engineFlags()...),
					&cli.BoolFlag{
						Name:    "filter-active",
						Usage:   "Drop pairs with too few sales in the trailing year",
						EnvVars: []string{"RECOVERY_FILTER_ACTIVE"},
					},
				),
				Before: withDB(cfg),
				After:  closeDB,
				Action: runFirst,
			},
			{
				Name:  "next",
				Usage: "Incremental recovery of a new window with persisted profiles",
				Flags: append(append(windowFlags(), engineFlags()...),
					&cli.StringFlag{
						Name:  "policy",
						Usage: "What to do with pairs without a profile (drop, classify)",
					},
				),
				Before: withDB(cfg),
				After:  closeDB,
				Action: runNext,
			},
			{
				Name:  "runs",
				Usage: "List recent recovery runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to list",
						Value: 20,
					},
					&cli.Int64Flag{
						Name:  "id",
						Usage: "Show a single run",
					},
				},
				Before: withDB(cfg),
				After:  closeDB,
				Action: listRuns,
			},
			{
				Name:  "profile",
				Usage: "Show the persisted profile of a store-product pair",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "store", Required: true},
					&cli.StringFlag{Name: "product", Required: true},
				},
				Before: withDB(cfg),
				After:  closeDB,
				Action: showProfile,
			},
			{
				Name:  "reports",
				Usage: "List archived run reports, or print one with --key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Only list reports of this run mode (first, next)",
					},
					&cli.StringFlag{
						Name:  "key",
						Usage: "Object key of the report to print",
					},
				},
				Action: showReports(cfg),
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Log.Error().Err(err).Msg("recovery command failed")
		stop()
		os.Exit(1)
	}
}
