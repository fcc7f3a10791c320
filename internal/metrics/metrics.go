// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/recovery"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the Prometheus metrics of recovery runs. Batch runs have no
// scrape endpoint, so the registry is written to a node-exporter textfile.
// A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	Runs           *prometheus.CounterVec
	RunDuration    *prometheus.HistogramVec
	LastSuccess    *prometheus.GaugeVec
	Pairs          *prometheus.CounterVec
	ImputedDays    *prometheus.CounterVec
	SimulatedUnits *prometheus.CounterVec
	PersistRetries *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demand_recovery_runs_total",
				Help: "Recovery runs by mode and final status",
			},
			[]string{"mode", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "demand_recovery_run_duration_seconds",
				Help:    "Wall time of recovery runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
			},
			[]string{"mode"},
		),
		LastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "demand_recovery_last_success_timestamp_seconds",
				Help: "Unix time of the last completed run",
			},
			[]string{"mode"},
		),
		Pairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demand_recovery_pairs_total",
				Help: "Store-product pairs by outcome",
			},
			[]string{"mode", "outcome"},
		),
		ImputedDays: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demand_recovery_imputed_days_total",
				Help: "Censored days replaced by an imputed sale",
			},
			[]string{"mode"},
		),
		SimulatedUnits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demand_recovery_simulated_order_units_total",
				Help: "Units ordered by the inventory simulation",
			},
			[]string{"mode"},
		),
		PersistRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demand_recovery_persist_retries_total",
				Help: "Retried persistence steps",
			},
			[]string{"step"},
		),
	}

	r.registry.MustRegister(
		r.Runs,
		r.RunDuration,
		r.LastSuccess,
		r.Pairs,
		r.ImputedDays,
		r.SimulatedUnits,
		r.PersistRetries,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RunFinished records the status and duration of a run.
func (r *Recorder) RunFinished(run domain.RecoveryRun, elapsed time.Duration) {
	if r == nil {
		return
	}
	mode := string(run.Mode)
	r.Runs.WithLabelValues(mode, string(run.Status)).Inc()
	r.RunDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if run.Status == domain.RunStatusCompleted && run.CompletedAt != nil {
		r.LastSuccess.WithLabelValues(mode).Set(float64(run.CompletedAt.Unix()))
	}
}

// ReportObserved adds the counts of a finished run's report.
func (r *Recorder) ReportObserved(mode domain.RunMode, report recovery.Report) {
	if r == nil {
		return
	}
	m := string(mode)
	skipped := len(report.SkippedPairs)
	r.Pairs.WithLabelValues(m, "recovered").Add(float64(report.Pairs - skipped))
	r.Pairs.WithLabelValues(m, "skipped").Add(float64(skipped))
	r.Pairs.WithLabelValues(m, "dropped").Add(float64(len(report.DroppedPairs)))
	r.ImputedDays.WithLabelValues(m).Add(float64(report.ImputedDays))
	r.SimulatedUnits.WithLabelValues(m).Add(float64(report.SimulatedOrders))
}

func (r *Recorder) RetryObserved(step string) {
	if r == nil {
		return
	}
	r.PersistRetries.WithLabelValues(step).Inc()
}

// WriteTextfile writes the registry in the text exposition format. The file
// is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
