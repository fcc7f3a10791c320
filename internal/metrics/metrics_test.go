package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/andresuchdata/demand-recovery/internal/recovery"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_RunFinished(t *testing.T) {
	r := NewRecorder()
	done := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

	r.RunFinished(domain.RecoveryRun{Mode: domain.RunModeFirst, Status: domain.RunStatusCompleted, CompletedAt: &done}, 90*time.Second)
	r.RunFinished(domain.RecoveryRun{Mode: domain.RunModeFirst, Status: domain.RunStatusFailed, CompletedAt: &done}, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("first", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("first", "failed")))
	assert.Equal(t, float64(done.Unix()), testutil.ToFloat64(r.LastSuccess.WithLabelValues("first")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.RunDuration))
}

func TestRecorder_ReportObserved(t *testing.T) {
	r := NewRecorder()
	report := recovery.Report{
		Pairs:           10,
		ImputedDays:     42,
		SimulatedOrders: 130,
		SkippedPairs:    []domain.PairKey{{Store: "S1", Product: "P1"}},
		DroppedPairs:    []domain.PairKey{{Store: "S2", Product: "P2"}, {Store: "S3", Product: "P3"}},
	}

	r.ReportObserved(domain.RunModeNext, report)

	assert.Equal(t, 9.0, testutil.ToFloat64(r.Pairs.WithLabelValues("next", "recovered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Pairs.WithLabelValues("next", "skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Pairs.WithLabelValues("next", "dropped")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.ImputedDays.WithLabelValues("next")))
	assert.Equal(t, 130.0, testutil.ToFloat64(r.SimulatedUnits.WithLabelValues("next")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RunFinished(domain.RecoveryRun{Mode: domain.RunModeFirst}, time.Second)
		r.ReportObserved(domain.RunModeFirst, recovery.Report{})
		r.RetryObserved("save pair profiles")
	})
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RetryObserved("save recovered rows")

	path := filepath.Join(t.TempDir(), "recovery.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `demand_recovery_persist_retries_total{step="save recovered rows"} 1`)
}
