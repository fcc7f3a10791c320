package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/andresuchdata/demand-recovery/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return Wrap(sqlx.NewDb(mockDB, "postgres"), 2), mock
}

var (
	jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

func TestObservationRepository_FetchObservations(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewObservationRepository(db)

	rows := sqlmock.NewRows([]string{"date", "store", "product", "sold", "stock", "received", "ordered"}).
		AddRow(jan1, "S1", "P1", 3, 10, 0, 5).
		AddRow(jan2, "S1", "P1", 0, 0, 0, 0)
	mock.ExpectQuery(`FROM demand_observations\s+WHERE date >= \$1 AND date <= \$2 AND store = ANY\(\$3::text\[\]\)\s+ORDER BY store, product, date`).
		WithArgs(jan1, jan2, sqlmock.AnyArg()).
		WillReturnRows(rows)

	got, err := repo.FetchObservations(context.Background(), domain.ObservationFilter{
		From:   jan1,
		To:     jan2,
		Stores: []string{"S1"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "P1", got[0].Product)
	assert.Equal(t, 5, got[0].Ordered)
	assert.True(t, got[1].Censored())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestObservationRepository_NoFilter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewObservationRepository(db)

	mock.ExpectQuery(`FROM demand_observations\s+ORDER BY`).
		WillReturnRows(sqlmock.NewRows([]string{"date", "store", "product"}))

	got, err := repo.FetchObservations(context.Background(), domain.ObservationFilter{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func corrected(date time.Time, store, product string) domain.CorrectedObservation {
	return domain.NewCorrectedObservation(domain.DemandObservation{Date: date, Store: store, Product: product, Sold: 1, Stock: 2})
}

func TestRecoveredRepository_SaveRecovered(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecoveredRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO recovered_observations")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.SaveRecovered(context.Background(), []domain.CorrectedObservation{
		corrected(jan1, "S1", "P1"),
		corrected(jan2, "S1", "P1"),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveredRepository_SaveRecoveredRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecoveredRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO recovered_observations")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.SaveRecovered(context.Background(), []domain.CorrectedObservation{corrected(jan1, "S1", "P1")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveredRepository_SaveRecoveredEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	require.NoError(t, NewRecoveredRepository(db).SaveRecovered(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoveredRepository_FetchTrailing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRecoveredRepository(db)

	rows := sqlmock.NewRows([]string{"date", "store", "product", "is_poisson_like", "median_lag_days"}).
		AddRow(jan2, "S1", "P1", true, 3.5)
	mock.ExpectQuery(`SELECT DISTINCT date FROM recovered_observations ORDER BY date DESC LIMIT \$1`).
		WithArgs(30).
		WillReturnRows(rows)

	got, err := repo.FetchTrailing(context.Background(), 30, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsPoissonLike)
	assert.Equal(t, 3.5, got[0].MedianLagDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepository_UpsertAndGet(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProfileRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pair_profiles")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	profile := domain.PairProfile{Store: "S1", Product: "P1", IsPoissonLike: true, MedianLagDays: 2, LagMatched: true, RunID: 9, ComputedAt: jan1}
	require.NoError(t, repo.UpsertProfiles(ctx, []domain.PairProfile{profile}))

	cols := []string{"store", "product", "is_poisson_like", "median_lag_days", "lag_matched", "run_id", "computed_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM pair_profiles WHERE (store, product) IN (SELECT * FROM unnest($1::text[], $2::text[]))")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("S1", "P1", true, 2.0, true, 9, jan1))

	key := domain.PairKey{Store: "S1", Product: "P1"}
	got, err := repo.GetProfiles(ctx, []domain.PairKey{key, {Store: "S2", Product: "P1"}})
	require.NoError(t, err)
	assert.Equal(t, map[domain.PairKey]domain.PairProfile{key: profile}, got)

	mock.ExpectQuery(regexp.QuoteMeta("FROM pair_profiles WHERE store = $1 AND product = $2")).
		WithArgs("S9", "P9").
		WillReturnRows(sqlmock.NewRows(cols))

	missing, err := repo.GetProfile(ctx, domain.PairKey{Store: "S9", Product: "P9"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRepository_Lifecycle(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	run := &domain.RecoveryRun{
		Mode:        domain.RunModeFirst,
		Status:      domain.RunStatusProcessing,
		WindowStart: jan1,
		WindowEnd:   jan2,
		StartedAt:   jan2,
	}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO recovery_runs")).
		WithArgs("first", "processing", jan1, jan2, jan2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	require.NoError(t, repo.CreateRun(ctx, run))
	assert.Equal(t, int64(7), run.ID)

	done := jan2.Add(time.Hour)
	run.Status = domain.RunStatusCompleted
	run.Pairs = 3
	run.Rows = 90
	run.CompletedAt = &done
	mock.ExpectExec(regexp.QuoteMeta("UPDATE recovery_runs")).
		WithArgs("completed", 3, 90, 0, 0, "", &done, "", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateRun(ctx, run))

	mock.ExpectQuery(regexp.QuoteMeta("FROM recovery_runs ORDER BY started_at DESC, id DESC LIMIT $1")).
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mode", "status", "pair_count", "row_count"}).
			AddRow(7, "first", "completed", 3, 90))
	runs, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.RunModeFirst, runs[0].Mode)
	assert.Equal(t, 90, runs[0].Rows)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_AppliesPendingFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_first.sql"), []byte("CREATE TABLE a (id INT);"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002_second.sql"), []byte("CREATE TABLE b (id INT);"), 0o644))

	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001_first.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id INT);")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations (version) VALUES ($1)")).
		WithArgs("002_second.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := Migrate(context.Background(), db, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
