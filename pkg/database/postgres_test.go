package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admission-forecast/pkg/logging"
	"admission-forecast/pkg/metrics"
)

func newMockDB(t *testing.T) (*PostgresDB, sqlmock.Sqlmock, *metrics.Collector) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	logger := logging.NewStructuredLogger("test", "0", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	collector := metrics.NewCollector("test", prometheus.NewRegistry())

	pg := Wrap(sqlx.NewDb(db, "postgres"), nil, logger, collector)
	t.Cleanup(func() { db.Close() })
	return pg, mock, collector
}

func TestConfig_DSN(t *testing.T) {
	cfg := &Config{Host: "db", Port: 5432, User: "forecast", Password: "secret", Database: "admissions", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=forecast password=secret dbname=admissions sslmode=disable", cfg.DSN())

	cfg.URL = "postgres://forecast@db/admissions"
	assert.Equal(t, "postgres://forecast@db/admissions", cfg.DSN())
}

func TestPostgresDB_ExecContext(t *testing.T) {
	pg, mock, collector := newMockDB(t)

	mock.ExpectExec("DELETE FROM prediction_logs").WillReturnResult(sqlmock.NewResult(0, 3))
	res, err := pg.ExecContext(context.Background(), "purge", "DELETE FROM prediction_logs")
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Equal(t, int64(3), n)

	mock.ExpectExec("DELETE FROM prediction_logs").WillReturnError(errors.New("relation does not exist"))
	_, err = pg.ExecContext(context.Background(), "purge", "DELETE FROM prediction_logs")
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.DBErrorsTotal.WithLabelValues("exec_error")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDB_GetContextNoRowsIsNotAnError(t *testing.T) {
	pg, mock, collector := newMockDB(t)

	mock.ExpectQuery("SELECT id FROM prediction_logs").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	var id int64
	err := pg.GetContext(context.Background(), "get_id", &id, "SELECT id FROM prediction_logs WHERE id = $1", 9)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.DBErrorsTotal.WithLabelValues("get_error")))
}

func TestPostgresDB_HealthCheck(t *testing.T) {
	pg, mock, _ := newMockDB(t)

	mock.ExpectPing()
	assert.NoError(t, pg.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, pg.HealthCheck(context.Background()))
}

func TestPostgresDB_BeginTx(t *testing.T) {
	pg, mock, _ := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()
	tx, err := pg.BeginTx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
