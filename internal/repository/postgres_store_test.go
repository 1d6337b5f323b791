package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"PriceSentinel/internal/domain/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresStoreInitCreatesSchema(t *testing.T) {
	s, mock := newMockPostgres(t)
	for range postgresSchema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAppendObservation(t *testing.T) {
	s, mock := newMockPostgres(t)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO observations (symbol, price, timestamp) VALUES ($1, $2, $3) RETURNING id`)).
		WithArgs("BTCUSDT", 64000.5, ts).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	o, err := s.AppendObservation(context.Background(), "BTCUSDT", 64000.5, ts)
	require.NoError(t, err)
	assert.Equal(t, models.Observation{ID: 42, Symbol: "BTCUSDT", Price: 64000.5, Timestamp: ts}, o)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAppendObservationFailure(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery("INSERT INTO observations").WillReturnError(errors.New("connection refused"))

	_, err := s.AppendObservation(context.Background(), "BTCUSDT", 1, time.Now())
	var perr *models.PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "append_observation", perr.Op)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPostgresStoreAppendObservationRejectsBadPrice(t *testing.T) {
	s, mock := newMockPostgres(t)

	_, err := s.AppendObservation(context.Background(), "BTCUSDT", 0, time.Now())
	require.Error(t, err)
	// nothing reached the database
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAppendSignal(t *testing.T) {
	s, mock := newMockPostgres(t)
	ts := time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO signals`)).
		WithArgs("BTCUSDT", 130.0, 4.2, "Spike", ts).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	sig, err := s.AppendSignal(context.Background(), models.Signal{
		Symbol: "BTCUSDT", Price: 130, ZScore: 4.2, Kind: models.SignalSpike, Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), sig.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreTruncatesToMicroseconds(t *testing.T) {
	s, mock := newMockPostgres(t)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	want := time.Date(2024, 3, 1, 12, 0, 0, 123456000, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO observations`)).
		WithArgs("BTCUSDT", 100.0, want).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO signals`)).
		WithArgs("BTCUSDT", 130.0, 4.2, "Spike", want).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))

	o, err := s.AppendObservation(context.Background(), "BTCUSDT", 100, ts)
	require.NoError(t, err)
	assert.Equal(t, want, o.Timestamp)

	sig, err := s.AppendSignal(context.Background(), models.Signal{
		Symbol: "BTCUSDT", Price: 130, ZScore: 4.2, Kind: models.SignalSpike, Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, want, sig.Timestamp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRecentObservationsOldestFirst(t *testing.T) {
	s, mock := newMockPostgres(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "symbol", "price", "timestamp"}).
		AddRow(int64(3), "BTCUSDT", 103.0, base.Add(2*time.Second)).
		AddRow(int64(2), "BTCUSDT", 102.0, base.Add(time.Second))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM observations WHERE symbol = $1 ORDER BY id DESC LIMIT $2`)).
		WithArgs("BTCUSDT", 2).
		WillReturnRows(rows)

	got, err := s.RecentObservations(context.Background(), "BTCUSDT", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(3), got[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListObservations(t *testing.T) {
	s, mock := newMockPostgres(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, symbol, price, timestamp FROM observations\s+WHERE id > \$1`).
		WithArgs(int64(10), "BTCUSDT", 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "symbol", "price", "timestamp"}).
			AddRow(int64(11), "BTCUSDT", 1.0, base).
			AddRow(int64(12), "BTCUSDT", 2.0, base.Add(time.Second)))

	got, err := s.ListObservations(context.Background(), models.ObservationQuery{Symbol: "BTCUSDT", AfterID: 10, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(11), got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListSignals(t *testing.T) {
	s, mock := newMockPostgres(t)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, symbol, price, z_score, type, timestamp FROM signals`).
		WithArgs("", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "symbol", "price", "z_score", "type", "timestamp"}).
			AddRow(int64(5), "BTCUSDT", 90.0, -3.1, "Drop", ts))

	got, err := s.ListSignals(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.SignalDrop, got[0].Kind)
	assert.Equal(t, -3.1, got[0].ZScore)
	require.NoError(t, mock.ExpectationsWereMet())
}
