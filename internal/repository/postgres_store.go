package repository

import (
	"context"
	"math"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/domain/repository"

	"github.com/jmoiron/sqlx"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL CHECK (price > 0),
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS observations_symbol_id_idx ON observations (symbol, id DESC)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id BIGSERIAL PRIMARY KEY,
		symbol TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		z_score DOUBLE PRECISION NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('Spike', 'Drop')),
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS signals_symbol_id_idx ON signals (symbol, id DESC)`,
}

// PostgresStore implements ObservationStore on Postgres through sqlx.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return models.NewPersistenceError("init", err)
		}
	}
	return nil
}

func (s *PostgresStore) AppendObservation(ctx context.Context, symbol string, price float64, ts time.Time) (models.Observation, error) {
	if err := validObservation(symbol, price, ts); err != nil {
		return models.Observation{}, models.NewPersistenceError("append_observation", err)
	}
	o := models.Observation{Symbol: symbol, Price: price, Timestamp: pgTime(ts)}
	const q = `INSERT INTO observations (symbol, price, timestamp) VALUES ($1, $2, $3) RETURNING id`
	if err := s.db.QueryRowxContext(ctx, q, o.Symbol, o.Price, o.Timestamp).Scan(&o.ID); err != nil {
		return models.Observation{}, models.NewPersistenceError("append_observation", err)
	}
	return o, nil
}

func (s *PostgresStore) AppendSignal(ctx context.Context, sig models.Signal) (models.Signal, error) {
	if err := validSignal(sig); err != nil {
		return models.Signal{}, models.NewPersistenceError("append_signal", err)
	}
	sig.Timestamp = pgTime(sig.Timestamp)
	const q = `INSERT INTO signals (symbol, price, z_score, type, timestamp) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := s.db.QueryRowxContext(ctx, q, sig.Symbol, sig.Price, sig.ZScore, string(sig.Kind), sig.Timestamp).Scan(&sig.ID); err != nil {
		return models.Signal{}, models.NewPersistenceError("append_signal", err)
	}
	return sig, nil
}

func (s *PostgresStore) RecentObservations(ctx context.Context, symbol string, count int) ([]models.Observation, error) {
	if count <= 0 {
		return nil, nil
	}
	var rows []observationRow
	const q = `SELECT id, symbol, price, timestamp FROM observations WHERE symbol = $1 ORDER BY id DESC LIMIT $2`
	if err := s.db.SelectContext(ctx, &rows, q, symbol, count); err != nil {
		return nil, models.NewPersistenceError("recent_observations", err)
	}
	out := make([]models.Observation, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.model()
	}
	return out, nil
}

func (s *PostgresStore) ListObservations(ctx context.Context, q models.ObservationQuery) ([]models.Observation, error) {
	var rows []observationRow
	const stmt = `SELECT id, symbol, price, timestamp FROM observations
		WHERE id > $1 AND ($2 = '' OR symbol = $2)
		ORDER BY id ASC LIMIT $3`
	if err := s.db.SelectContext(ctx, &rows, stmt, q.AfterID, q.Symbol, limitOrMax(q.Limit)); err != nil {
		return nil, models.NewPersistenceError("list_observations", err)
	}
	out := make([]models.Observation, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *PostgresStore) ListSignals(ctx context.Context, symbol string, limit int) ([]models.Signal, error) {
	var rows []signalRow
	const q = `SELECT id, symbol, price, z_score, type, timestamp FROM signals
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY id DESC LIMIT $2`
	if err := s.db.SelectContext(ctx, &rows, q, symbol, limitOrMax(limit)); err != nil {
		return nil, models.NewPersistenceError("list_signals", err)
	}
	out := make([]models.Signal, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// pgTime matches the microsecond resolution of TIMESTAMPTZ.
func pgTime(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Microsecond)
}

func limitOrMax(limit int) int {
	if limit <= 0 {
		return math.MaxInt32
	}
	return limit
}

var _ repository.ObservationStore = (*PostgresStore)(nil)
