package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/domain/repository"
	"PriceSentinel/pkg/clickhouse"
)

// ClickHouse has no sequences; ids come from a process-local counter seeded from max(id).
var clickhouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		id Int64,
		symbol LowCardinality(String),
		price Float64,
		timestamp DateTime64(9, 'UTC')
	) ENGINE = MergeTree ORDER BY (symbol, id)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id Int64,
		symbol LowCardinality(String),
		price Float64,
		z_score Float64,
		type LowCardinality(String),
		timestamp DateTime64(9, 'UTC')
	) ENGINE = MergeTree ORDER BY (symbol, id)`,
}

// ClickHouseStore implements ObservationStore for ClickHouse.
type ClickHouseStore struct {
	client *clickhouse.Client
	db     *sql.DB
	obsSeq atomic.Int64
	sigSeq atomic.Int64
}

func NewClickHouseStore(client *clickhouse.Client) *ClickHouseStore {
	return &ClickHouseStore{client: client, db: client.DB()}
}

func (s *ClickHouseStore) Init(ctx context.Context) error {
	if err := s.client.InitSchema(ctx, clickhouseSchema); err != nil {
		return models.NewPersistenceError("init", err)
	}
	for table, seq := range map[string]*atomic.Int64{"observations": &s.obsSeq, "signals": &s.sigSeq} {
		var maxID int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT max(id) FROM %s", table)).Scan(&maxID); err != nil {
			return models.NewPersistenceError("init", fmt.Errorf("seed %s ids: %w", table, err))
		}
		seq.Store(maxID)
	}
	return nil
}

func (s *ClickHouseStore) AppendObservation(ctx context.Context, symbol string, price float64, ts time.Time) (models.Observation, error) {
	if err := validObservation(symbol, price, ts); err != nil {
		return models.Observation{}, models.NewPersistenceError("append_observation", err)
	}
	o := models.Observation{ID: s.obsSeq.Add(1), Symbol: symbol, Price: price, Timestamp: ts.UTC()}
	const q = "INSERT INTO observations (id, symbol, price, timestamp) VALUES (?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, q, o.ID, o.Symbol, o.Price, o.Timestamp); err != nil {
		return models.Observation{}, models.NewPersistenceError("append_observation", err)
	}
	return o, nil
}

func (s *ClickHouseStore) AppendSignal(ctx context.Context, sig models.Signal) (models.Signal, error) {
	if err := validSignal(sig); err != nil {
		return models.Signal{}, models.NewPersistenceError("append_signal", err)
	}
	sig.ID = s.sigSeq.Add(1)
	sig.Timestamp = sig.Timestamp.UTC()
	const q = "INSERT INTO signals (id, symbol, price, z_score, type, timestamp) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := s.db.ExecContext(ctx, q, sig.ID, sig.Symbol, sig.Price, sig.ZScore, string(sig.Kind), sig.Timestamp); err != nil {
		return models.Signal{}, models.NewPersistenceError("append_signal", err)
	}
	return sig, nil
}

func (s *ClickHouseStore) RecentObservations(ctx context.Context, symbol string, count int) ([]models.Observation, error) {
	if count <= 0 {
		return nil, nil
	}
	const q = "SELECT id, symbol, price, timestamp FROM observations WHERE symbol = ? ORDER BY id DESC LIMIT ?"
	out, err := s.queryObservations(ctx, q, symbol, count)
	if err != nil {
		return nil, models.NewPersistenceError("recent_observations", err)
	}
	reverse(out)
	return out, nil
}

func (s *ClickHouseStore) ListObservations(ctx context.Context, q models.ObservationQuery) ([]models.Observation, error) {
	stmt := "SELECT id, symbol, price, timestamp FROM observations WHERE id > ?"
	args := []interface{}{q.AfterID}
	if q.Symbol != "" {
		stmt += " AND symbol = ?"
		args = append(args, q.Symbol)
	}
	stmt += " ORDER BY id ASC"
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}
	out, err := s.queryObservations(ctx, stmt, args...)
	if err != nil {
		return nil, models.NewPersistenceError("list_observations", err)
	}
	return out, nil
}

func (s *ClickHouseStore) queryObservations(ctx context.Context, q string, args ...interface{}) ([]models.Observation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		var r observationRow
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Price, &r.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, r.model())
	}
	return out, rows.Err()
}

func (s *ClickHouseStore) ListSignals(ctx context.Context, symbol string, limit int) ([]models.Signal, error) {
	stmt := "SELECT id, symbol, price, z_score, type, timestamp FROM signals"
	var args []interface{}
	if symbol != "" {
		stmt += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	stmt += " ORDER BY id DESC"
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, models.NewPersistenceError("list_signals", err)
	}
	defer rows.Close()

	var out []models.Signal
	for rows.Next() {
		var r signalRow
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Price, &r.ZScore, &r.Type, &r.Timestamp); err != nil {
			return nil, models.NewPersistenceError("list_signals", err)
		}
		out = append(out, r.model())
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewPersistenceError("list_signals", err)
	}
	return out, nil
}

func (s *ClickHouseStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *ClickHouseStore) Close() error {
	return s.client.Close()
}

var _ repository.ObservationStore = (*ClickHouseStore)(nil)
