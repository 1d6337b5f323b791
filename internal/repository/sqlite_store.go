package repository

import (
	"context"
	"fmt"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/domain/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SQLiteStore implements ObservationStore with gorm on a SQLite file.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// one writer; also keeps a :memory: database alive across calls
	sqlDB.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&observationRow{}, &signalRow{}); err != nil {
		return models.NewPersistenceError("init", err)
	}
	return nil
}

func (s *SQLiteStore) AppendObservation(ctx context.Context, symbol string, price float64, ts time.Time) (models.Observation, error) {
	if err := validObservation(symbol, price, ts); err != nil {
		return models.Observation{}, models.NewPersistenceError("append_observation", err)
	}
	row := observationRow{Symbol: symbol, Price: price, Timestamp: ts.UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Observation{}, models.NewPersistenceError("append_observation", err)
	}
	return row.model(), nil
}

func (s *SQLiteStore) AppendSignal(ctx context.Context, sig models.Signal) (models.Signal, error) {
	if err := validSignal(sig); err != nil {
		return models.Signal{}, models.NewPersistenceError("append_signal", err)
	}
	row := signalRow{
		Symbol:    sig.Symbol,
		Price:     sig.Price,
		ZScore:    sig.ZScore,
		Type:      string(sig.Kind),
		Timestamp: sig.Timestamp.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Signal{}, models.NewPersistenceError("append_signal", err)
	}
	return row.model(), nil
}

func (s *SQLiteStore) RecentObservations(ctx context.Context, symbol string, count int) ([]models.Observation, error) {
	if count <= 0 {
		return nil, nil
	}
	var rows []observationRow
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("id DESC").
		Limit(count).
		Find(&rows).Error
	if err != nil {
		return nil, models.NewPersistenceError("recent_observations", err)
	}
	out := make([]models.Observation, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.model()
	}
	return out, nil
}

func (s *SQLiteStore) ListObservations(ctx context.Context, q models.ObservationQuery) ([]models.Observation, error) {
	tx := s.db.WithContext(ctx).Where("id > ?", q.AfterID)
	if q.Symbol != "" {
		tx = tx.Where("symbol = ?", q.Symbol)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var rows []observationRow
	if err := tx.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, models.NewPersistenceError("list_observations", err)
	}
	out := make([]models.Observation, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *SQLiteStore) ListSignals(ctx context.Context, symbol string, limit int) ([]models.Signal, error) {
	tx := s.db.WithContext(ctx)
	if symbol != "" {
		tx = tx.Where("symbol = ?", symbol)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var rows []signalRow
	if err := tx.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, models.NewPersistenceError("list_signals", err)
	}
	out := make([]models.Signal, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ repository.ObservationStore = (*SQLiteStore)(nil)
