package repository

import (
	"time"

	"PriceSentinel/internal/domain/models"
)

// Row types shared by the SQL backends. db tags serve sqlx, gorm tags the SQLite store.

type observationRow struct {
	ID        int64     `db:"id" gorm:"primaryKey;autoIncrement"`
	Symbol    string    `db:"symbol" gorm:"not null;index"`
	Price     float64   `db:"price" gorm:"not null"`
	Timestamp time.Time `db:"timestamp" gorm:"not null"`
}

func (observationRow) TableName() string { return "observations" }

func (r observationRow) model() models.Observation {
	return models.Observation{ID: r.ID, Symbol: r.Symbol, Price: r.Price, Timestamp: r.Timestamp.UTC()}
}

type signalRow struct {
	ID        int64     `db:"id" gorm:"primaryKey;autoIncrement"`
	Symbol    string    `db:"symbol" gorm:"not null;index"`
	Price     float64   `db:"price" gorm:"not null"`
	ZScore    float64   `db:"z_score" gorm:"column:z_score;not null"`
	Type      string    `db:"type" gorm:"not null"`
	Timestamp time.Time `db:"timestamp" gorm:"not null"`
}

func (signalRow) TableName() string { return "signals" }

func (r signalRow) model() models.Signal {
	return models.Signal{
		ID:        r.ID,
		Symbol:    r.Symbol,
		Price:     r.Price,
		ZScore:    r.ZScore,
		Kind:      models.SignalKind(r.Type),
		Timestamp: r.Timestamp.UTC(),
	}
}
