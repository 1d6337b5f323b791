package repository

import (
	"context"
	"time"

	"PriceSentinel/internal/domain/models"
)

// ObservationStore is the append-only persistence for observations and signals.
// Every call is atomic on its own; failures are *models.PersistenceError.
type ObservationStore interface {
	Init(ctx context.Context) error // ensure tables
	AppendObservation(ctx context.Context, symbol string, price float64, ts time.Time) (models.Observation, error)
	AppendSignal(ctx context.Context, s models.Signal) (models.Signal, error)
	// RecentObservations returns up to count observations, oldest first.
	RecentObservations(ctx context.Context, symbol string, count int) ([]models.Observation, error)
	ListObservations(ctx context.Context, q models.ObservationQuery) ([]models.Observation, error)
	// ListSignals returns at most limit signals, newest first.
	ListSignals(ctx context.Context, symbol string, limit int) ([]models.Signal, error)
	Health(ctx context.Context) error
	Close() error
}

// PriceSource fetches the current price of a symbol. Failures are *models.FetchError.
type PriceSource interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
	Name() string
}

// SignalPublisher forwards detected signals to an external sink.
type SignalPublisher interface {
	PublishSignal(ctx context.Context, s models.Signal) error
	Close() error
}

type Metrics interface {
	RecordObservation(symbol string, price float64)
	RecordSignal(symbol string, kind models.SignalKind)
	RecordError(phase string)
	RecordLatency(op string, seconds float64)
	RecordDelivery(result string)
	SetSubscribers(n int)
}
