package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/domain/repository"
)

var errStoreClosed = errors.New("store closed")

// MemoryStore keeps everything in process. Used by tests and the "memory" backend.
type MemoryStore struct {
	mu           sync.RWMutex
	observations []models.Observation
	signals      []models.Signal
	closed       bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(ctx context.Context) error { return nil }

func (s *MemoryStore) AppendObservation(ctx context.Context, symbol string, price float64, ts time.Time) (models.Observation, error) {
	if err := validObservation(symbol, price, ts); err != nil {
		return models.Observation{}, models.NewPersistenceError("append_observation", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.Observation{}, models.NewPersistenceError("append_observation", errStoreClosed)
	}
	o := models.Observation{
		ID:        int64(len(s.observations) + 1),
		Symbol:    symbol,
		Price:     price,
		Timestamp: ts.UTC(),
	}
	s.observations = append(s.observations, o)
	return o, nil
}

func (s *MemoryStore) AppendSignal(ctx context.Context, sig models.Signal) (models.Signal, error) {
	if err := validSignal(sig); err != nil {
		return models.Signal{}, models.NewPersistenceError("append_signal", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.Signal{}, models.NewPersistenceError("append_signal", errStoreClosed)
	}
	sig.ID = int64(len(s.signals) + 1)
	sig.Timestamp = sig.Timestamp.UTC()
	s.signals = append(s.signals, sig)
	return sig, nil
}

func (s *MemoryStore) RecentObservations(ctx context.Context, symbol string, count int) ([]models.Observation, error) {
	if count <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, models.NewPersistenceError("recent_observations", errStoreClosed)
	}
	out := make([]models.Observation, 0, count)
	for i := len(s.observations) - 1; i >= 0 && len(out) < count; i-- {
		if s.observations[i].Symbol == symbol {
			out = append(out, s.observations[i])
		}
	}
	reverse(out)
	return out, nil
}

func (s *MemoryStore) ListObservations(ctx context.Context, q models.ObservationQuery) ([]models.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, models.NewPersistenceError("list_observations", errStoreClosed)
	}
	var out []models.Observation
	for _, o := range s.observations {
		if o.ID <= q.AfterID || (q.Symbol != "" && o.Symbol != q.Symbol) {
			continue
		}
		out = append(out, o)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListSignals(ctx context.Context, symbol string, limit int) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, models.NewPersistenceError("list_signals", errStoreClosed)
	}
	var out []models.Signal
	for i := len(s.signals) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if symbol == "" || s.signals[i].Symbol == symbol {
			out = append(out, s.signals[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) Health(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var _ repository.ObservationStore = (*MemoryStore)(nil)
