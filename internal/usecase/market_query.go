package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PriceSentinel/internal/domain/models"
	domrepo "PriceSentinel/internal/domain/repository"
	icache "PriceSentinel/internal/service/cache"
	"PriceSentinel/internal/service/metrics"
	"PriceSentinel/pkg/logger"

	"github.com/samber/lo"
)

// MarketQuery serves the read API from the observation store. Signal
// listings go through a short-lived cache when one is configured.
type MarketQuery struct {
	store   domrepo.ObservationStore
	cache   icache.BytesCache
	ttl     time.Duration
	metrics *metrics.QueryMetrics
	log     *logger.Logger
}

func NewMarketQuery(store domrepo.ObservationStore, c icache.BytesCache, ttl time.Duration, m *metrics.QueryMetrics, l *logger.Logger) *MarketQuery {
	if l == nil {
		l = logger.Nop()
	}
	return &MarketQuery{store: store, cache: c, ttl: ttl, metrics: m, log: l.With(logger.String("component", "query"))}
}

// Prices pages observations oldest first, starting after req.AfterID.
func (q *MarketQuery) Prices(ctx context.Context, req models.ListPricesRequest) ([]models.PriceDTO, error) {
	defer q.metrics.ObserveLatency("prices", time.Now())

	rows, err := q.store.ListObservations(ctx, models.ObservationQuery{
		Symbol:  req.Symbol,
		AfterID: req.AfterID,
		Limit:   req.Limit,
	})
	if err != nil {
		q.metrics.IncError("prices")
		return nil, err
	}
	return lo.Map(rows, func(o models.Observation, _ int) models.PriceDTO {
		return toPriceDTO(o)
	}), nil
}

// Signals lists the newest signals first.
func (q *MarketQuery) Signals(ctx context.Context, req models.ListSignalsRequest) ([]models.SignalDTO, error) {
	defer q.metrics.ObserveLatency("signals", time.Now())

	key := fmt.Sprintf("signals:%s:%d", req.Symbol, req.Limit)
	if out, ok := q.cached(ctx, key); ok {
		return out, nil
	}

	rows, err := q.store.ListSignals(ctx, req.Symbol, req.Limit)
	if err != nil {
		q.metrics.IncError("signals")
		return nil, err
	}
	out := lo.Map(rows, func(s models.Signal, _ int) models.SignalDTO {
		return toSignalDTO(s)
	})

	if q.cache != nil && q.ttl > 0 {
		if b, err := json.Marshal(out); err == nil {
			if err := q.cache.SetBytes(ctx, key, b, q.ttl); err != nil {
				q.log.Warn("cache set failed", logger.String("key", key), logger.Error(err))
			}
		}
	}
	return out, nil
}

// cached returns a hit only; cache failures fall through to the store.
func (q *MarketQuery) cached(ctx context.Context, key string) ([]models.SignalDTO, bool) {
	if q.cache == nil || q.ttl <= 0 {
		return nil, false
	}
	b, ok, err := q.cache.GetBytes(ctx, key)
	if err != nil {
		q.log.Warn("cache get failed", logger.String("key", key), logger.Error(err))
		return nil, false
	}
	q.metrics.CacheLookup("signals", ok)
	if !ok {
		return nil, false
	}
	var out []models.SignalDTO
	if err := json.Unmarshal(b, &out); err != nil {
		q.log.Warn("cache entry unreadable", logger.String("key", key), logger.Error(err))
		return nil, false
	}
	return out, true
}

// Health reports whether the store answers.
func (q *MarketQuery) Health(ctx context.Context) error {
	return q.store.Health(ctx)
}

func toPriceDTO(o models.Observation) models.PriceDTO {
	return models.PriceDTO{
		ID:        o.ID,
		Symbol:    o.Symbol,
		Price:     o.Price,
		Timestamp: o.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func toSignalDTO(s models.Signal) models.SignalDTO {
	return models.SignalDTO{
		ID:        s.ID,
		Symbol:    s.Symbol,
		Price:     s.Price,
		ZScore:    s.ZScore,
		Type:      string(s.Kind),
		Timestamp: s.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}
