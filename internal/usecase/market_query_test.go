package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/repository"
	icache "PriceSentinel/internal/service/cache"
	"PriceSentinel/internal/service/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seededStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	ctx := context.Background()
	s := repository.NewMemoryStore()
	for i, p := range []float64{100, 101, 102} {
		_, err := s.AppendObservation(ctx, "BTCUSDT", p, t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	_, err := s.AppendObservation(ctx, "ETHUSDT", 3000, t0)
	require.NoError(t, err)
	for i, k := range []models.SignalKind{models.SignalSpike, models.SignalDrop} {
		_, err := s.AppendSignal(ctx, models.Signal{Symbol: "BTCUSDT", Price: 100, ZScore: 3, Kind: k, Timestamp: t0.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}
	return s
}

func TestMarketQueryPrices(t *testing.T) {
	q := NewMarketQuery(seededStore(t), nil, 0, nil, nil)

	got, err := q.Prices(context.Background(), models.ListPricesRequest{Symbol: "BTCUSDT", AfterID: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.PriceDTO{ID: 2, Symbol: "BTCUSDT", Price: 101, Timestamp: "2024-05-01T12:00:01Z"}, got[0])
	assert.Equal(t, int64(3), got[1].ID)
}

func TestMarketQuerySignalsNewestFirst(t *testing.T) {
	q := NewMarketQuery(seededStore(t), nil, 0, nil, nil)

	got, err := q.Signals(context.Background(), models.ListSignalsRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Drop", got[0].Type)
	assert.Equal(t, "Spike", got[1].Type)
}

func TestMarketQuerySignalsServedFromCache(t *testing.T) {
	store := seededStore(t)
	c := icache.NewTTLCache()
	q := NewMarketQuery(store, c, time.Minute, metrics.NewQueryMetrics(prometheus.NewRegistry()), nil)
	ctx := context.Background()
	req := models.ListSignalsRequest{Symbol: "BTCUSDT", Limit: 10}

	first, err := q.Signals(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	_, err = store.AppendSignal(ctx, models.Signal{Symbol: "BTCUSDT", Price: 90, ZScore: -3, Kind: models.SignalDrop, Timestamp: t0.Add(time.Minute)})
	require.NoError(t, err)

	second, err := q.Signals(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// a different limit is a different key
	third, err := q.Signals(ctx, models.ListSignalsRequest{Symbol: "BTCUSDT", Limit: 5})
	require.NoError(t, err)
	assert.Len(t, third, 3)
}

type brokenCache struct{}

func (brokenCache) GetBytes(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (brokenCache) SetBytes(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestMarketQueryCacheFailureFallsThrough(t *testing.T) {
	q := NewMarketQuery(seededStore(t), brokenCache{}, time.Minute, nil, nil)

	got, err := q.Signals(context.Background(), models.ListSignalsRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMarketQueryStoreFailure(t *testing.T) {
	s := seededStore(t)
	require.NoError(t, s.Close())
	q := NewMarketQuery(s, nil, 0, nil, nil)

	_, err := q.Prices(context.Background(), models.ListPricesRequest{Limit: 10})
	var pe *models.PersistenceError
	assert.ErrorAs(t, err, &pe)
	assert.Error(t, q.Health(context.Background()))
}
