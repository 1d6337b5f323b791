package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/repository"
	"PriceSentinel/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type page[T any] struct {
	Rows  []T   `json:"rows"`
	Total int64 `json:"total"`
}

func newMarketServer(t *testing.T) (*echo.Echo, *repository.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := store.AppendObservation(ctx, "BTCUSDT", 100+float64(i), ts.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	_, err := store.AppendSignal(ctx, models.Signal{Symbol: "BTCUSDT", Price: 104, ZScore: 2.5, Kind: models.SignalSpike, Timestamp: ts.Add(5 * time.Second)})
	require.NoError(t, err)

	e := echo.New()
	NewMarketHandler(nil, usecase.NewMarketQuery(store, nil, 0, nil, nil)).RegisterRoutes(e)
	return e, store
}

func get(e *echo.Echo, target string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestPricesEndpoint(t *testing.T) {
	e, _ := newMarketServer(t)

	rec, env := get(e, "/api/prices?symbol=BTCUSDT&after_id=1&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusOK, env.Status)

	var p page[models.PriceDTO]
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.Len(t, p.Rows, 2)
	assert.Equal(t, int64(2), p.Rows[0].ID)
	assert.Equal(t, 101.0, p.Rows[0].Price)
	assert.Equal(t, "2024-05-01T12:00:01Z", p.Rows[0].Timestamp)
}

func TestPricesEndpointDefaultsLimit(t *testing.T) {
	e, _ := newMarketServer(t)

	rec, env := get(e, "/api/prices")
	require.Equal(t, http.StatusOK, rec.Code)
	var p page[models.PriceDTO]
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Len(t, p.Rows, 5)
}

func TestPricesEndpointRejectsBadQuery(t *testing.T) {
	e, _ := newMarketServer(t)

	for _, target := range []string{
		"/api/prices?limit=99999",
		"/api/prices?limit=abc",
		"/api/prices?after_id=-1",
	} {
		rec, env := get(e, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, http.StatusBadRequest, env.Status, target)
	}
}

func TestSignalsEndpoint(t *testing.T) {
	e, _ := newMarketServer(t)

	rec, env := get(e, "/api/signals?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var p page[models.SignalDTO]
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.Len(t, p.Rows, 1)
	assert.Equal(t, "Spike", p.Rows[0].Type)
	assert.Equal(t, 2.5, p.Rows[0].ZScore)
}

func TestSignalsEndpointStoreFailure(t *testing.T) {
	e, store := newMarketServer(t)
	require.NoError(t, store.Close())

	rec, _ := get(e, "/api/signals")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "store closed")
}

func TestHealthEndpoint(t *testing.T) {
	e, store := newMarketServer(t)

	rec, _ := get(e, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, store.Close())
	rec, _ = get(e, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
