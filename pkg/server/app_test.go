package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/middleware"
	"PriceSentinel/internal/repository"
	"PriceSentinel/internal/service/broadcast"
	"PriceSentinel/internal/services/analytics"
	"PriceSentinel/internal/usecase"
	xhttp "PriceSentinel/pkg/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type steadySource struct{ calls atomic.Int64 }

func (s *steadySource) Name() string { return "steady" }

func (s *steadySource) FetchPrice(context.Context, string) (float64, error) {
	s.calls.Add(1)
	return 100, nil
}

func TestAppRunsUntilCancelled(t *testing.T) {
	store := repository.NewMemoryStore()
	reg := broadcast.NewRegistry(nil, nil, time.Second)
	pipe := middleware.NewSignalPipeline(nil, nil)
	loop := usecase.NewIngestionLoop(
		usecase.LoopConfig{Symbol: "BTCUSDT", Interval: 10 * time.Millisecond},
		&steadySource{}, store, analytics.NewZScoreEvaluator(20, 2), pipe, nil, nil,
	)
	promReg := prometheus.NewRegistry()
	srv := xhttp.NewServer(nil, nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithRegistry(promReg, promReg))

	app := New(Components{
		HTTP:            srv,
		Store:           store,
		Registry:        reg,
		Pipeline:        pipe,
		Loop:            loop,
		ShutdownTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		obs, err := store.RecentObservations(context.Background(), "BTCUSDT", 5)
		return err == nil && len(obs) >= 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}
	assert.Equal(t, usecase.StateStopped, loop.State())
}

type failingInitStore struct{ *repository.MemoryStore }

func (failingInitStore) Init(context.Context) error {
	return models.NewPersistenceError("init", assert.AnError)
}

func TestAppFailsWhenStoreInitFails(t *testing.T) {
	promReg := prometheus.NewRegistry()
	app := New(Components{
		HTTP:  xhttp.NewServer(nil, nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithRegistry(promReg, promReg)),
		Store: failingInitStore{repository.NewMemoryStore()},
	})

	err := app.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
