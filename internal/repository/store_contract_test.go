package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every ObservationStore backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) repository.ObservationStore) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("append then recent round-trips", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		for i := 0; i < 3; i++ {
			_, err := s.AppendObservation(ctx, "BTCUSDT", 100+float64(i), base.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
		}
		stored, err := s.AppendObservation(ctx, "BTCUSDT", 64123.45, base.Add(time.Minute))
		require.NoError(t, err)
		assert.Greater(t, stored.ID, int64(0))

		got, err := s.RecentObservations(ctx, "BTCUSDT", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		last := got[len(got)-1]
		assert.Equal(t, stored.ID, last.ID)
		assert.Equal(t, "BTCUSDT", last.Symbol)
		assert.Equal(t, 64123.45, last.Price)
		assert.True(t, base.Add(time.Minute).Equal(last.Timestamp))
		assert.Equal(t, 102.0, got[0].Price)
	})

	t.Run("sub-microsecond timestamps read back as returned", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		ts := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)

		stored, err := s.AppendObservation(ctx, "BTCUSDT", 101.5, ts)
		require.NoError(t, err)

		got, err := s.RecentObservations(ctx, "BTCUSDT", 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, stored.Timestamp.Equal(got[0].Timestamp), "stored %s, read %s", stored.Timestamp, got[0].Timestamp)
		assert.False(t, stored.Timestamp.After(ts))
		assert.Less(t, ts.Sub(stored.Timestamp), time.Microsecond)
	})

	t.Run("short history is not an error", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		_, err := s.AppendObservation(ctx, "ETHUSDT", 3000, base)
		require.NoError(t, err)

		got, err := s.RecentObservations(ctx, "ETHUSDT", 20)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		none, err := s.RecentObservations(ctx, "SOLUSDT", 20)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("ids are increasing and symbols are isolated", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		a, err := s.AppendObservation(ctx, "BTCUSDT", 1, base)
		require.NoError(t, err)
		b, err := s.AppendObservation(ctx, "ETHUSDT", 2, base.Add(time.Second))
		require.NoError(t, err)
		c, err := s.AppendObservation(ctx, "BTCUSDT", 3, base.Add(2*time.Second))
		require.NoError(t, err)
		assert.Less(t, a.ID, b.ID)
		assert.Less(t, b.ID, c.ID)

		btc, err := s.RecentObservations(ctx, "BTCUSDT", 10)
		require.NoError(t, err)
		require.Len(t, btc, 2)
		assert.Equal(t, []float64{1, 3}, []float64{btc[0].Price, btc[1].Price})
	})

	t.Run("list observations pages by id", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for i := 0; i < 5; i++ {
			_, err := s.AppendObservation(ctx, "BTCUSDT", float64(10+i), base.Add(time.Duration(i)*time.Second))
			require.NoError(t, err)
		}

		var seen []float64
		var after int64
		for {
			page, err := s.ListObservations(ctx, models.ObservationQuery{Symbol: "BTCUSDT", AfterID: after, Limit: 2})
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			for _, o := range page {
				seen = append(seen, o.Price)
			}
			after = page[len(page)-1].ID
		}
		assert.Equal(t, []float64{10, 11, 12, 13, 14}, seen)
	})

	t.Run("signals are listed newest first", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for i, kind := range []models.SignalKind{models.SignalSpike, models.SignalDrop, models.SignalSpike} {
			_, err := s.AppendSignal(ctx, models.Signal{
				Symbol:    "BTCUSDT",
				Price:     float64(100 + i),
				ZScore:    2.5,
				Kind:      kind,
				Timestamp: base.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}

		got, err := s.ListSignals(ctx, "BTCUSDT", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 102.0, got[0].Price)
		assert.Equal(t, models.SignalSpike, got[0].Kind)
		assert.Equal(t, models.SignalDrop, got[1].Kind)
		assert.Greater(t, got[0].ID, got[1].ID)
	})

	t.Run("rejects invalid rows", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.AppendObservation(ctx, "BTCUSDT", -1, base)
		var perr *models.PersistenceError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "append_observation", perr.Op)

		_, err = s.AppendSignal(ctx, models.Signal{Symbol: "BTCUSDT", Price: 1, Kind: "Sideways", Timestamp: base})
		require.True(t, errors.As(err, &perr))

		got, err := s.RecentObservations(ctx, "BTCUSDT", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) repository.ObservationStore {
		s := NewMemoryStore()
		require.NoError(t, s.Init(context.Background()))
		return s
	})
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) repository.ObservationStore {
		s, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		require.NoError(t, s.Init(context.Background()))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.AppendObservation(context.Background(), "BTCUSDT", 1, time.Now())
	assert.ErrorIs(t, err, errStoreClosed)
	_, err = s.ListSignals(context.Background(), "", 10)
	assert.ErrorIs(t, err, errStoreClosed)
	assert.Error(t, s.Health(context.Background()))
}
