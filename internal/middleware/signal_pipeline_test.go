package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PriceSentinel/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	got      []models.Signal
	failures int
	calls    int
}

func (s *recordingSink) deliver(_ context.Context, sig models.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("downstream unavailable")
	}
	s.got = append(s.got, sig)
	return nil
}

func (s *recordingSink) delivered() []models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Signal(nil), s.got...)
}

func sig(price float64) models.Signal {
	return models.Signal{Symbol: "BTCUSDT", Price: price, ZScore: 3, Kind: models.SignalSpike, Timestamp: time.Unix(1700000000, 0).UTC()}
}

func TestPipelineDeliversInOrderToAllSinks(t *testing.T) {
	p := NewSignalPipeline(nil, nil, WithBackoff(time.Millisecond, 2*time.Millisecond))
	first, second := &recordingSink{}, &recordingSink{failures: 2}
	p.AddSink("broadcast", 0, first.deliver)
	p.AddSink("kafka", 3, second.deliver)

	for i := 1; i <= 3; i++ {
		require.NoError(t, p.Enqueue(sig(float64(i))))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(second.delivered()) == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	prices := func(s []models.Signal) []float64 {
		out := make([]float64, len(s))
		for i, v := range s {
			out[i] = v.Price
		}
		return out
	}
	assert.Equal(t, []float64{1, 2, 3}, prices(first.delivered()))
	assert.Equal(t, []float64{1, 2, 3}, prices(second.delivered()))
}

func TestPipelineGivesUpAfterRetries(t *testing.T) {
	p := NewSignalPipeline(nil, nil, WithBackoff(time.Millisecond, time.Millisecond))
	broken := &recordingSink{failures: 100}
	after := &recordingSink{}
	p.AddSink("kafka", 2, broken.deliver)
	p.AddSink("audit", 0, after.deliver)

	p.dispatch(context.Background(), sig(1))

	assert.Equal(t, 3, broken.calls)
	assert.Len(t, after.delivered(), 1)
}

func TestPipelineEnqueueNeverBlocks(t *testing.T) {
	p := NewSignalPipeline(nil, nil, WithBufferSize(1))
	require.NoError(t, p.Enqueue(sig(1)))
	assert.ErrorIs(t, p.Enqueue(sig(2)), ErrPipelineFull)
	assert.Equal(t, 1, p.Pending())
}

func TestPipelineRejectsInvalidSignals(t *testing.T) {
	p := NewSignalPipeline(nil, nil)
	assert.Error(t, p.Enqueue(models.Signal{Kind: models.SignalDrop, Timestamp: time.Now()}))
	assert.Error(t, p.Enqueue(models.Signal{Symbol: "BTCUSDT", Kind: "Flat", Timestamp: time.Now()}))
	assert.Equal(t, 0, p.Pending())
}

func TestPipelineRecoversSinkPanic(t *testing.T) {
	p := NewSignalPipeline(nil, nil)
	ok := &recordingSink{}
	p.AddSink("bad", 0, func(context.Context, models.Signal) error { panic("nil map") })
	p.AddSink("good", 0, ok.deliver)

	assert.NotPanics(t, func() { p.dispatch(context.Background(), sig(1)) })
	assert.Len(t, ok.delivered(), 1)
}
