package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.mu.Lock()
		if len(r.pending) > 0 {
			m := r.pending[0]
			r.pending = r.pending[1:]
			r.mu.Unlock()
			return m, nil
		}
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type flakyHandler struct {
	mu        sync.Mutex
	failures  map[string]int
	permanent map[string]bool
	calls     map[string]int
	handled   []string
}

func (h *flakyHandler) Topic() string { return "market.signals" }

func (h *flakyHandler) Handle(_ context.Context, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := string(data)
	if h.calls == nil {
		h.calls = map[string]int{}
	}
	h.calls[key]++
	if h.permanent[key] {
		return Permanent(errors.New("malformed"))
	}
	if h.failures[key] > 0 {
		h.failures[key]--
		return errors.New("transient")
	}
	h.handled = append(h.handled, key)
	return nil
}

func TestProducerPublishEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	reg := prometheus.NewRegistry()
	p := newProducer(w, "gzip", reg)

	require.NoError(t, p.Publish(context.Background(), "market.signals", []byte("BTCUSDT"), map[string]float64{"price": 1.5}))
	require.NoError(t, p.PublishMessage(context.Background(), "logs", "raw"))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "market.signals", w.msgs[0].Topic)
	assert.Equal(t, []byte("BTCUSDT"), w.msgs[0].Key)
	assert.JSONEq(t, `{"price":1.5}`, string(w.msgs[0].Value))
	assert.Nil(t, w.msgs[1].Key)
	assert.Equal(t, "raw", string(w.msgs[1].Value))

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.messages.WithLabelValues("market.signals", "gzip", "ok")))
}

func TestProducerPublishWrapsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newProducer(w, "gzip", nil)

	err := p.Publish(context.Background(), "market.signals", nil, []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{
		{Offset: 1, Value: []byte("a")},
		{Offset: 2, Value: []byte("b")},
		{Offset: 3, Value: []byte("poison")},
	}}
	h := &flakyHandler{failures: map[string]int{"b": 1, "poison": 100}}

	cfg := &ConsumerConfig{RetryMax: 2, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}
	c := newConsumer(cfg, nil, func(string) messageReader { return reader })
	c.RegisterHandler(h)
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool {
		return len(reader.committedOffsets()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	assert.Equal(t, []int64{1, 2, 3}, reader.committedOffsets())
	h.mu.Lock()
	assert.Equal(t, []string{"a", "b"}, h.handled)
	h.mu.Unlock()
	assert.True(t, reader.closed)
}

func TestConsumerSkipsRetryForPermanentErrors(t *testing.T) {
	reader := &fakeReader{pending: []kafka.Message{
		{Offset: 1, Value: []byte("garbage")},
		{Offset: 2, Value: []byte("a")},
	}}
	dlq := &fakeWriter{}
	h := &flakyHandler{permanent: map[string]bool{"garbage": true}}

	cfg := &ConsumerConfig{RetryMax: 5, BackoffMin: time.Hour, BackoffMax: time.Hour, DLQTopic: "market.signals.dlq"}
	c := newConsumer(cfg, nil, func(string) messageReader { return reader })
	c.dlq = dlq
	c.RegisterHandler(h)
	require.NoError(t, c.Start())

	// an hour of backoff would stall the partition if the first message were retried
	require.Eventually(t, func() bool {
		return len(reader.committedOffsets()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	h.mu.Lock()
	assert.Equal(t, 1, h.calls["garbage"])
	assert.Equal(t, []string{"a"}, h.handled)
	h.mu.Unlock()

	dlq.mu.Lock()
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "market.signals.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, []byte("garbage"), dlq.msgs[0].Value)
	dlq.mu.Unlock()
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad json")
	err := fmt.Errorf("relay: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.NoError(t, Permanent(nil))
}

func TestConsumerStartWithoutHandlers(t *testing.T) {
	c := newConsumer(&ConsumerConfig{}, nil, nil)
	assert.Error(t, c.Start())
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 100*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}
