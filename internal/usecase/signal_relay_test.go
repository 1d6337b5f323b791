package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/service/broadcast"
	pkgkafka "PriceSentinel/pkg/kafka"
	"PriceSentinel/pkg/logger"
	"PriceSentinel/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingBroadcaster struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *capturingBroadcaster) BroadcastPayload(_ context.Context, payload []byte) broadcast.Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return broadcast.Report{Attempted: 1, Delivered: 1}
}

func TestSignalRelayForwardsEvent(t *testing.T) {
	bc := &capturingBroadcaster{}
	h := NewSignalRelayHandler("market.signals", bc, nil, logger.Nop())
	assert.Equal(t, "market.signals", h.Topic())

	sig := models.Signal{
		Symbol:    "BTCUSDT",
		Price:     64210.5,
		ZScore:    -3.2,
		Kind:      models.SignalDrop,
		Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	in, err := models.NewSignalEvent(sig).Marshal()
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), in))
	require.Len(t, bc.payloads, 1)

	var got models.SignalEvent
	require.NoError(t, json.Unmarshal(bc.payloads[0], &got))
	assert.Equal(t, models.NewSignalEvent(sig), got)
}

func TestSignalRelayRejectsMalformedMessages(t *testing.T) {
	bc := &capturingBroadcaster{}
	reg := prometheus.NewRegistry()
	h := NewSignalRelayHandler("market.signals", bc, metrics.New(reg), nil)

	for name, msg := range map[string]string{
		"not json":      `{"symbol":`,
		"bad timestamp": `{"timestamp":"yesterday","symbol":"BTCUSDT","price":1,"z_score":3,"type":"Spike"}`,
		"bad type":      `{"timestamp":"2024-05-01T12:00:00Z","symbol":"BTCUSDT","price":1,"z_score":3,"type":"Up"}`,
		"no symbol":     `{"timestamp":"2024-05-01T12:00:00Z","symbol":"","price":1,"z_score":3,"type":"Spike"}`,
	} {
		t.Run(name, func(t *testing.T) {
			err := h.Handle(context.Background(), []byte(msg))
			require.Error(t, err)
			assert.True(t, pkgkafka.IsPermanent(err))
		})
	}
	assert.Empty(t, bc.payloads)

	n, err := testutil.GatherAndCount(reg, "pricesentinel_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
