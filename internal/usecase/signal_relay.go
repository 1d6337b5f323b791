package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PriceSentinel/internal/domain/models"
	domrepo "PriceSentinel/internal/domain/repository"
	"PriceSentinel/internal/service/broadcast"
	pkgkafka "PriceSentinel/pkg/kafka"
	"PriceSentinel/pkg/logger"
	"PriceSentinel/pkg/metrics"
)

// PayloadBroadcaster pushes an encoded event to every live subscriber.
type PayloadBroadcaster interface {
	BroadcastPayload(ctx context.Context, payload []byte) broadcast.Report
}

// SignalRelayHandler fans signals published by an ingesting instance out to
// the subscribers of this one. It never republishes.
type SignalRelayHandler struct {
	topic       string
	broadcaster PayloadBroadcaster
	metrics     domrepo.Metrics
	log         *logger.Logger
}

func NewSignalRelayHandler(topic string, b PayloadBroadcaster, m domrepo.Metrics, l *logger.Logger) *SignalRelayHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &SignalRelayHandler{topic: topic, broadcaster: b, metrics: m, log: l.With(logger.String("component", "relay"))}
}

func (h *SignalRelayHandler) Topic() string { return h.topic }

// Handle decodes {timestamp, symbol, price, z_score, type}. Malformed events
// fail permanently so the consumer dead-letters them without retrying.
func (h *SignalRelayHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.SignalEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("relay_decode")
		return pkgkafka.Permanent(fmt.Errorf("decode signal event: %w", err))
	}
	sig, err := ev.Signal()
	if err != nil {
		h.metrics.RecordError("relay_decode")
		return pkgkafka.Permanent(err)
	}

	// age from detection to relay, approx since clocks may differ
	h.metrics.RecordLatency("relay_lag", time.Since(sig.Timestamp).Seconds())

	payload, err := models.NewSignalEvent(sig).Marshal()
	if err != nil {
		return err
	}
	rep := h.broadcaster.BroadcastPayload(ctx, payload)
	h.log.Debug("signal relayed",
		logger.String("symbol", sig.Symbol),
		logger.String("type", string(sig.Kind)),
		logger.Int("delivered", rep.Delivered),
		logger.Int("failed", len(rep.Failed)))
	return nil
}

var _ pkgkafka.MessageHandler = (*SignalRelayHandler)(nil)
