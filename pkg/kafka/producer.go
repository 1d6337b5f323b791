package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer wraps a kafka-go writer.
type Producer struct {
	writer  messageWriter
	comp    string
	metrics *producerMetrics
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
		BatchSize:    100,
		BatchBytes:   1048576,
		BatchTimeout: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	bal := kafka.Balancer(&kafka.LeastBytes{})
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
	}
	return newProducer(writer, cfg.Compression, cfg.Registerer), nil
}

func newProducer(w messageWriter, comp string, reg prometheus.Registerer) *Producer {
	p := &Producer{writer: w, comp: comp}
	if reg != nil {
		p.metrics = newProducerMetrics(reg)
	}
	return p
}

// Publish sends one message. []byte and string values are sent as is, anything else as JSON.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	start := time.Now()
	v, err := encodeValue(value)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: v,
		Time:  time.Now(),
	})
	p.metrics.observe(topic, p.comp, len(v), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

// PublishMessage publishes without a key; used by the log collector.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Publish(ctx, topic, nil, payload)
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

func encodeValue(value interface{}) ([]byte, error) {
	switch val := value.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal value: %w", err)
		}
		return b, nil
	}
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

type producerMetrics struct {
	messages *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newProducerMetrics(reg prometheus.Registerer) *producerMetrics {
	f := promauto.With(reg)
	return &producerMetrics{
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricesentinel_kafka_producer_messages_total",
			Help: "Messages published to Kafka by result",
		}, []string{"topic", "compression", "result"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricesentinel_kafka_producer_bytes_total",
			Help: "Payload bytes published",
		}, []string{"topic", "compression"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricesentinel_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"}),
	}
}

func (m *producerMetrics) observe(topic, comp string, bytes int, dur time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messages.WithLabelValues(topic, comp, result).Inc()
	m.bytes.WithLabelValues(topic, comp).Add(float64(bytes))
	m.latency.WithLabelValues(topic).Observe(dur.Seconds())
}
