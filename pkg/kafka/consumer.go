package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"PriceSentinel/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that retrying cannot fix. The message goes
// straight to the DLQ and is committed.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	RetryMax   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	DLQTopic   string
	MinBytes   int
	MaxBytes   int
}

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.GroupID = groupID
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ routes messages that exhausted their retries to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic per registered handler. Messages of a topic are
// handled one at a time so per-partition order is preserved.
type Consumer struct {
	cfg       *ConsumerConfig
	log       *logger.Logger
	handlers  map[string]MessageHandler
	readers   map[string]messageReader
	newReader func(topic string) messageReader
	dlq       messageWriter
	hook      ConsumerHook

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(log *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:    "default",
		RetryMax:   3,
		BackoffMin: 50 * time.Millisecond,
		BackoffMax: 2 * time.Second,
		MinBytes:   1,
		MaxBytes:   10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := newConsumer(cfg, log, func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	})
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

func newConsumer(cfg *ConsumerConfig, log *logger.Logger, newReader func(string) messageReader) *Consumer {
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{
		cfg:       cfg,
		log:       log.With(logger.String("component", "kafka_consumer")),
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]messageReader),
		newReader: newReader,
		hook:      NoopHook{},
	}
}

// RegisterHandler must be called before Start. A second handler for the same topic is ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start launches one reader goroutine per registered topic.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for topic, handler := range c.handlers {
		reader := c.newReader(topic)
		c.readers[topic] = reader
		c.wg.Add(1)
		go c.consume(ctx, reader, handler)
		c.log.Info("consuming", logger.String("topic", topic), logger.String("group", c.cfg.GroupID))
	}
	return nil
}

// Stop cancels the readers and waits for in-flight handlers, bounded by ctx.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		stopErr = c.waitForWg(ctx)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("close dlq writer", logger.Error(err))
			}
		}
	})
	return stopErr
}

func (c *Consumer) waitForWg(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) consume(ctx context.Context, reader messageReader, handler MessageHandler) {
	defer c.wg.Done()
	topic := handler.Topic()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			if !sleepCtx(ctx, c.cfg.BackoffMin) {
				return
			}
			continue
		}

		if err := c.handle(ctx, handler, msg); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return
			}
			c.log.Error("message dropped",
				logger.String("topic", topic),
				logger.Int("partition", msg.Partition),
				logger.Int64("offset", msg.Offset),
				logger.Error(err))
			c.deadLetter(topic, msg)
		}
		// commit failures too; a poison message must not block the partition
		if err := c.commit(reader, msg); err != nil {
			c.log.Warn("commit offset", logger.String("topic", topic), logger.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) (err error) {
	topic := handler.Topic()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	for attempt := 1; ; attempt++ {
		hctx, hmsg, data, berr := c.hook.BeforeHandle(ctx, topic, msg, msg.Value)
		if berr != nil {
			c.hook.OnError(ctx, topic, msg, msg.Value, berr)
			return berr
		}
		err = handler.Handle(hctx, data)
		c.hook.AfterHandle(hctx, topic, hmsg, data, err)
		if err == nil || attempt > c.cfg.RetryMax || IsPermanent(err) {
			return err
		}
		c.hook.OnError(hctx, topic, hmsg, data, err)
		if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) deadLetter(topic string, msg kafka.Message) {
	if c.dlq == nil || c.cfg.DLQTopic == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(topic)}},
	})
	if err != nil {
		c.log.Warn("write dlq", logger.String("dlq_topic", c.cfg.DLQTopic), logger.Error(err))
	}
}

func (c *Consumer) commit(reader messageReader, msg kafka.Message) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return nil
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// up to 50% jitter
	return exp - time.Duration(rand.Int63n(int64(exp)/2+1))
}
