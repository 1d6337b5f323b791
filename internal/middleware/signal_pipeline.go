package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceSentinel/internal/domain/models"
	domrepo "PriceSentinel/internal/domain/repository"
	"PriceSentinel/pkg/logger"
	"PriceSentinel/pkg/metrics"
)

// ErrPipelineFull is returned by Enqueue when the buffer has no room.
var ErrPipelineFull = errors.New("signal pipeline full")

// SinkFunc delivers one signal downstream.
type SinkFunc func(ctx context.Context, sig models.Signal) error

type sink struct {
	name    string
	deliver SinkFunc
	retries int
}

// SignalPipeline decouples the ingestion loop from delivery. The loop hands
// signals over without blocking; one goroutine drains them into the sinks
// in order.
type SignalPipeline struct {
	sinks      []sink
	ch         chan models.Signal
	log        *logger.Logger
	metrics    domrepo.Metrics
	backoffMin time.Duration
	backoffMax time.Duration
}

type PipelineOption func(*SignalPipeline)

// WithBufferSize sets how many signals may wait for delivery.
func WithBufferSize(n int) PipelineOption {
	return func(p *SignalPipeline) {
		if n > 0 {
			p.ch = make(chan models.Signal, n)
		}
	}
}

// WithBackoff sets the retry backoff range for failing sinks.
func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *SignalPipeline) {
		if min > 0 {
			p.backoffMin = min
		}
		if max >= p.backoffMin {
			p.backoffMax = max
		}
	}
}

func NewSignalPipeline(l *logger.Logger, m domrepo.Metrics, opts ...PipelineOption) *SignalPipeline {
	if l == nil {
		l = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	p := &SignalPipeline{
		ch:         make(chan models.Signal, 256),
		log:        l.With(logger.String("component", "signal_pipeline")),
		metrics:    m,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddSink appends a sink. retries is how many extra attempts a failed delivery gets.
// Must be called before Run.
func (p *SignalPipeline) AddSink(name string, retries int, fn SinkFunc) {
	p.sinks = append(p.sinks, sink{name: name, deliver: fn, retries: retries})
}

// Enqueue never blocks.
func (p *SignalPipeline) Enqueue(sig models.Signal) error {
	if err := validateSignal(sig); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	select {
	case p.ch <- sig:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return ErrPipelineFull
	}
}

// Pending is the number of queued signals.
func (p *SignalPipeline) Pending() int {
	return len(p.ch)
}

// Run delivers queued signals until ctx is cancelled.
func (p *SignalPipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(p.ch); n > 0 {
				p.log.Warn("pipeline stopped with undelivered signals", logger.Int("pending", n))
			}
			return
		case sig := <-p.ch:
			p.dispatch(ctx, sig)
		}
	}
}

func (p *SignalPipeline) dispatch(ctx context.Context, sig models.Signal) {
	for _, s := range p.sinks {
		start := time.Now()
		if err := p.deliverWithRetry(ctx, s, sig); err != nil {
			p.metrics.RecordError("sink_" + s.name)
			p.log.Error("signal delivery failed",
				logger.String("sink", s.name),
				logger.String("symbol", sig.Symbol),
				logger.String("type", string(sig.Kind)),
				logger.Error(err))
			continue
		}
		p.metrics.RecordLatency("sink_"+s.name, time.Since(start).Seconds())
	}
}

func (p *SignalPipeline) deliverWithRetry(ctx context.Context, s sink, sig models.Signal) error {
	backoff := p.backoffMin
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
			case <-t.C:
			}
			backoff *= 2
			if backoff > p.backoffMax {
				backoff = p.backoffMax
			}
		}
		if err = safeDeliver(ctx, s.deliver, sig); err == nil {
			return nil
		}
	}
	return err
}

func safeDeliver(ctx context.Context, fn SinkFunc, sig models.Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return fn(ctx, sig)
}

func validateSignal(s models.Signal) error {
	if s.Symbol == "" {
		return fmt.Errorf("signal symbol empty")
	}
	if _, err := models.ParseSignalKind(string(s.Kind)); err != nil {
		return err
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("signal timestamp zero")
	}
	return nil
}
