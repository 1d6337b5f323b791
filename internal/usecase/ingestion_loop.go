package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"PriceSentinel/internal/domain/models"
	domrepo "PriceSentinel/internal/domain/repository"
	domsvc "PriceSentinel/internal/domain/service"
	"PriceSentinel/pkg/logger"
	"PriceSentinel/pkg/metrics"
)

const DefaultInterval = 5 * time.Second

// LoopState is the position of the ingestion loop within one cycle.
type LoopState int32

const (
	StateIdle LoopState = iota
	StateFetching
	StateStoring
	StateEvaluating
	StateSignaling
	StateSleeping
	StateStopped
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateStoring:
		return "storing"
	case StateEvaluating:
		return "evaluating"
	case StateSignaling:
		return "signaling"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SignalSink takes detected signals for delivery without blocking the loop.
type SignalSink interface {
	Enqueue(sig models.Signal) error
}

// cycle is the payload threaded through the states of one iteration.
type cycle struct {
	started     time.Time
	price       float64
	observation models.Observation
	evaluation  models.Evaluation
	signal      models.Signal
	err         error
}

// LoopConfig holds the loop's tunables.
type LoopConfig struct {
	Symbol   string
	Interval time.Duration
}

// IngestionLoop polls one symbol: fetch, store, evaluate, signal, sleep.
// A failure in any phase ends the cycle early; the loop keeps running.
type IngestionLoop struct {
	symbol    string
	interval  time.Duration
	source    domrepo.PriceSource
	store     domrepo.ObservationStore
	evaluator domsvc.AnomalyEvaluator
	sink      SignalSink
	metrics   domrepo.Metrics
	log       *logger.Logger
	now       func() time.Time

	state  atomic.Int32
	cycles atomic.Uint64
	lastTS time.Time
}

func NewIngestionLoop(
	cfg LoopConfig,
	source domrepo.PriceSource,
	store domrepo.ObservationStore,
	evaluator domsvc.AnomalyEvaluator,
	sink SignalSink,
	m domrepo.Metrics,
	l *logger.Logger,
) *IngestionLoop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &IngestionLoop{
		symbol:    cfg.Symbol,
		interval:  cfg.Interval,
		source:    source,
		store:     store,
		evaluator: evaluator,
		sink:      sink,
		metrics:   m,
		log:       l.With(logger.String("component", "ingest"), logger.String("symbol", cfg.Symbol)),
		now:       time.Now,
	}
}

// State reports the current state; safe to call from any goroutine.
func (l *IngestionLoop) State() LoopState {
	return LoopState(l.state.Load())
}

// Cycles is the number of completed cycles.
func (l *IngestionLoop) Cycles() uint64 {
	return l.cycles.Load()
}

// Run executes cycles until ctx is cancelled. The next cycle starts one
// interval after the previous one finished.
func (l *IngestionLoop) Run(ctx context.Context) error {
	l.log.Info("ingestion loop started",
		logger.String("source", l.source.Name()),
		logger.Duration("interval_ms", l.interval),
		logger.Int("window", l.evaluator.WindowSize()))

	l.resume(ctx)
	state, c := StateIdle, cycle{}
	for state != StateStopped {
		state, c = l.step(ctx, state, c)
	}
	l.setState(StateStopped)
	l.log.Info("ingestion loop stopped", logger.Uint64("cycles", l.Cycles()))
	return nil
}

// resume starts the timestamp clamp at the newest stored observation so a
// restart under an earlier wall clock keeps ids and timestamps in step.
func (l *IngestionLoop) resume(ctx context.Context) {
	last, err := l.store.RecentObservations(ctx, l.symbol, 1)
	if err != nil {
		l.log.Warn("could not read last observation", logger.Error(err))
		return
	}
	if len(last) > 0 && last[0].Timestamp.After(l.lastTS) {
		l.lastTS = last[0].Timestamp
	}
}

// RunOnce executes a single cycle without the trailing sleep.
func (l *IngestionLoop) RunOnce(ctx context.Context) (models.Evaluation, error) {
	state, c := StateIdle, cycle{}
	for state != StateSleeping && state != StateStopped {
		state, c = l.step(ctx, state, c)
	}
	l.setState(StateIdle)
	if state == StateStopped {
		return c.evaluation, ctx.Err()
	}
	return c.evaluation, c.err
}

func (l *IngestionLoop) setState(s LoopState) {
	l.state.Store(int32(s))
}

// step runs state s and returns the next state with the updated payload.
// Panics inside a phase are recovered and end the cycle like any other failure.
func (l *IngestionLoop) step(ctx context.Context, s LoopState, c cycle) (next LoopState, out cycle) {
	l.setState(s)
	if ctx.Err() != nil {
		return StateStopped, c
	}
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("panic in %s: %v", s, r)
			l.fail(s, c.err)
			next, out = StateSleeping, c
		}
	}()

	switch s {
	case StateIdle:
		return StateFetching, cycle{started: l.now()}
	case StateFetching:
		return l.fetch(ctx, c)
	case StateStoring:
		return l.storeObservation(ctx, c)
	case StateEvaluating:
		return l.evaluate(ctx, c)
	case StateSignaling:
		return l.emit(ctx, c)
	case StateSleeping:
		return l.sleep(ctx, c)
	default:
		return StateStopped, c
	}
}

func (l *IngestionLoop) fetch(ctx context.Context, c cycle) (LoopState, cycle) {
	start := time.Now()
	price, err := l.source.FetchPrice(ctx, l.symbol)
	l.metrics.RecordLatency("fetch", time.Since(start).Seconds())
	if err != nil {
		var fe *models.FetchError
		if !errors.As(err, &fe) {
			err = &models.FetchError{Symbol: l.symbol, Err: err}
		}
		return l.abort(ctx, StateFetching, c, err)
	}
	c.price = price
	return StateStoring, c
}

func (l *IngestionLoop) storeObservation(ctx context.Context, c cycle) (LoopState, cycle) {
	ts := l.now().UTC()
	// ids and timestamps must agree on order even if the wall clock steps back
	if ts.Before(l.lastTS) {
		ts = l.lastTS
	}
	obs, err := l.store.AppendObservation(ctx, l.symbol, c.price, ts)
	if err != nil {
		return l.abort(ctx, StateStoring, c, err)
	}
	l.lastTS = obs.Timestamp
	c.observation = obs
	l.metrics.RecordObservation(l.symbol, obs.Price)
	l.log.Debug("observation stored", logger.Int64("id", obs.ID), logger.Float64("price", obs.Price))
	return StateEvaluating, c
}

func (l *IngestionLoop) evaluate(ctx context.Context, c cycle) (LoopState, cycle) {
	window, err := l.store.RecentObservations(ctx, l.symbol, l.evaluator.WindowSize())
	if err != nil {
		return l.abort(ctx, StateEvaluating, c, err)
	}
	c.evaluation = l.evaluator.Evaluate(window)

	switch c.evaluation.Outcome {
	case models.OutcomeAnomaly:
		return StateSignaling, c
	case models.OutcomeInsufficientData:
		l.log.Debug("not enough observations", logger.Int("have", c.evaluation.Size), logger.Int("need", l.evaluator.WindowSize()))
	case models.OutcomeNoVariation:
		l.log.Debug("no price variation in window")
	default:
		l.log.Debug("price normal", logger.Float64("z_score", c.evaluation.ZScore))
	}
	return StateSleeping, c
}

func (l *IngestionLoop) emit(ctx context.Context, c cycle) (LoopState, cycle) {
	ts := l.now().UTC()
	if ts.Before(c.observation.Timestamp) {
		ts = c.observation.Timestamp
	}
	sig, err := l.store.AppendSignal(ctx, models.Signal{
		Symbol:    l.symbol,
		Price:     c.observation.Price,
		ZScore:    c.evaluation.ZScore,
		Kind:      c.evaluation.Kind,
		Timestamp: ts,
	})
	if err != nil {
		return l.abort(ctx, StateSignaling, c, err)
	}
	c.signal = sig
	l.metrics.RecordSignal(sig.Symbol, sig.Kind)
	l.log.Info("anomaly detected",
		logger.Int64("signal_id", sig.ID),
		logger.String("type", string(sig.Kind)),
		logger.Float64("price", sig.Price),
		logger.Float64("z_score", sig.ZScore))

	if l.sink != nil {
		if err := l.sink.Enqueue(sig); err != nil {
			l.metrics.RecordError("deliver")
			l.log.Warn("signal not handed to delivery", logger.Int64("signal_id", sig.ID), logger.Error(&models.DeliveryError{Err: err}))
		}
	}
	return StateSleeping, c
}

func (l *IngestionLoop) sleep(ctx context.Context, c cycle) (LoopState, cycle) {
	if !c.started.IsZero() {
		l.metrics.RecordLatency("cycle", l.now().Sub(c.started).Seconds())
	}
	l.cycles.Add(1)

	t := time.NewTimer(l.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return StateStopped, c
	case <-t.C:
		return StateIdle, cycle{}
	}
}

// abort ends the cycle after a failed phase. Cancellation is not a failure.
func (l *IngestionLoop) abort(ctx context.Context, phase LoopState, c cycle, err error) (LoopState, cycle) {
	if ctx.Err() != nil {
		return StateStopped, c
	}
	c.err = err
	l.fail(phase, err)
	return StateSleeping, c
}

func (l *IngestionLoop) fail(phase LoopState, err error) {
	l.metrics.RecordError(phase.String())
	l.log.Error("cycle failed", logger.String("phase", phase.String()), logger.Error(err))
}
