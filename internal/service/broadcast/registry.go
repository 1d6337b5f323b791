package broadcast

import (
	"context"
	"sync"
	"time"

	"PriceSentinel/internal/domain/models"
	"PriceSentinel/internal/domain/repository"
	"PriceSentinel/pkg/logger"
	"PriceSentinel/pkg/metrics"
)

const DefaultSendTimeout = 2 * time.Second

// ConnID identifies a registered connection. Ids are never reused.
type ConnID uint64

// Conn is one subscriber. Implementations must be comparable (use pointer receivers).
// A Send still running at the send timeout counts as failed and the
// connection is closed.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Report summarises one Broadcast.
type Report struct {
	Attempted int
	Delivered int
	Failed    []ConnID
}

// Registry is the set of live subscribers. A failing subscriber is dropped
// and closed without affecting delivery to the others.
type Registry struct {
	mu     sync.Mutex
	nextID ConnID
	conns  map[ConnID]Conn
	ids    map[Conn]ConnID

	sendTimeout time.Duration
	log         *logger.Logger
	metrics     repository.Metrics
}

func NewRegistry(l *logger.Logger, m repository.Metrics, sendTimeout time.Duration) *Registry {
	if l == nil {
		l = logger.Nop()
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Registry{
		conns:       make(map[ConnID]Conn),
		ids:         make(map[Conn]ConnID),
		sendTimeout: sendTimeout,
		log:         l.With(logger.String("component", "broadcast")),
		metrics:     m,
	}
}

// Register adds c and returns its id. Registering the same connection again returns the existing id.
func (r *Registry) Register(c Conn) ConnID {
	r.mu.Lock()
	if id, ok := r.ids[c]; ok {
		r.mu.Unlock()
		return id
	}
	r.nextID++
	id := r.nextID
	r.conns[id] = c
	r.ids[c] = id
	n := len(r.conns)
	r.mu.Unlock()

	r.metrics.SetSubscribers(n)
	r.log.Debug("subscriber registered", logger.Uint64("conn_id", uint64(id)), logger.Int("subscribers", n))
	return id
}

// Unregister removes id. Unknown ids are ignored. The connection is not closed.
func (r *Registry) Unregister(id ConnID) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		delete(r.ids, c)
	}
	n := len(r.conns)
	r.mu.Unlock()

	if ok {
		r.metrics.SetSubscribers(n)
		r.log.Debug("subscriber unregistered", logger.Uint64("conn_id", uint64(id)), logger.Int("subscribers", n))
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

type target struct {
	id   ConnID
	conn Conn
}

func (r *Registry) snapshot() []target {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]target, 0, len(r.conns))
	for id, c := range r.conns {
		out = append(out, target{id: id, conn: c})
	}
	return out
}

// Broadcast encodes sig once and sends it to every subscriber registered at
// call time, concurrently, each bounded by the send timeout. It never fails as a whole.
func (r *Registry) Broadcast(ctx context.Context, sig models.Signal) Report {
	payload, err := models.NewSignalEvent(sig).Marshal()
	if err != nil {
		r.log.Error("encode signal event", logger.String("symbol", sig.Symbol), logger.Error(err))
		return Report{}
	}
	return r.BroadcastPayload(ctx, payload)
}

// BroadcastPayload fans out an already encoded event.
func (r *Registry) BroadcastPayload(ctx context.Context, payload []byte) Report {
	targets := r.snapshot()
	report := Report{Attempted: len(targets)}
	if len(targets) == 0 {
		return report
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t target) {
			defer wg.Done()
			errs[i] = r.sendWithin(ctx, t.conn, payload)
		}(i, t)
	}
	wg.Wait()

	for i, t := range targets {
		if errs[i] == nil {
			report.Delivered++
			r.metrics.RecordDelivery("ok")
			continue
		}
		report.Failed = append(report.Failed, t.id)
		r.metrics.RecordDelivery("failed")
		derr := &models.DeliveryError{ConnID: uint64(t.id), Err: errs[i]}
		r.log.Warn("dropping subscriber", logger.Uint64("conn_id", uint64(t.id)), logger.Error(derr))
		r.drop(t)
	}
	return report
}

// drop removes t only if id still maps to the same connection, then closes it.
func (r *Registry) drop(t target) {
	r.mu.Lock()
	if cur, ok := r.conns[t.id]; ok && cur == t.conn {
		delete(r.conns, t.id)
		delete(r.ids, t.conn)
	}
	n := len(r.conns)
	r.mu.Unlock()

	r.metrics.SetSubscribers(n)
	if err := t.conn.Close(); err != nil {
		r.log.Debug("close subscriber", logger.Uint64("conn_id", uint64(t.id)), logger.Error(err))
	}
}

// Close closes and removes every subscriber.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[ConnID]Conn)
	r.ids = make(map[Conn]ConnID)
	r.mu.Unlock()

	for id, c := range conns {
		if err := c.Close(); err != nil {
			r.log.Debug("close subscriber", logger.Uint64("conn_id", uint64(id)), logger.Error(err))
		}
	}
	r.metrics.SetSubscribers(0)
}

// sendWithin bounds one Send by the send timeout even when the Conn ignores
// ctx. An abandoned Send returns once drop closes the connection.
func (r *Registry) sendWithin(ctx context.Context, c Conn, payload []byte) error {
	sctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- safeSend(sctx, c, payload) }()
	select {
	case err := <-done:
		return err
	case <-sctx.Done():
		return sctx.Err()
	}
}

func safeSend(ctx context.Context, c Conn, payload []byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &sendPanic{value: rec}
		}
	}()
	return c.Send(ctx, payload)
}

type sendPanic struct{ value interface{} }

func (p *sendPanic) Error() string { return "send panicked" }
