// Package events fans committed market events out to live sinks: the
// WebSocket hub, the Redis bus and operator notifications. Delivery is best
// effort; the durable copy is the market's own event log.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// Sink consumes batches of committed events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, events []domain.Event) error
}

const defaultQueueSize = 1024

// Dispatcher implements domain.EventPublisher. Publish never blocks the
// caller: batches are queued and delivered by Run; a full queue drops the
// batch.
type Dispatcher struct {
	queue   chan []domain.Event
	logger  *slog.Logger
	dropped atomic.Uint64

	mu    sync.RWMutex
	sinks []Sink
}

// NewDispatcher creates a dispatcher with room for size pending batches.
func NewDispatcher(logger *slog.Logger, size int, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:  make(chan []domain.Event, size),
		logger: logger.With(slog.String("component", "events")),
		sinks:  sinks,
	}
}

// AddSink registers s for subsequent deliveries.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

func (d *Dispatcher) Publish(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	batch := make([]domain.Event, len(events))
	copy(batch, events)
	select {
	case d.queue <- batch:
	default:
		d.dropped.Add(1)
		d.logger.WarnContext(ctx, "event queue full, dropping batch",
			slog.Uint64("first_seq", batch[0].Seq),
			slog.Int("count", len(batch)),
		)
	}
}

// Dropped is the number of batches discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Run delivers queued batches until ctx is cancelled, then drains what is
// already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("event dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case batch := <-d.queue:
			d.deliver(ctx, batch)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx := context.Background()
	for {
		select {
		case batch := <-d.queue:
			d.deliver(ctx, batch)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, batch []domain.Event) {
	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Deliver(ctx, batch); err != nil {
			d.logger.ErrorContext(ctx, "sink delivery failed",
				slog.String("sink", s.Name()),
				slog.Uint64("first_seq", batch[0].Seq),
				slog.String("error", err.Error()),
			)
		}
	}
}

var _ domain.EventPublisher = (*Dispatcher)(nil)
