// Package dispatch drives eventual delivery of the mutation outbox. One
// dispatcher owns the queue: a repeating timer, an on-demand trigger, and
// app-resume hooks all funnel into a single non-reentrant flush pass.
package dispatch

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/seamark/fieldops/internal/agent/mutation"
	"github.com/seamark/fieldops/internal/agent/outbox"
	"github.com/seamark/fieldops/internal/platform/timeouts"
	"github.com/seamark/fieldops/internal/telemetry"
)

// Sender delivers one record to its mapped endpoint.
type Sender interface {
	SendMutation(ctx context.Context, record mutation.Record) error
}

// Dispatcher retries queued mutations until each is confirmed delivered.
type Dispatcher struct {
	queue    *outbox.Queue
	sender   Sender
	emitter  *telemetry.Emitter
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}

	flushing atomic.Bool
}

// Option configures a dispatcher.
type Option func(*Dispatcher)

// WithInterval overrides the flush period.
func WithInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithEmitter records delivery telemetry.
func WithEmitter(emitter *telemetry.Emitter) Option {
	return func(d *Dispatcher) {
		d.emitter = emitter
	}
}

// New creates a dispatcher over a queue and a sender.
func New(queue *outbox.Queue, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:    queue,
		sender:   sender,
		interval: timeouts.SyncInterval,
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue durably queues a record, starts the delivery timer if it is not
// running, and triggers an immediate attempt.
func (d *Dispatcher) Enqueue(ctx context.Context, record mutation.Record) error {
	if err := d.queue.Enqueue(ctx, record); err != nil {
		return err
	}
	d.Start()
	d.TriggerFlush()
	return nil
}

// Start begins the repeating delivery loop. Calling Start on a running
// dispatcher is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
}

// Stop halts delivery attempts and leaves no dangling timer. Queued records
// are never discarded by stopping. Safe to call at any time, including when
// the dispatcher never started.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// TriggerFlush requests an immediate delivery attempt without blocking.
func (d *Dispatcher) TriggerFlush() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

// PendingCount reports the unresolved queue length, the only delivery
// signal surfaced to callers.
func (d *Dispatcher) PendingCount(ctx context.Context) (int, error) {
	return d.queue.Len(ctx)
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	if err := d.Flush(ctx); err != nil {
		log.Printf("outbox flush: %v", err)
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.kick:
		}
		if err := d.Flush(ctx); err != nil {
			log.Printf("outbox flush: %v", err)
		}
	}
}

// Flush runs one delivery pass: snapshot the queue, attempt each record in
// order, and persist the survivors once at the end. Individual delivery
// failures stay silent; they ride the queue to the next pass. Overlapping
// calls are coalesced by a non-reentrant guard, so the timer, an explicit
// trigger, and an app-resume hook can all fire around the same time without
// racing on the durable queue.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if !d.flushing.CompareAndSwap(false, true) {
		return nil
	}
	defer d.flushing.Store(false)

	tracer := otel.Tracer("fieldops/agent/dispatch")
	ctx, span := tracer.Start(ctx, "outbox.flush")
	defer span.End()

	snapshot, err := d.queue.SnapshotAll(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("outbox.snapshot_size", len(snapshot)))
	if len(snapshot) == 0 {
		return nil
	}

	var remaining []outbox.Item
	for _, item := range snapshot {
		if err := ctx.Err(); err != nil {
			// Cancellation keeps the rest of the snapshot queued.
			remaining = append(remaining, item)
			continue
		}
		if sendErr := d.sender.SendMutation(ctx, item.Record); sendErr != nil {
			item.LastError = sendErr.Error()
			remaining = append(remaining, item)
			d.emitDeliveryFailure(ctx, item, sendErr)
		}
	}
	span.SetAttributes(attribute.Int("outbox.remaining", len(remaining)))

	if ctx.Err() != nil {
		// An interrupted pass persists nothing: the pre-pass queue stays
		// intact and delivered items are redelivered next time.
		return nil
	}
	return d.queue.CompleteFlush(ctx, snapshot, remaining)
}

func (d *Dispatcher) emitDeliveryFailure(ctx context.Context, item outbox.Item, cause error) {
	if d.emitter == nil {
		return
	}
	if err := d.emitter.Emit(ctx, telemetry.Event{
		Name:     "sync.delivery_failed",
		Severity: telemetry.SeverityWarn,
		Attrs: map[string]string{
			"type":  string(item.Record.Type),
			"error": cause.Error(),
		},
	}); err != nil {
		log.Printf("emit delivery telemetry: %v", err)
	}
}
