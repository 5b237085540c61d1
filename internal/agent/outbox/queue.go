// Package outbox exposes the durable mutation queue as a service object.
// UI code enqueues; the dispatcher owns every other operation.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/seamark/fieldops/internal/agent/mutation"
	"github.com/seamark/fieldops/internal/agent/storage"
)

// Item is one queued mutation paired with its storage identity. StoreID and
// Revision pin the snapshot row so a mid-pass coalesce never gets dropped
// by the post-flush cleanup.
type Item struct {
	Record    mutation.Record
	StoreID   string
	Revision  int64
	LastError string
}

// Queue is the durable, coalesced mutation queue.
type Queue struct {
	store storage.OutboxStore
	clock func() time.Time
}

// NewQueue creates a queue over a durable store.
func NewQueue(store storage.OutboxStore) *Queue {
	return &Queue{store: store, clock: time.Now}
}

// Enqueue validates and durably stores a write intent. A record whose
// coalescing key matches a queued entry replaces it in place; otherwise the
// record appends at the tail. The queue is written through before return.
func (q *Queue) Enqueue(ctx context.Context, record mutation.Record) error {
	if record.Payload == nil {
		return fmt.Errorf("record payload is required")
	}
	if err := record.Payload.Validate(); err != nil {
		return err
	}
	payloadJSON, err := mutation.MarshalPayload(record)
	if err != nil {
		return err
	}
	now := q.now()
	return q.store.UpsertOutboxRecord(ctx, storage.OutboxRecord{
		ID:           record.ID,
		MutationType: string(record.Type),
		CoalesceKey:  record.CoalesceKey,
		PayloadJSON:  string(payloadJSON),
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    now,
	})
}

// SnapshotAll returns the queued mutations in queue order without mutating
// the queue.
func (q *Queue) SnapshotAll(ctx context.Context) ([]Item, error) {
	stored, err := q.store.ListOutbox(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(stored))
	for _, row := range stored {
		payload, err := mutation.NewPayload(mutation.Type(row.MutationType))
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(row.PayloadJSON), payload); err != nil {
			return nil, fmt.Errorf("decode %s payload for %s: %w", row.MutationType, row.ID, err)
		}
		items = append(items, Item{
			Record: mutation.Record{
				ID:          row.ID,
				Type:        mutation.Type(row.MutationType),
				CoalesceKey: row.CoalesceKey,
				CreatedAt:   row.CreatedAt,
				Payload:     payload,
			},
			StoreID:   row.ID,
			Revision:  row.Revision,
			LastError: row.LastError,
		})
	}
	return items, nil
}

// CompleteFlush persists the outcome of one delivery pass: snapshot rows
// absent from remaining are dropped (unless superseded since the snapshot),
// rows still remaining get their attempt counters bumped. Persistence
// happens once per pass, so a crash mid-pass leaves the pre-pass queue
// intact and already-delivered items are redelivered; the server handlers
// are idempotent for exactly this reason.
func (q *Queue) CompleteFlush(ctx context.Context, snapshot []Item, remaining []Item) error {
	remainingByID := make(map[string]Item, len(remaining))
	for _, item := range remaining {
		remainingByID[item.StoreID] = item
	}
	now := q.now()
	for _, item := range snapshot {
		failed, ok := remainingByID[item.StoreID]
		if !ok {
			if err := q.store.DeleteOutboxRecord(ctx, item.StoreID, item.Revision); err != nil {
				return fmt.Errorf("drop delivered record %s: %w", item.StoreID, err)
			}
			continue
		}
		if err := q.store.MarkOutboxAttempt(ctx, item.StoreID, failed.LastError, now); err != nil {
			return fmt.Errorf("mark failed record %s: %w", item.StoreID, err)
		}
	}
	return nil
}

// Len returns the number of queued records; it is the only delivery-failure
// signal surfaced outside the engine.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.OutboxLen(ctx)
}

func (q *Queue) now() time.Time {
	if q.clock == nil {
		return time.Now().UTC()
	}
	return q.clock().UTC()
}
