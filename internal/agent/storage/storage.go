// Package storage defines the durable on-device state the sync engine
// depends on: the mutation outbox, the current session, and the
// identity-scoped cache.
package storage

import (
	"context"
	"time"

	"github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/telemetry"
)

// ErrNotFound reports a missing row.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// OutboxRecord is the stored form of one queued mutation.
type OutboxRecord struct {
	ID           string
	MutationType string
	CoalesceKey  string
	PayloadJSON  string
	AttemptCount int
	LastError    string
	Revision     int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionState is the single current device session.
type SessionState struct {
	IdentityID      string
	TenantID        string
	DeviceSessionID string
	BearerToken     string
	UpdatedAt       time.Time
}

// IdentityCacheEntry is one device-scoped cache row tied to an identity.
// These are wiped on forced logout.
type IdentityCacheEntry struct {
	CacheKey    string
	IdentityID  string
	PayloadJSON string
	UpdatedAt   time.Time
}

// OutboxStore persists the ordered mutation queue.
type OutboxStore interface {
	// UpsertOutboxRecord coalesces on the record's key: a matching queued
	// row is replaced in place (same queue position), otherwise the record
	// appends at the tail. The write is durable before return.
	UpsertOutboxRecord(ctx context.Context, record OutboxRecord) error
	// ListOutbox returns all queued records in queue order.
	ListOutbox(ctx context.Context) ([]OutboxRecord, error)
	// DeleteOutboxRecord removes a delivered record, but only when its
	// revision still matches the snapshot: a row superseded by a newer
	// enqueue mid-pass survives.
	DeleteOutboxRecord(ctx context.Context, id string, revision int64) error
	// MarkOutboxAttempt bumps the attempt counter after a failed delivery.
	MarkOutboxAttempt(ctx context.Context, id string, lastError string, at time.Time) error
	// OutboxLen returns the number of queued records.
	OutboxLen(ctx context.Context) (int, error)
}

// SessionStore persists the current device session.
type SessionStore interface {
	PutSessionState(ctx context.Context, state SessionState) error
	GetSessionState(ctx context.Context) (SessionState, error)
	ClearSessionState(ctx context.Context) error
}

// IdentityCacheStore persists identity-scoped cache entries.
type IdentityCacheStore interface {
	PutIdentityCacheEntry(ctx context.Context, entry IdentityCacheEntry) error
	ListIdentityCache(ctx context.Context) ([]IdentityCacheEntry, error)
	ClearIdentityCache(ctx context.Context) error
}

// Store is the full durable surface of the agent.
type Store interface {
	OutboxStore
	SessionStore
	IdentityCacheStore
	telemetry.Store
	Close() error
}
