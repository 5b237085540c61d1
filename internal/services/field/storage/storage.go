// Package storage defines the field service's persistence surface: login
// identities, the per-identity session authority, and the command tables
// that synced mutations land in.
package storage

import (
	"context"
	"time"

	"github.com/seamark/fieldops/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// Identity is a login identity.
type Identity struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionAuthority records which device session currently owns an
// identity's session. Version increases on every login and takeover so
// lost races are observable.
type SessionAuthority struct {
	IdentityID      string
	DeviceSessionID string
	Version         int64
	IssuedAt        time.Time
}

// IdentityStore persists login identities.
type IdentityStore interface {
	PutIdentity(ctx context.Context, identity Identity) error
	GetIdentityByEmail(ctx context.Context, email string) (Identity, error)
	GetIdentity(ctx context.Context, id string) (Identity, error)
}

// SessionAuthorityStore persists the single-owner session authority.
type SessionAuthorityStore interface {
	// ClaimSessionAuthority overwrites the identity's authority with the
	// given device session and bumps the version. It returns the stored
	// row, including the new version.
	ClaimSessionAuthority(ctx context.Context, identityID, deviceSessionID string, at time.Time) (SessionAuthority, error)
	GetSessionAuthority(ctx context.Context, identityID string) (SessionAuthority, error)
}

// CrewAssignment is the crew working a job phase.
type CrewAssignment struct {
	JobID     string
	CrewID    string
	Phase     string
	UpdatedAt time.Time
}

// JobNote is one note in a job's note set.
type JobNote struct {
	JobID   string
	NoteID  string
	Body    string
	NotedAt time.Time
}

// Material is a tracked material record.
type Material struct {
	ID        string
	Name      string
	Quantity  float64
	Unit      string
	Supplier  string
	UpdatedAt time.Time
}

// DirectoryEntity is a supplier, vendor, permit company, or supervisor.
type DirectoryEntity struct {
	ID           string
	Kind         string
	Name         string
	ContactName  string
	ContactPhone string
	ContactEmail string
	UpdatedAt    time.Time
}

// JobDefault is a job's assigned entity set for one field, stored as the
// full replacement set.
type JobDefault struct {
	JobID     string
	Field     string
	IDs       []string
	UpdatedAt time.Time
}

// ScheduledTask is a crew scheduled against a job phase.
type ScheduledTask struct {
	ID          string
	JobID       string
	CrewID      string
	Phase       string
	ScheduledAt time.Time
	UpdatedAt   time.Time
}

// CommandStore persists synced mutations. Every write is an upsert keyed
// by the payload's own IDs so redelivery converges.
type CommandStore interface {
	PutCrewAssignment(ctx context.Context, assignment CrewAssignment) error
	GetCrewAssignment(ctx context.Context, jobID string) (CrewAssignment, error)
	// ReplaceJobNotes swaps the job's entire note set in one transaction.
	ReplaceJobNotes(ctx context.Context, jobID string, notes []JobNote) error
	ListJobNotes(ctx context.Context, jobID string) ([]JobNote, error)
	PutMaterial(ctx context.Context, material Material) error
	GetMaterial(ctx context.Context, id string) (Material, error)
	PutDirectoryEntity(ctx context.Context, entity DirectoryEntity) error
	GetDirectoryEntity(ctx context.Context, id string) (DirectoryEntity, error)
	PutJobDefault(ctx context.Context, jobDefault JobDefault) error
	GetJobDefault(ctx context.Context, jobID, field string) (JobDefault, error)
	PutScheduledTask(ctx context.Context, task ScheduledTask) error
	GetScheduledTask(ctx context.Context, id string) (ScheduledTask, error)
}

// Store is the full persistence surface of the field service.
type Store interface {
	IdentityStore
	SessionAuthorityStore
	CommandStore
	Close() error
}
