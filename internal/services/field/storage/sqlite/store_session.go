package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seamark/fieldops/internal/services/field/storage"
)

// PutIdentity inserts or replaces a login identity.
func (s *Store) PutIdentity(ctx context.Context, identity storage.Identity) error {
	now := time.Now().UTC()
	created := identity.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := identity.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO identities (id, tenant_id, email, password_hash, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id,
			email = excluded.email,
			password_hash = excluded.password_hash,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at`,
		identity.ID, identity.TenantID, identity.Email, identity.PasswordHash,
		identity.DisplayName, toMillis(created), toMillis(updated))
	if err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}

// GetIdentityByEmail loads an identity by its unique email.
func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (storage.Identity, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, password_hash, display_name, created_at, updated_at
		FROM identities WHERE email = ?`, email)
	return scanIdentity(row)
}

// GetIdentity loads an identity by id.
func (s *Store) GetIdentity(ctx context.Context, id string) (storage.Identity, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, password_hash, display_name, created_at, updated_at
		FROM identities WHERE id = ?`, id)
	return scanIdentity(row)
}

func scanIdentity(row *sql.Row) (storage.Identity, error) {
	var identity storage.Identity
	var created, updated int64
	err := row.Scan(&identity.ID, &identity.TenantID, &identity.Email,
		&identity.PasswordHash, &identity.DisplayName, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Identity{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Identity{}, fmt.Errorf("scan identity: %w", err)
	}
	identity.CreatedAt = fromMillis(created)
	identity.UpdatedAt = fromMillis(updated)
	return identity, nil
}

// ClaimSessionAuthority overwrites the identity's authority row with the
// caller's device session. The version column increments on every claim so
// concurrent claims resolve last-write-wins but stay observable.
func (s *Store) ClaimSessionAuthority(ctx context.Context, identityID, deviceSessionID string, at time.Time) (storage.SessionAuthority, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		INSERT INTO session_authority (identity_id, device_session_id, version, issued_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(identity_id) DO UPDATE SET
			device_session_id = excluded.device_session_id,
			version = session_authority.version + 1,
			issued_at = excluded.issued_at
		RETURNING identity_id, device_session_id, version, issued_at`,
		identityID, deviceSessionID, toMillis(at))

	var authority storage.SessionAuthority
	var issued int64
	if err := row.Scan(&authority.IdentityID, &authority.DeviceSessionID, &authority.Version, &issued); err != nil {
		return storage.SessionAuthority{}, fmt.Errorf("claim session authority: %w", err)
	}
	authority.IssuedAt = fromMillis(issued)
	return authority, nil
}

// GetSessionAuthority loads the identity's current authority row.
func (s *Store) GetSessionAuthority(ctx context.Context, identityID string) (storage.SessionAuthority, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT identity_id, device_session_id, version, issued_at
		FROM session_authority WHERE identity_id = ?`, identityID)

	var authority storage.SessionAuthority
	var issued int64
	err := row.Scan(&authority.IdentityID, &authority.DeviceSessionID, &authority.Version, &issued)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SessionAuthority{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SessionAuthority{}, fmt.Errorf("get session authority: %w", err)
	}
	authority.IssuedAt = fromMillis(issued)
	return authority, nil
}
