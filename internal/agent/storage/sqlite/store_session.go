package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/seamark/fieldops/internal/agent/storage"
	"github.com/seamark/fieldops/internal/telemetry"
)

// PutSessionState overwrites the single current session row.
func (s *Store) PutSessionState(ctx context.Context, state storage.SessionState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(state.DeviceSessionID) == "" {
		return fmt.Errorf("device session id is required")
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO session_state (k, identity_id, tenant_id, device_session_id, bearer_token, updated_at)
VALUES (0, ?, ?, ?, ?, ?)
ON CONFLICT(k) DO UPDATE SET
	identity_id = excluded.identity_id,
	tenant_id = excluded.tenant_id,
	device_session_id = excluded.device_session_id,
	bearer_token = excluded.bearer_token,
	updated_at = excluded.updated_at
`,
		state.IdentityID,
		state.TenantID,
		state.DeviceSessionID,
		state.BearerToken,
		toMillis(state.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put session state: %w", err)
	}
	return nil
}

// GetSessionState returns the current session, or ErrNotFound when signed out.
func (s *Store) GetSessionState(ctx context.Context) (storage.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return storage.SessionState{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.SessionState{}, fmt.Errorf("storage is not configured")
	}

	var state storage.SessionState
	var updatedAt int64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT identity_id, tenant_id, device_session_id, bearer_token, updated_at
FROM session_state
WHERE k = 0
`)
	if err := row.Scan(&state.IdentityID, &state.TenantID, &state.DeviceSessionID, &state.BearerToken, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return storage.SessionState{}, storage.ErrNotFound
		}
		return storage.SessionState{}, fmt.Errorf("get session state: %w", err)
	}
	state.UpdatedAt = fromMillis(updatedAt)
	return state, nil
}

// ClearSessionState signs the device out locally.
func (s *Store) ClearSessionState(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM session_state`); err != nil {
		return fmt.Errorf("clear session state: %w", err)
	}
	return nil
}

// PutIdentityCacheEntry stores one identity-scoped cache row.
func (s *Store) PutIdentityCacheEntry(ctx context.Context, entry storage.IdentityCacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(entry.CacheKey) == "" {
		return fmt.Errorf("cache key is required")
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO identity_cache (cache_key, identity_id, payload_json, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
	identity_id = excluded.identity_id,
	payload_json = excluded.payload_json,
	updated_at = excluded.updated_at
`,
		entry.CacheKey,
		entry.IdentityID,
		entry.PayloadJSON,
		toMillis(entry.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put identity cache entry: %w", err)
	}
	return nil
}

// ListIdentityCache returns all identity-scoped cache rows.
func (s *Store) ListIdentityCache(ctx context.Context) ([]storage.IdentityCacheEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT cache_key, identity_id, payload_json, updated_at
FROM identity_cache
ORDER BY cache_key ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list identity cache: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := []storage.IdentityCacheEntry{}
	for rows.Next() {
		var entry storage.IdentityCacheEntry
		var updatedAt int64
		if err := rows.Scan(&entry.CacheKey, &entry.IdentityID, &entry.PayloadJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan identity cache entry: %w", err)
		}
		entry.UpdatedAt = fromMillis(updatedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity cache: %w", err)
	}
	return entries, nil
}

// ClearIdentityCache wipes all identity-scoped cache rows.
func (s *Store) ClearIdentityCache(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM identity_cache`); err != nil {
		return fmt.Errorf("clear identity cache: %w", err)
	}
	return nil
}

// AppendTelemetryEvent records one operational event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event telemetry.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	attrsJSON := "{}"
	if len(event.Attrs) > 0 {
		data, err := json.Marshal(event.Attrs)
		if err != nil {
			return fmt.Errorf("marshal telemetry attrs: %w", err)
		}
		attrsJSON = string(data)
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (name, severity, attrs_json, created_at)
VALUES (?, ?, ?, ?)
`,
		event.Name,
		string(event.Severity),
		attrsJSON,
		toMillis(event.Timestamp),
	); err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}
