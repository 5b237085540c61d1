package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/seamark/fieldops/internal/agent/storage"
)

// UpsertOutboxRecord coalesces by key or appends at the tail, in one
// transaction so the record is durable before the call returns.
func (s *Store) UpsertOutboxRecord(ctx context.Context, record storage.OutboxRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("record id is required")
	}
	if strings.TrimSpace(record.CoalesceKey) == "" {
		return fmt.Errorf("coalesce key is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start enqueue transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Coalescing keeps the original row id and queue position; the payload,
	// type, and update timestamp move forward and the revision bumps so a
	// snapshot taken before the coalesce can no longer delete this row.
	result, err := tx.ExecContext(ctx, `
UPDATE outbox
SET
	mutation_type = ?,
	payload_json = ?,
	last_error = '',
	revision = revision + 1,
	updated_at = ?
WHERE coalesce_key = ?
`,
		record.MutationType,
		record.PayloadJSON,
		toMillis(record.UpdatedAt),
		record.CoalesceKey,
	)
	if err != nil {
		return fmt.Errorf("coalesce outbox record: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("coalesce rows affected: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO outbox (id, mutation_type, coalesce_key, position, payload_json, attempt_count, last_error, revision, created_at, updated_at)
VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM outbox), ?, 0, '', 1, ?, ?)
`,
			record.ID,
			record.MutationType,
			record.CoalesceKey,
			record.PayloadJSON,
			toMillis(record.CreatedAt),
			toMillis(record.UpdatedAt),
		); err != nil {
			return fmt.Errorf("append outbox record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue transaction: %w", err)
	}
	return nil
}

// ListOutbox returns all queued records in queue order.
func (s *Store) ListOutbox(ctx context.Context) ([]storage.OutboxRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, mutation_type, coalesce_key, payload_json, attempt_count, last_error, revision, created_at, updated_at
FROM outbox
ORDER BY position ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := []storage.OutboxRecord{}
	for rows.Next() {
		var record storage.OutboxRecord
		var createdAt int64
		var updatedAt int64
		if err := rows.Scan(
			&record.ID,
			&record.MutationType,
			&record.CoalesceKey,
			&record.PayloadJSON,
			&record.AttemptCount,
			&record.LastError,
			&record.Revision,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		record.UpdatedAt = fromMillis(updatedAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return records, nil
}

// DeleteOutboxRecord removes a delivered record unless a newer enqueue
// superseded it after the snapshot was taken. The revision guard is what
// makes the check safe: two coalesces inside the same millisecond still
// produce distinct revisions.
func (s *Store) DeleteOutboxRecord(ctx context.Context, id string, revision int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("record id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM outbox
WHERE id = ?
AND revision = ?
`, id, revision); err != nil {
		return fmt.Errorf("delete outbox record: %w", err)
	}
	return nil
}

// MarkOutboxAttempt bumps the attempt counter after a failed delivery.
func (s *Store) MarkOutboxAttempt(ctx context.Context, id string, lastError string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("record id is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE outbox
SET
	attempt_count = attempt_count + 1,
	last_error = ?
WHERE id = ?
`, strings.TrimSpace(lastError), id)
	if err != nil {
		return fmt.Errorf("mark outbox attempt: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox attempt rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// OutboxLen returns the number of queued records.
func (s *Store) OutboxLen(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var count int
	row := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`)
	if err := row.Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return count, nil
}
