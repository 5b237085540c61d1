package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seamark/fieldops/internal/services/field/storage"
)

// PutCrewAssignment upserts the crew working a job.
func (s *Store) PutCrewAssignment(ctx context.Context, assignment storage.CrewAssignment) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO crew_assignments (job_id, crew_id, phase, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			crew_id = excluded.crew_id,
			phase = excluded.phase,
			updated_at = excluded.updated_at`,
		assignment.JobID, assignment.CrewID, assignment.Phase, toMillis(assignment.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put crew assignment: %w", err)
	}
	return nil
}

// GetCrewAssignment loads a job's crew assignment.
func (s *Store) GetCrewAssignment(ctx context.Context, jobID string) (storage.CrewAssignment, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT job_id, crew_id, phase, updated_at
		FROM crew_assignments WHERE job_id = ?`, jobID)

	var assignment storage.CrewAssignment
	var updated int64
	err := row.Scan(&assignment.JobID, &assignment.CrewID, &assignment.Phase, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CrewAssignment{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.CrewAssignment{}, fmt.Errorf("get crew assignment: %w", err)
	}
	assignment.UpdatedAt = fromMillis(updated)
	return assignment, nil
}

// ReplaceJobNotes swaps the job's entire note set in one transaction so a
// redelivered note sync converges instead of duplicating.
func (s *Store) ReplaceJobNotes(ctx context.Context, jobID string, notes []storage.JobNote) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace job notes: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_notes WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("clear job notes: %w", err)
	}
	for _, note := range notes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO job_notes (job_id, note_id, body, noted_at)
			VALUES (?, ?, ?, ?)`,
			jobID, note.NoteID, note.Body, toMillis(note.NotedAt))
		if err != nil {
			return fmt.Errorf("insert job note %s: %w", note.NoteID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace job notes: %w", err)
	}
	return nil
}

// ListJobNotes returns a job's notes in note time order.
func (s *Store) ListJobNotes(ctx context.Context, jobID string) ([]storage.JobNote, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT job_id, note_id, body, noted_at
		FROM job_notes WHERE job_id = ? ORDER BY noted_at, note_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job notes: %w", err)
	}
	defer rows.Close()

	var notes []storage.JobNote
	for rows.Next() {
		var note storage.JobNote
		var notedAt int64
		if err := rows.Scan(&note.JobID, &note.NoteID, &note.Body, &notedAt); err != nil {
			return nil, fmt.Errorf("scan job note: %w", err)
		}
		note.NotedAt = fromMillis(notedAt)
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// PutMaterial upserts a material record.
func (s *Store) PutMaterial(ctx context.Context, material storage.Material) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO materials (id, name, quantity, unit, supplier, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			quantity = excluded.quantity,
			unit = excluded.unit,
			supplier = excluded.supplier,
			updated_at = excluded.updated_at`,
		material.ID, material.Name, material.Quantity, material.Unit,
		material.Supplier, toMillis(material.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put material: %w", err)
	}
	return nil
}

// GetMaterial loads a material by id.
func (s *Store) GetMaterial(ctx context.Context, id string) (storage.Material, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT id, name, quantity, unit, supplier, updated_at
		FROM materials WHERE id = ?`, id)

	var material storage.Material
	var updated int64
	err := row.Scan(&material.ID, &material.Name, &material.Quantity,
		&material.Unit, &material.Supplier, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Material{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Material{}, fmt.Errorf("get material: %w", err)
	}
	material.UpdatedAt = fromMillis(updated)
	return material, nil
}

// PutDirectoryEntity upserts a supplier, vendor, permit company, or
// supervisor record.
func (s *Store) PutDirectoryEntity(ctx context.Context, entity storage.DirectoryEntity) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO directory_entities (id, kind, name, contact_name, contact_phone, contact_email, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			contact_name = excluded.contact_name,
			contact_phone = excluded.contact_phone,
			contact_email = excluded.contact_email,
			updated_at = excluded.updated_at`,
		entity.ID, entity.Kind, entity.Name, entity.ContactName,
		entity.ContactPhone, entity.ContactEmail, toMillis(entity.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put directory entity: %w", err)
	}
	return nil
}

// GetDirectoryEntity loads a directory entity by id.
func (s *Store) GetDirectoryEntity(ctx context.Context, id string) (storage.DirectoryEntity, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT id, kind, name, contact_name, contact_phone, contact_email, updated_at
		FROM directory_entities WHERE id = ?`, id)

	var entity storage.DirectoryEntity
	var updated int64
	err := row.Scan(&entity.ID, &entity.Kind, &entity.Name, &entity.ContactName,
		&entity.ContactPhone, &entity.ContactEmail, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.DirectoryEntity{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.DirectoryEntity{}, fmt.Errorf("get directory entity: %w", err)
	}
	entity.UpdatedAt = fromMillis(updated)
	return entity, nil
}

// PutJobDefault upserts the full replacement set for one job field.
func (s *Store) PutJobDefault(ctx context.Context, jobDefault storage.JobDefault) error {
	ids := jobDefault.IDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode job default ids: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO job_defaults (job_id, field, ids_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id, field) DO UPDATE SET
			ids_json = excluded.ids_json,
			updated_at = excluded.updated_at`,
		jobDefault.JobID, jobDefault.Field, string(idsJSON), toMillis(jobDefault.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put job default: %w", err)
	}
	return nil
}

// GetJobDefault loads a job's assigned set for one field.
func (s *Store) GetJobDefault(ctx context.Context, jobID, field string) (storage.JobDefault, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT job_id, field, ids_json, updated_at
		FROM job_defaults WHERE job_id = ? AND field = ?`, jobID, field)

	var jobDefault storage.JobDefault
	var idsJSON string
	var updated int64
	err := row.Scan(&jobDefault.JobID, &jobDefault.Field, &idsJSON, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.JobDefault{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.JobDefault{}, fmt.Errorf("get job default: %w", err)
	}
	if err := json.Unmarshal([]byte(idsJSON), &jobDefault.IDs); err != nil {
		return storage.JobDefault{}, fmt.Errorf("decode job default ids: %w", err)
	}
	jobDefault.UpdatedAt = fromMillis(updated)
	return jobDefault, nil
}

// PutScheduledTask upserts a scheduled task.
func (s *Store) PutScheduledTask(ctx context.Context, task storage.ScheduledTask) error {
	_, err := s.sqlDB.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (id, job_id, crew_id, phase, scheduled_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			job_id = excluded.job_id,
			crew_id = excluded.crew_id,
			phase = excluded.phase,
			scheduled_at = excluded.scheduled_at,
			updated_at = excluded.updated_at`,
		task.ID, task.JobID, task.CrewID, task.Phase,
		toMillis(task.ScheduledAt), toMillis(task.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put scheduled task: %w", err)
	}
	return nil
}

// GetScheduledTask loads a scheduled task by id.
func (s *Store) GetScheduledTask(ctx context.Context, id string) (storage.ScheduledTask, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT id, job_id, crew_id, phase, scheduled_at, updated_at
		FROM scheduled_tasks WHERE id = ?`, id)

	var task storage.ScheduledTask
	var scheduled, updated int64
	err := row.Scan(&task.ID, &task.JobID, &task.CrewID, &task.Phase, &scheduled, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ScheduledTask{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ScheduledTask{}, fmt.Errorf("get scheduled task: %w", err)
	}
	task.ScheduledAt = fromMillis(scheduled)
	task.UpdatedAt = fromMillis(updated)
	return task, nil
}
