package outbox

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/seamark/fieldops/internal/agent/mutation"
	agentsqlite "github.com/seamark/fieldops/internal/agent/storage/sqlite"
	apperrors "github.com/seamark/fieldops/internal/platform/errors"
)

func openQueue(t *testing.T) *Queue {
	t.Helper()
	store, err := agentsqlite.Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return NewQueue(store)
}

func mustRecord(t *testing.T, payload mutation.Payload, key string) mutation.Record {
	t.Helper()
	record, err := mutation.NewRecordWithKey(payload, key)
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	return record
}

func TestEnqueueCoalescesLastWriterWins(t *testing.T) {
	queue := openQueue(t)
	key := "crew_assignment:job1:crewA:Rough"

	first := mustRecord(t, &mutation.CrewAssignment{JobID: "job1", CrewID: "crewA", Phase: "Rough"}, key)
	if err := queue.Enqueue(context.Background(), first); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	second := mustRecord(t, &mutation.CrewAssignment{JobID: "job1", CrewID: "crewA", Phase: "Trim"}, key)
	if err := queue.Enqueue(context.Background(), second); err != nil {
		t.Fatalf("enqueue second: %v", err)
	}

	items, err := queue.SnapshotAll(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue len = %d, want 1", len(items))
	}
	assignment, ok := items[0].Record.Payload.(*mutation.CrewAssignment)
	if !ok {
		t.Fatalf("payload type = %T", items[0].Record.Payload)
	}
	if assignment.Phase != "Trim" {
		t.Fatalf("phase = %q, want Trim", assignment.Phase)
	}
}

func TestEnqueueRejectsValidationFailures(t *testing.T) {
	queue := openQueue(t)

	record := mutation.Record{
		ID:          "rec-1",
		Type:        mutation.TypeCrewAssignment,
		CoalesceKey: "k",
		Payload:     &mutation.CrewAssignment{CrewID: "crewA"},
	}
	err := queue.Enqueue(context.Background(), record)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if apperrors.KindOf(err) != apperrors.KindValidation {
		t.Fatalf("kind = %v, want validation", apperrors.KindOf(err))
	}

	count, err := queue.Len(context.Background())
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if count != 0 {
		t.Fatalf("queue len = %d, want 0 (rejected input must not queue)", count)
	}
}

func TestSnapshotPreservesEnqueueOrder(t *testing.T) {
	queue := openQueue(t)

	records := []mutation.Record{
		mustRecord(t, &mutation.SupplierUpsert{DirectoryEntity: mutation.DirectoryEntity{ID: "sup-1", Name: "A"}}, ""),
		mustRecord(t, &mutation.JobNotes{JobID: "job1"}, ""),
		mustRecord(t, &mutation.JobContractorSet{JobAssignmentFields: mutation.JobAssignmentFields{JobID: "job1", IDs: []string{"con-1"}}}, ""),
	}
	for _, record := range records {
		if err := queue.Enqueue(context.Background(), record); err != nil {
			t.Fatalf("enqueue %s: %v", record.Type, err)
		}
	}

	items, err := queue.SnapshotAll(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("queue len = %d, want 3", len(items))
	}
	for i, record := range records {
		if items[i].Record.ID != record.ID {
			t.Fatalf("items[%d].ID = %q, want %q", i, items[i].Record.ID, record.ID)
		}
	}
}

func TestCompleteFlushKeepsOnlyFailures(t *testing.T) {
	queue := openQueue(t)

	failing := mustRecord(t, &mutation.SupplierUpsert{DirectoryEntity: mutation.DirectoryEntity{ID: "sup-1", Name: "A"}}, "")
	succeeding := mustRecord(t, &mutation.JobNotes{JobID: "job1"}, "")
	for _, record := range []mutation.Record{failing, succeeding} {
		if err := queue.Enqueue(context.Background(), record); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	snapshot, err := queue.SnapshotAll(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	remaining := []Item{snapshot[0]}
	remaining[0].LastError = "connection refused"
	if err := queue.CompleteFlush(context.Background(), snapshot, remaining); err != nil {
		t.Fatalf("complete flush: %v", err)
	}

	items, err := queue.SnapshotAll(context.Background())
	if err != nil {
		t.Fatalf("snapshot after flush: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue len = %d, want 1", len(items))
	}
	if items[0].Record.ID != failing.ID {
		t.Fatalf("surviving record = %q, want %q", items[0].Record.ID, failing.ID)
	}
	if items[0].LastError != "connection refused" {
		t.Fatalf("last error = %q", items[0].LastError)
	}
}

func TestCompleteFlushSparesMidPassSupersede(t *testing.T) {
	queue := openQueue(t)
	key := "material:mat-1"

	original := mustRecord(t, &mutation.MaterialCreate{MaterialFields: mutation.MaterialFields{ID: "mat-1", Name: "conduit"}}, key)
	if err := queue.Enqueue(context.Background(), original); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	snapshot, err := queue.SnapshotAll(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// Delivery succeeds, but a newer intent for the same key lands before
	// the pass completes.
	newer := mustRecord(t, &mutation.MaterialUpdate{MaterialFields: mutation.MaterialFields{ID: "mat-1", Name: "conduit 20mm"}}, key)
	if err := queue.Enqueue(context.Background(), newer); err != nil {
		t.Fatalf("enqueue newer: %v", err)
	}

	if err := queue.CompleteFlush(context.Background(), snapshot, nil); err != nil {
		t.Fatalf("complete flush: %v", err)
	}

	items, err := queue.SnapshotAll(context.Background())
	if err != nil {
		t.Fatalf("snapshot after flush: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue len = %d, want 1 (newer intent must survive)", len(items))
	}
	material, ok := items[0].Record.Payload.(*mutation.MaterialUpdate)
	if !ok {
		t.Fatalf("payload type = %T", items[0].Record.Payload)
	}
	if material.Name != "conduit 20mm" {
		t.Fatalf("surviving name = %q", material.Name)
	}
}

func TestCompleteFlushSparesSupersedeAtSameInstant(t *testing.T) {
	queue := openQueue(t)
	queue.clock = func() time.Time {
		return time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)
	}
	key := "material:mat-1"

	original := mustRecord(t, &mutation.MaterialCreate{MaterialFields: mutation.MaterialFields{ID: "mat-1", Name: "conduit"}}, key)
	if err := queue.Enqueue(context.Background(), original); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	snapshot, err := queue.SnapshotAll(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// The coalescing enqueue carries the exact same timestamp as the
	// snapshot row, so the post-flush cleanup cannot tell them apart by
	// time alone.
	newer := mustRecord(t, &mutation.MaterialUpdate{MaterialFields: mutation.MaterialFields{ID: "mat-1", Name: "conduit 20mm"}}, key)
	if err := queue.Enqueue(context.Background(), newer); err != nil {
		t.Fatalf("enqueue newer: %v", err)
	}

	if err := queue.CompleteFlush(context.Background(), snapshot, nil); err != nil {
		t.Fatalf("complete flush: %v", err)
	}

	items, err := queue.SnapshotAll(context.Background())
	if err != nil {
		t.Fatalf("snapshot after flush: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue len = %d, want 1 (newer intent must survive)", len(items))
	}
	material, ok := items[0].Record.Payload.(*mutation.MaterialUpdate)
	if !ok {
		t.Fatalf("payload type = %T", items[0].Record.Payload)
	}
	if material.Name != "conduit 20mm" {
		t.Fatalf("surviving name = %q", material.Name)
	}
}
