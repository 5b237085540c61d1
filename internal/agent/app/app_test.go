package app

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/seamark/fieldops/internal/agent/mutation"
	"github.com/seamark/fieldops/internal/services/field/api/httpapi"
	fieldstorage "github.com/seamark/fieldops/internal/services/field/storage"
	fieldsqlite "github.com/seamark/fieldops/internal/services/field/storage/sqlite"
	"github.com/seamark/fieldops/internal/services/field/token"
)

func newBackend(t *testing.T) (*httptest.Server, fieldstorage.Store) {
	t.Helper()
	store, err := fieldsqlite.Open(filepath.Join(t.TempDir(), "field.db"))
	if err != nil {
		t.Fatalf("open field store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	err = store.PutIdentity(context.Background(), fieldstorage.Identity{
		ID: "identity-1", TenantID: "tenant-1",
		Email: "sam@example.com", PasswordHash: string(hash),
	})
	if err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	mux := http.NewServeMux()
	httpapi.NewHandler(store, token.Config{
		Issuer: "fieldops", Audience: "fieldops-agent",
		Key: key, TTL: time.Hour, Now: time.Now,
	}).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, store
}

func TestAgentDeliversQueuedMutationEndToEnd(t *testing.T) {
	server, serverStore := newBackend(t)

	agent, err := New(Config{
		ServerURL: server.URL,
		DBPath:    filepath.Join(t.TempDir(), "agent.db"),
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	defer func() {
		_ = agent.store.Close()
	}()

	ctx := context.Background()
	if err := agent.Guard().Login(ctx, "sam@example.com", "hunter2"); err != nil {
		t.Fatalf("login: %v", err)
	}

	record, err := mutation.NewRecord(&mutation.CrewAssignment{
		JobID: "job-1", CrewID: "crew-9", Phase: "rough-in",
	})
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if err := agent.Enqueue(ctx, record); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		pending, err := agent.PendingCount(ctx)
		if err != nil {
			t.Fatalf("pending count: %v", err)
		}
		if pending == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("mutation not delivered, %d still pending", pending)
		}
		time.Sleep(20 * time.Millisecond)
	}
	agent.dispatcher.Stop()

	assignment, err := serverStore.GetCrewAssignment(ctx, "job-1")
	if err != nil {
		t.Fatalf("get crew assignment: %v", err)
	}
	if assignment.CrewID != "crew-9" || assignment.Phase != "rough-in" {
		t.Fatalf("assignment = %+v", assignment)
	}
}

func TestAgentQueuesWhileDisplacedAndDeliversAfterTakeover(t *testing.T) {
	server, serverStore := newBackend(t)

	agent, err := New(Config{
		ServerURL: server.URL,
		DBPath:    filepath.Join(t.TempDir(), "agent.db"),
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	defer func() {
		_ = agent.store.Close()
	}()

	ctx := context.Background()
	if err := agent.Guard().Login(ctx, "sam@example.com", "hunter2"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// A second device logs in and displaces this one.
	other, err := New(Config{
		ServerURL: server.URL,
		DBPath:    filepath.Join(t.TempDir(), "other.db"),
	})
	if err != nil {
		t.Fatalf("new other agent: %v", err)
	}
	defer func() {
		_ = other.store.Close()
	}()
	if err := other.Guard().Login(ctx, "sam@example.com", "hunter2"); err != nil {
		t.Fatalf("other login: %v", err)
	}

	record, err := mutation.NewRecord(&mutation.CrewAssignment{
		JobID: "job-2", CrewID: "crew-3", Phase: "finish",
	})
	if err != nil {
		t.Fatalf("new record: %v", err)
	}
	if err := agent.Enqueue(ctx, record); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Delivery fails with a session conflict; the record stays queued.
	time.Sleep(100 * time.Millisecond)
	pending, err := agent.PendingCount(ctx)
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if pending != 1 {
		t.Fatalf("pending = %d, want the record retained while displaced", pending)
	}
	if _, err := serverStore.GetCrewAssignment(ctx, "job-2"); err != fieldstorage.ErrNotFound {
		t.Fatalf("assignment err = %v, want not found while displaced", err)
	}

	agent.Guard().ReportConflict()
	if err := agent.Guard().TakeOver(ctx); err != nil {
		t.Fatalf("take over: %v", err)
	}
	agent.dispatcher.TriggerFlush()

	deadline := time.Now().Add(5 * time.Second)
	for {
		pending, err := agent.PendingCount(ctx)
		if err != nil {
			t.Fatalf("pending count: %v", err)
		}
		if pending == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("mutation not delivered after takeover, %d pending", pending)
		}
		time.Sleep(20 * time.Millisecond)
	}
	agent.dispatcher.Stop()

	assignment, err := serverStore.GetCrewAssignment(ctx, "job-2")
	if err != nil {
		t.Fatalf("get crew assignment: %v", err)
	}
	if assignment.CrewID != "crew-3" {
		t.Fatalf("assignment = %+v", assignment)
	}
}
