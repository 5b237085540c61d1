package session

import (
	"context"
	"testing"

	agentstorage "github.com/seamark/fieldops/internal/agent/storage"
	apperrors "github.com/seamark/fieldops/internal/platform/errors"
)

func TestTickSkipsWhenUnauthenticated(t *testing.T) {
	backend := &fakeAPI{}
	guard, _ := openGuard(t, backend)
	heartbeat := NewHeartbeat(guard)

	heartbeat.Tick(context.Background())
	if backend.checkCalls != 0 {
		t.Fatalf("checkCalls = %d, want 0 while signed out", backend.checkCalls)
	}
}

func TestTickRunsAfterCheckHookOnSuccess(t *testing.T) {
	backend := &fakeAPI{}
	guard, _ := openGuard(t, backend)
	if err := guard.Login(context.Background(), "sam@example.com", "hunter2"); err != nil {
		t.Fatalf("login: %v", err)
	}

	hookCalls := 0
	heartbeat := NewHeartbeat(guard, WithAfterCheck(func() {
		hookCalls++
	}))
	heartbeat.Tick(context.Background())
	heartbeat.Tick(context.Background())
	if hookCalls != 2 {
		t.Fatalf("afterCheck calls = %d, want 2", hookCalls)
	}
	if guard.State() != StateAuthenticated {
		t.Fatalf("state = %v, want authenticated", guard.State())
	}
}

func TestTickIgnoresTransientFailures(t *testing.T) {
	backend := &fakeAPI{}
	guard, store := openGuard(t, backend)
	if err := guard.Login(context.Background(), "sam@example.com", "hunter2"); err != nil {
		t.Fatalf("login: %v", err)
	}
	backend.setCheckErr(apperrors.New(apperrors.CodeNetworkUnavailable, "offline"))

	logouts := 0
	heartbeat := NewHeartbeat(guard, WithForcedLogoutHandler(func() {
		logouts++
	}))
	heartbeat.Tick(context.Background())
	heartbeat.Tick(context.Background())

	if guard.State() != StateAuthenticated {
		t.Fatalf("state = %v, transient failures must not sign out", guard.State())
	}
	if logouts != 0 {
		t.Fatalf("forced logouts = %d, want 0", logouts)
	}
	if _, err := store.GetSessionState(context.Background()); err != nil {
		t.Fatalf("session state must survive transient failures: %v", err)
	}
}

func TestTickForcesLogoutOncePerEpisode(t *testing.T) {
	backend := &fakeAPI{}
	guard, store := openGuard(t, backend)
	if err := guard.Login(context.Background(), "sam@example.com", "hunter2"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := store.PutIdentityCacheEntry(context.Background(), agentstorage.IdentityCacheEntry{
		CacheKey:    "jobs",
		IdentityID:  "identity-1",
		PayloadJSON: "[]",
	}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	backend.setCheckErr(apperrors.New(apperrors.CodeCredentialInvalid, "revoked"))

	logouts := 0
	heartbeat := NewHeartbeat(guard, WithForcedLogoutHandler(func() {
		logouts++
	}))
	for range 3 {
		heartbeat.Tick(context.Background())
	}

	if logouts != 1 {
		t.Fatalf("forced logouts = %d, want exactly 1", logouts)
	}
	if guard.State() != StateUnauthenticated {
		t.Fatalf("state = %v, want unauthenticated", guard.State())
	}
	if _, err := store.GetSessionState(context.Background()); err == nil {
		t.Fatal("expected cleared session state")
	}
	entries, err := store.ListIdentityCache(context.Background())
	if err != nil {
		t.Fatalf("list cache: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("cache entries = %d, want 0 after forced logout", len(entries))
	}
}

func TestTickRoutesConflictToHandler(t *testing.T) {
	backend := &fakeAPI{}
	guard, store := openGuard(t, backend)
	if err := guard.Login(context.Background(), "sam@example.com", "hunter2"); err != nil {
		t.Fatalf("login: %v", err)
	}
	backend.setCheckErr(apperrors.New(apperrors.CodeSessionConflict, "held elsewhere"))

	conflicts := 0
	heartbeat := NewHeartbeat(guard, WithConflictHandler(func() {
		conflicts++
	}))
	heartbeat.Tick(context.Background())
	heartbeat.Tick(context.Background())

	if conflicts != 1 {
		t.Fatalf("conflict callbacks = %d, want exactly 1", conflicts)
	}
	if guard.State() != StateConflicted {
		t.Fatalf("state = %v, want conflicted", guard.State())
	}
	// The session survives so the user can still choose to take over.
	if _, err := store.GetSessionState(context.Background()); err != nil {
		t.Fatalf("session state must survive a conflict: %v", err)
	}
}

func TestTickForcesLogoutOnConflictWithoutHandler(t *testing.T) {
	backend := &fakeAPI{}
	guard, _ := openGuard(t, backend)
	if err := guard.Login(context.Background(), "sam@example.com", "hunter2"); err != nil {
		t.Fatalf("login: %v", err)
	}
	backend.setCheckErr(apperrors.New(apperrors.CodeSessionConflict, "held elsewhere"))

	heartbeat := NewHeartbeat(guard)
	heartbeat.Tick(context.Background())
	if guard.State() != StateUnauthenticated {
		t.Fatalf("state = %v, want unauthenticated when no handler is set", guard.State())
	}
}

func TestFatalTransitionRearmsAfterNewLogin(t *testing.T) {
	backend := &fakeAPI{}
	guard, _ := openGuard(t, backend)
	if err := guard.Login(context.Background(), "sam@example.com", "hunter2"); err != nil {
		t.Fatalf("login: %v", err)
	}
	backend.setCheckErr(apperrors.New(apperrors.CodeCredentialInvalid, "revoked"))

	logouts := 0
	heartbeat := NewHeartbeat(guard, WithForcedLogoutHandler(func() {
		logouts++
	}))
	heartbeat.Tick(context.Background())

	// A fresh sign-in starts a new episode; a later fatal failure must
	// force logout again.
	backend.setCheckErr(nil)
	if err := guard.Login(context.Background(), "sam@example.com", "hunter2"); err != nil {
		t.Fatalf("second login: %v", err)
	}
	backend.setCheckErr(apperrors.New(apperrors.CodeCredentialInvalid, "revoked again"))
	heartbeat.Tick(context.Background())
	heartbeat.Tick(context.Background())

	if logouts != 2 {
		t.Fatalf("forced logouts = %d, want one per episode", logouts)
	}
}
