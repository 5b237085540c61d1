// Package app composes the on-device agent: the durable store, the backend
// client, the session guard, the heartbeat, and the sync dispatcher.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/seamark/fieldops/internal/agent/api"
	"github.com/seamark/fieldops/internal/agent/dispatch"
	"github.com/seamark/fieldops/internal/agent/mutation"
	"github.com/seamark/fieldops/internal/agent/outbox"
	"github.com/seamark/fieldops/internal/agent/session"
	agentsqlite "github.com/seamark/fieldops/internal/agent/storage/sqlite"
	"github.com/seamark/fieldops/internal/telemetry"
)

// Config holds agent composition settings.
type Config struct {
	// ServerURL is the backend base URL.
	ServerURL string
	// DBPath locates the agent's SQLite file.
	DBPath string
	// SyncInterval overrides the dispatcher flush period when positive.
	SyncInterval time.Duration
	// HeartbeatInterval overrides the session probe period when positive.
	HeartbeatInterval time.Duration
	// OnConflict, when set, is invoked when another device takes the
	// session, so the UI can offer relinquish-or-takeover.
	OnConflict func()
	// OnForcedLogout is invoked after a forced logout completes.
	OnForcedLogout func()
}

// App is a composed agent.
type App struct {
	store      *agentsqlite.Store
	client     *api.Client
	guard      *session.Guard
	heartbeat  *session.Heartbeat
	dispatcher *dispatch.Dispatcher
}

// New builds an agent from config. The store opens immediately; everything
// else starts on Run.
func New(cfg Config) (*App, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, fmt.Errorf("server url is required")
	}
	path := strings.TrimSpace(cfg.DBPath)
	if path == "" {
		path = filepath.Join("data", "agent.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := agentsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open agent sqlite store: %w", err)
	}

	emitter := telemetry.NewEmitter(store)
	guardHolder := &guardCredentials{}
	client := api.New(cfg.ServerURL, guardHolder.credentials)
	guard := session.NewGuard(client, store, emitter)
	guardHolder.guard = guard

	var dispatchOpts []dispatch.Option
	if cfg.SyncInterval > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithInterval(cfg.SyncInterval))
	}
	dispatchOpts = append(dispatchOpts, dispatch.WithEmitter(emitter))
	dispatcher := dispatch.New(outbox.NewQueue(store), client, dispatchOpts...)

	heartbeatOpts := []session.HeartbeatOption{
		// Delivery piggybacks on a confirmed-healthy session.
		session.WithAfterCheck(dispatcher.TriggerFlush),
	}
	if cfg.HeartbeatInterval > 0 {
		heartbeatOpts = append(heartbeatOpts, session.WithHeartbeatInterval(cfg.HeartbeatInterval))
	}
	if cfg.OnConflict != nil {
		heartbeatOpts = append(heartbeatOpts, session.WithConflictHandler(cfg.OnConflict))
	}
	if cfg.OnForcedLogout != nil {
		heartbeatOpts = append(heartbeatOpts, session.WithForcedLogoutHandler(cfg.OnForcedLogout))
	}
	heartbeat := session.NewHeartbeat(guard, heartbeatOpts...)

	return &App{
		store:      store,
		client:     client,
		guard:      guard,
		heartbeat:  heartbeat,
		dispatcher: dispatcher,
	}, nil
}

// guardCredentials breaks the client/guard construction cycle: the client
// needs a credential source before the guard exists.
type guardCredentials struct {
	guard *session.Guard
}

func (g *guardCredentials) credentials(ctx context.Context) (api.Credentials, error) {
	if g.guard == nil {
		return api.Credentials{}, fmt.Errorf("session guard is not ready")
	}
	return g.guard.Credentials(ctx)
}

// Guard exposes the session guard for login and takeover flows.
func (a *App) Guard() *session.Guard {
	return a.guard
}

// Enqueue records a mutation for delivery.
func (a *App) Enqueue(ctx context.Context, record mutation.Record) error {
	return a.dispatcher.Enqueue(ctx, record)
}

// PendingCount reports how many mutations await delivery.
func (a *App) PendingCount(ctx context.Context) (int, error) {
	return a.dispatcher.PendingCount(ctx)
}

// Run starts the heartbeat and dispatcher and blocks until the context
// ends, then stops both and closes the store.
func (a *App) Run(ctx context.Context) error {
	a.heartbeat.Start()
	a.dispatcher.Start()
	log.Printf("agent running, %d mutations pending", a.pendingOrZero(ctx))

	<-ctx.Done()

	a.heartbeat.Stop()
	a.dispatcher.Stop()
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close agent store: %w", err)
	}
	return nil
}

func (a *App) pendingOrZero(ctx context.Context) int {
	pending, err := a.dispatcher.PendingCount(ctx)
	if err != nil {
		return 0
	}
	return pending
}
