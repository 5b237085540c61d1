// Package session drives the device's login, conflict, and takeover flow,
// and watches the held session for invalidation.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/seamark/fieldops/internal/agent/api"
	"github.com/seamark/fieldops/internal/agent/storage"
	"github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/platform/id"
	"github.com/seamark/fieldops/internal/telemetry"
)

// State is the guard's position in the session continuity machine.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateConflicted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateConflicted:
		return "conflicted"
	}
	return "unknown"
}

// API is the backend surface the guard needs.
type API interface {
	Login(ctx context.Context, email, password, deviceSessionID string) (api.LoginResult, error)
	SessionCheck(ctx context.Context) (api.SessionInfo, error)
	Takeover(ctx context.Context, deviceSessionID string) error
}

// TakeoverFailure is the user-visible classification of a failed takeover.
type TakeoverFailure int

const (
	// TakeoverFailureNone means the takeover succeeded.
	TakeoverFailureNone TakeoverFailure = iota
	// TakeoverFailureCredential means the bearer credential was unusable;
	// the user must sign in again before anything else.
	TakeoverFailureCredential
	// TakeoverFailureConflict means the other device still holds the
	// session; the user should retry later.
	TakeoverFailureConflict
	// TakeoverFailureGeneric covers everything else.
	TakeoverFailureGeneric
)

// ClassifyTakeoverFailure maps a takeover error to its user-visible bucket.
func ClassifyTakeoverFailure(err error) TakeoverFailure {
	if err == nil {
		return TakeoverFailureNone
	}
	switch errors.KindOf(err) {
	case errors.KindCredentialInvalid:
		return TakeoverFailureCredential
	case errors.KindSessionConflict:
		return TakeoverFailureConflict
	}
	return TakeoverFailureGeneric
}

// Guard owns the session continuity state machine.
type Guard struct {
	api     API
	store   storage.Store
	emitter *telemetry.Emitter

	mu    sync.Mutex
	state State
	// epoch counts entries into StateAuthenticated. The heartbeat uses it
	// to fire at most one forced logout per authenticated episode.
	epoch int64
}

// NewGuard creates a guard over the backend API and the local store. The
// initial state restores a persisted session when one exists.
func NewGuard(backend API, store storage.Store, emitter *telemetry.Emitter) *Guard {
	guard := &Guard{api: backend, store: store, emitter: emitter}
	if _, err := store.GetSessionState(context.Background()); err == nil {
		guard.state = StateAuthenticated
		guard.epoch = 1
	}
	return guard
}

// State returns the current machine state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Epoch returns the count of entries into the authenticated state.
func (g *Guard) Epoch() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epoch
}

// Login mints a fresh device session, authenticates, and persists the
// session state before declaring the device authenticated.
func (g *Guard) Login(ctx context.Context, email, password string) error {
	deviceSessionID, err := id.NewID()
	if err != nil {
		return err
	}
	result, err := g.api.Login(ctx, email, password, deviceSessionID)
	if err != nil {
		return err
	}
	if err := g.store.PutSessionState(ctx, storage.SessionState{
		IdentityID:      result.IdentityID,
		TenantID:        result.TenantID,
		DeviceSessionID: deviceSessionID,
		BearerToken:     result.Token,
		UpdatedAt:       time.Now().UTC(),
	}); err != nil {
		return err
	}
	g.setAuthenticated()
	return nil
}

// ReportConflict records that a protected call saw a session conflict.
// Only an authenticated device can become conflicted.
func (g *Guard) ReportConflict() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateAuthenticated {
		g.state = StateConflicted
	}
}

// Relinquish signs out locally, ceding the session to the other device.
func (g *Guard) Relinquish(ctx context.Context) error {
	if err := g.store.ClearSessionState(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	g.state = StateUnauthenticated
	g.mu.Unlock()
	return nil
}

// TakeOver mints a new device session, forcibly claims the session
// authority, and re-verifies the claim before declaring success. A failed
// re-verify reports takeover failure and leaves the device conflicted.
func (g *Guard) TakeOver(ctx context.Context) error {
	current, err := g.store.GetSessionState(ctx)
	if err != nil {
		return errors.Wrap(errors.CodeCredentialInvalid, "no stored session to take over from", err)
	}
	deviceSessionID, err := id.NewID()
	if err != nil {
		return err
	}
	if err := g.api.Takeover(ctx, deviceSessionID); err != nil {
		return err
	}
	current.DeviceSessionID = deviceSessionID
	current.UpdatedAt = time.Now().UTC()
	if err := g.store.PutSessionState(ctx, current); err != nil {
		return err
	}
	// One more protected call proves the authority actually moved; a
	// concurrent takeover from yet another device can still win the race.
	if _, err := g.api.SessionCheck(ctx); err != nil {
		return errors.Wrap(errors.CodeSessionConflict, "takeover did not verify", err)
	}
	g.setAuthenticated()
	g.emit(ctx, "session.takeover", telemetry.SeverityInfo, nil)
	return nil
}

// ForceLogout signs out without user interaction: the session state and
// every identity-scoped cache entry are cleared together.
func (g *Guard) ForceLogout(ctx context.Context, reason errors.Code) error {
	if err := g.store.ClearSessionState(ctx); err != nil {
		return err
	}
	if err := g.store.ClearIdentityCache(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	g.state = StateUnauthenticated
	g.mu.Unlock()
	g.emit(ctx, "session.forced_logout", telemetry.SeverityWarn, map[string]string{"reason": string(reason)})
	return nil
}

// Credentials supplies the stored bearer token and device session for
// protected calls; plug it into api.New.
func (g *Guard) Credentials(ctx context.Context) (api.Credentials, error) {
	state, err := g.store.GetSessionState(ctx)
	if err != nil {
		return api.Credentials{}, err
	}
	return api.Credentials{
		BearerToken:     state.BearerToken,
		DeviceSessionID: state.DeviceSessionID,
	}, nil
}

func (g *Guard) setAuthenticated() {
	g.mu.Lock()
	g.state = StateAuthenticated
	g.epoch++
	g.mu.Unlock()
}

func (g *Guard) emit(ctx context.Context, name string, severity telemetry.Severity, attrs map[string]string) {
	if g.emitter == nil {
		return
	}
	if err := g.emitter.Emit(ctx, telemetry.Event{Name: name, Severity: severity, Attrs: attrs}); err != nil {
		log.Printf("emit session telemetry: %v", err)
	}
}
