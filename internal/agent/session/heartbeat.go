package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/platform/timeouts"
)

// Heartbeat periodically confirms the held session is still authoritative.
// Fatal classifications force logout exactly once per authenticated
// episode; everything else is logged and retried on the next tick.
type Heartbeat struct {
	guard    *Guard
	interval time.Duration

	// onConflict, when set, is invoked once per episode instead of a
	// forced logout when the failure is an explicit session conflict, so
	// the surrounding app can offer relinquish-or-takeover.
	onConflict func()
	// onForcedLogout is invoked after a forced logout completes; the
	// surrounding app uses it to navigate to the login surface.
	onForcedLogout func()
	// afterCheck runs after every successful check; the sync engine hooks
	// a flush trigger here so delivery piggybacks on session traffic.
	afterCheck func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// handledEpoch is the last authenticated epoch for which a fatal
	// transition already fired; overlapping ticks cannot double-fire.
	handledEpoch atomic.Int64
}

// HeartbeatOption configures a heartbeat.
type HeartbeatOption func(*Heartbeat)

// WithHeartbeatInterval overrides the probe period.
func WithHeartbeatInterval(interval time.Duration) HeartbeatOption {
	return func(h *Heartbeat) {
		if interval > 0 {
			h.interval = interval
		}
	}
}

// WithConflictHandler routes explicit session conflicts to a user choice
// instead of an immediate forced logout.
func WithConflictHandler(handler func()) HeartbeatOption {
	return func(h *Heartbeat) {
		h.onConflict = handler
	}
}

// WithForcedLogoutHandler observes completed forced logouts.
func WithForcedLogoutHandler(handler func()) HeartbeatOption {
	return func(h *Heartbeat) {
		h.onForcedLogout = handler
	}
}

// WithAfterCheck runs a hook after every successful session check.
func WithAfterCheck(hook func()) HeartbeatOption {
	return func(h *Heartbeat) {
		h.afterCheck = hook
	}
}

// NewHeartbeat creates a heartbeat for a guard.
func NewHeartbeat(guard *Guard, opts ...HeartbeatOption) *Heartbeat {
	h := &Heartbeat{
		guard:    guard,
		interval: timeouts.HeartbeatInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start begins probing. Calling Start on a running heartbeat is a no-op.
func (h *Heartbeat) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.run(ctx, h.done)
}

// Stop halts probing; safe to call at any time.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	done := h.done
	h.cancel = nil
	h.done = nil
	h.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *Heartbeat) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Tick(ctx)
		}
	}
}

// Tick runs one probe. Exported so app-resume hooks can check immediately.
func (h *Heartbeat) Tick(ctx context.Context) {
	if h.guard.State() != StateAuthenticated {
		return
	}
	epoch := h.guard.Epoch()

	_, err := h.guard.api.SessionCheck(ctx)
	if err == nil {
		if h.afterCheck != nil {
			h.afterCheck()
		}
		return
	}

	kind := errors.KindOf(err)
	switch kind {
	case errors.KindSessionConflict, errors.KindCredentialInvalid:
		if !h.claimEpoch(epoch) {
			return
		}
		if kind == errors.KindSessionConflict && h.onConflict != nil {
			h.guard.ReportConflict()
			h.onConflict()
			return
		}
		if logoutErr := h.guard.ForceLogout(ctx, errors.CodeOf(err)); logoutErr != nil {
			log.Printf("forced logout: %v", logoutErr)
			return
		}
		if h.onForcedLogout != nil {
			h.onForcedLogout()
		}
	default:
		log.Printf("session check: %v", err)
	}
}

// claimEpoch marks a fatal transition for this authenticated episode;
// only the first caller per epoch wins.
func (h *Heartbeat) claimEpoch(epoch int64) bool {
	for {
		handled := h.handledEpoch.Load()
		if handled >= epoch {
			return false
		}
		if h.handledEpoch.CompareAndSwap(handled, epoch) {
			return true
		}
	}
}
