package httpapi

import (
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/platform/requestctx"
	"github.com/seamark/fieldops/internal/services/field/storage"
)

// authenticated verifies the bearer token and the device session header,
// then stashes the caller's identity in the request context. It does NOT
// compare the device session against the authority; takeover depends on
// that gap, since the claimant's session is by definition not yet
// authoritative.
func (h *Handler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := h.tokens.Verify(bearer)
		if err != nil {
			writeError(w, http.StatusUnauthorized, apperrors.CodeOf(err), "bearer token is invalid")
			return
		}
		deviceSessionID := strings.TrimSpace(r.Header.Get(DeviceSessionHeader))
		if deviceSessionID == "" {
			writeError(w, http.StatusUnauthorized, apperrors.CodeDeviceSessionMissing, "device session header is required")
			return
		}

		ctx := requestctx.WithIdentityID(r.Context(), claims.IdentityID)
		ctx = requestctx.WithTenantID(ctx, claims.TenantID)
		ctx = requestctx.WithDeviceSessionID(ctx, deviceSessionID)
		next(w, r.WithContext(ctx))
	}
}

// protected additionally requires the caller's device session to match the
// identity's session authority. A mismatch means another device logged in
// or took over after this token was issued.
func (h *Handler) protected(next http.HandlerFunc) http.HandlerFunc {
	return h.authenticated(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identityID := requestctx.IdentityIDFromContext(ctx)
		deviceSessionID := requestctx.DeviceSessionIDFromContext(ctx)

		authority, err := h.store.GetSessionAuthority(ctx, identityID)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, apperrors.CodeCredentialInvalid, "no session authority for identity")
			return
		}
		if err != nil {
			writeAppError(w, err)
			return
		}
		if authority.DeviceSessionID != deviceSessionID {
			writeError(w, http.StatusForbidden, apperrors.CodeSessionConflict, "session is held by another device")
			return
		}
		next(w, r)
	})
}
