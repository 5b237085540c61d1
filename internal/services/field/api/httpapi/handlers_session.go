package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/platform/requestctx"
	"github.com/seamark/fieldops/internal/services/field/storage"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token           string `json:"token"`
	IdentityID      string `json:"identityId"`
	TenantID        string `json:"tenantId"`
	DeviceSessionID string `json:"deviceSessionId"`
}

type sessionResponse struct {
	IdentityID      string `json:"identityId"`
	TenantID        string `json:"tenantId"`
	DeviceSessionID string `json:"deviceSessionId"`
}

// handleLogin authenticates an identity and registers the caller's device
// session as the new session authority, displacing any other device.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, apperrors.CodeLoginEmailEmpty, "email is required")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, apperrors.CodeLoginPasswordEmpty, "password is required")
		return
	}
	deviceSessionID := strings.TrimSpace(r.Header.Get(DeviceSessionHeader))
	if deviceSessionID == "" {
		writeError(w, http.StatusUnauthorized, apperrors.CodeDeviceSessionMissing, "device session header is required")
		return
	}

	identity, err := h.store.GetIdentityByEmail(r.Context(), req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		// Indistinguishable from a wrong password on purpose.
		writeError(w, http.StatusUnauthorized, apperrors.CodeLoginRejected, "email or password is incorrect")
		return
	}
	if err != nil {
		writeAppError(w, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, apperrors.CodeLoginRejected, "email or password is incorrect")
		return
	}

	if _, err := h.store.ClaimSessionAuthority(r.Context(), identity.ID, deviceSessionID, h.now()); err != nil {
		writeAppError(w, err)
		return
	}
	bearer, err := h.tokens.Mint(identity.ID, identity.TenantID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:           bearer,
		IdentityID:      identity.ID,
		TenantID:        identity.TenantID,
		DeviceSessionID: deviceSessionID,
	})
}

// handleSessionCheck answers the heartbeat. Reaching here means the
// middleware already confirmed the caller holds the session authority.
func (h *Handler) handleSessionCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, sessionResponse{
		IdentityID:      requestctx.IdentityIDFromContext(ctx),
		TenantID:        requestctx.TenantIDFromContext(ctx),
		DeviceSessionID: requestctx.DeviceSessionIDFromContext(ctx),
	})
}

// handleTakeover overwrites the session authority with the caller's device
// session. The device session header is the whole claim; there is no body.
func (h *Handler) handleTakeover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identityID := requestctx.IdentityIDFromContext(ctx)
	deviceSessionID := requestctx.DeviceSessionIDFromContext(ctx)

	authority, err := h.store.ClaimSessionAuthority(ctx, identityID, deviceSessionID, h.now())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceSessionId": authority.DeviceSessionID,
		"version":         authority.Version,
	})
}
