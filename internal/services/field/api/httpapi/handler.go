// Package httpapi exposes the field service over HTTP: login, session
// continuity, and one idempotent upsert endpoint per synced mutation.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	apperrors "github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/services/field/storage"
	"github.com/seamark/fieldops/internal/services/field/token"
)

// DeviceSessionHeader carries the caller's device session identifier.
const DeviceSessionHeader = "X-Device-Session"

// Handler serves the field HTTP API.
type Handler struct {
	store  storage.Store
	tokens token.Config
	now    func() time.Time
}

// NewHandler creates a handler over the store and token signer.
func NewHandler(store storage.Store, tokens token.Config) *Handler {
	return &Handler{store: store, tokens: tokens, now: time.Now}
}

// RegisterRoutes attaches every field API route to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(http.MethodPost+" /v1/login", h.handleLogin)
	mux.HandleFunc(http.MethodGet+" /v1/session", h.protected(h.handleSessionCheck))
	mux.HandleFunc(http.MethodPost+" /v1/session/takeover", h.authenticated(h.handleTakeover))

	mux.HandleFunc(http.MethodPut+" /v1/jobs/{jobID}/crew-assignment", h.protected(h.handleCrewAssignment))
	mux.HandleFunc(http.MethodPut+" /v1/jobs/{jobID}/notes", h.protected(h.handleJobNotes))
	mux.HandleFunc(http.MethodPut+" /v1/materials/{id}", h.protected(h.handleMaterial))
	mux.HandleFunc(http.MethodPut+" /v1/suppliers/{id}", h.protected(h.directoryHandler("supplier")))
	mux.HandleFunc(http.MethodPut+" /v1/vendors/{id}", h.protected(h.directoryHandler("vendor")))
	mux.HandleFunc(http.MethodPut+" /v1/permit-companies/{id}", h.protected(h.directoryHandler("permit_company")))
	mux.HandleFunc(http.MethodPut+" /v1/supervisors/{id}", h.protected(h.directoryHandler("supervisor")))
	mux.HandleFunc(http.MethodPut+" /v1/jobs/{jobID}/supervisors", h.protected(h.jobDefaultHandler("supervisors")))
	mux.HandleFunc(http.MethodPut+" /v1/jobs/{jobID}/contractor", h.protected(h.jobDefaultHandler("contractor")))
	mux.HandleFunc(http.MethodPut+" /v1/jobs/{jobID}/vendor", h.protected(h.jobDefaultHandler("vendor")))
	mux.HandleFunc(http.MethodPut+" /v1/jobs/{jobID}/permit-company", h.protected(h.jobDefaultHandler("permit_company")))
	mux.HandleFunc(http.MethodPut+" /v1/jobs/{jobID}/inspection", h.protected(h.jobDefaultHandler("inspection")))
	mux.HandleFunc(http.MethodPut+" /v1/schedule/{id}", h.protected(h.handleScheduledTask))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code apperrors.Code, message string) {
	writeJSON(w, status, errorResponse{Code: string(code), Message: message})
}

// writeAppError maps an application error onto an HTTP status by its kind.
func writeAppError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindCredentialInvalid:
		status = http.StatusUnauthorized
	case apperrors.KindSessionConflict:
		status = http.StatusForbidden
	}
	writeError(w, status, code, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidRequest, "invalid request body")
		return false
	}
	return true
}
