package httpapi

import (
	"net/http"

	"github.com/seamark/fieldops/internal/agent/mutation"
	apperrors "github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/services/field/storage"
)

// Command handlers share one contract: every write is an upsert keyed by
// IDs embedded in the payload, so a redelivered mutation converges instead
// of duplicating. Path IDs must agree with payload IDs.

func (h *Handler) handleCrewAssignment(w http.ResponseWriter, r *http.Request) {
	var payload mutation.CrewAssignment
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := payload.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	if payload.JobID != r.PathValue("jobID") {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidRequest, "payload job id does not match path")
		return
	}
	err := h.store.PutCrewAssignment(r.Context(), storage.CrewAssignment{
		JobID:     payload.JobID,
		CrewID:    payload.CrewID,
		Phase:     payload.Phase,
		UpdatedAt: h.now(),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleJobNotes(w http.ResponseWriter, r *http.Request) {
	var payload mutation.JobNotes
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := payload.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	if payload.JobID != r.PathValue("jobID") {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidRequest, "payload job id does not match path")
		return
	}
	notes := make([]storage.JobNote, 0, len(payload.Notes))
	for _, note := range payload.Notes {
		notes = append(notes, storage.JobNote{
			JobID:   payload.JobID,
			NoteID:  note.ID,
			Body:    note.Body,
			NotedAt: note.NotedAt,
		})
	}
	if err := h.store.ReplaceJobNotes(r.Context(), payload.JobID, notes); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) handleMaterial(w http.ResponseWriter, r *http.Request) {
	var payload mutation.MaterialFields
	if !decodeBody(w, r, &payload) {
		return
	}
	if payload.ID == "" {
		writeError(w, http.StatusBadRequest, apperrors.CodeEntityIDEmpty, "material requires an id")
		return
	}
	if payload.Name == "" {
		writeError(w, http.StatusBadRequest, apperrors.CodeEntityNameEmpty, "material requires a name")
		return
	}
	if payload.ID != r.PathValue("id") {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidRequest, "payload id does not match path")
		return
	}
	err := h.store.PutMaterial(r.Context(), storage.Material{
		ID:        payload.ID,
		Name:      payload.Name,
		Quantity:  payload.Quantity,
		Unit:      payload.Unit,
		Supplier:  payload.SupplierID,
		UpdatedAt: h.now(),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// directoryHandler serves the four directory endpoints; kind fixes which
// directory the entity lands in.
func (h *Handler) directoryHandler(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload mutation.DirectoryEntity
		if !decodeBody(w, r, &payload) {
			return
		}
		if payload.ID == "" {
			writeError(w, http.StatusBadRequest, apperrors.CodeEntityIDEmpty, "directory entity requires an id")
			return
		}
		if payload.Name == "" {
			writeError(w, http.StatusBadRequest, apperrors.CodeEntityNameEmpty, "directory entity requires a name")
			return
		}
		if payload.ID != r.PathValue("id") {
			writeError(w, http.StatusBadRequest, apperrors.CodeInvalidRequest, "payload id does not match path")
			return
		}
		err := h.store.PutDirectoryEntity(r.Context(), storage.DirectoryEntity{
			ID:           payload.ID,
			Kind:         kind,
			Name:         payload.Name,
			ContactName:  payload.ContactName,
			ContactPhone: payload.ContactPhone,
			ContactEmail: payload.ContactEmail,
			UpdatedAt:    h.now(),
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nil)
	}
}

// jobDefaultHandler serves the five job assignment endpoints; field fixes
// which assignment set is replaced.
func (h *Handler) jobDefaultHandler(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload mutation.JobAssignmentFields
		if !decodeBody(w, r, &payload) {
			return
		}
		if payload.JobID == "" {
			writeError(w, http.StatusBadRequest, apperrors.CodeJobIDEmpty, "job assignment requires a job id")
			return
		}
		if payload.JobID != r.PathValue("jobID") {
			writeError(w, http.StatusBadRequest, apperrors.CodeInvalidRequest, "payload job id does not match path")
			return
		}
		err := h.store.PutJobDefault(r.Context(), storage.JobDefault{
			JobID:     payload.JobID,
			Field:     field,
			IDs:       payload.IDs,
			UpdatedAt: h.now(),
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nil)
	}
}

func (h *Handler) handleScheduledTask(w http.ResponseWriter, r *http.Request) {
	var payload mutation.ScheduledTask
	if !decodeBody(w, r, &payload) {
		return
	}
	if err := payload.Validate(); err != nil {
		writeAppError(w, err)
		return
	}
	if payload.ID != r.PathValue("id") {
		writeError(w, http.StatusBadRequest, apperrors.CodeInvalidRequest, "payload id does not match path")
		return
	}
	err := h.store.PutScheduledTask(r.Context(), storage.ScheduledTask{
		ID:          payload.ID,
		JobID:       payload.JobID,
		CrewID:      payload.CrewID,
		Phase:       payload.Phase,
		ScheduledAt: payload.ScheduledAt,
		UpdatedAt:   h.now(),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
