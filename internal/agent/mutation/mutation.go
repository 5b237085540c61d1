// Package mutation defines the write intents a device can queue while
// offline. Every mutation type pairs one payload shape with one idempotent
// server endpoint; the registry in this package is the only place a new
// type has to be added.
package mutation

import (
	"fmt"
	"net/http"
	"time"

	"github.com/seamark/fieldops/internal/platform/errors"
	"github.com/seamark/fieldops/internal/platform/id"
)

// Type identifies one mutation operation kind.
type Type string

const (
	TypeCrewAssignment      Type = "crew_assignment"
	TypeJobNotesSync        Type = "job_notes_sync"
	TypeMaterialCreate      Type = "material_create"
	TypeMaterialUpdate      Type = "material_update"
	TypeSupplierUpsert      Type = "supplier_upsert"
	TypeVendorUpsert        Type = "vendor_upsert"
	TypePermitCompanyUpsert Type = "permit_company_upsert"
	TypeSupervisorUpsert    Type = "supervisor_upsert"
	TypeJobSupervisorsSet   Type = "job_supervisors_set"
	TypeJobContractorSet    Type = "job_contractor_set"
	TypeJobVendorSet        Type = "job_vendor_set"
	TypeJobPermitCompanySet Type = "job_permit_company_set"
	TypeJobInspectionSet    Type = "job_inspection_set"
	TypeScheduledTaskCreate Type = "scheduled_task_create"
)

// Route is the server operation a mutation type maps to.
type Route struct {
	Method string
	Path   string
}

// Payload is one typed mutation body. Implementations validate themselves
// and know their own endpoint and default coalescing key.
type Payload interface {
	Type() Type
	CoalesceKey() string
	Route() Route
	Validate() error
}

// Record is one durable write intent awaiting delivery.
type Record struct {
	ID          string
	Type        Type
	CoalesceKey string
	CreatedAt   time.Time
	Payload     Payload
}

// NewRecord builds a record for a payload using its default coalescing key.
// Validation failures are returned before anything touches the queue.
func NewRecord(payload Payload) (Record, error) {
	return NewRecordWithKey(payload, "")
}

// NewRecordWithKey builds a record with a caller-supplied coalescing key.
// An empty key falls back to the payload's default.
func NewRecordWithKey(payload Payload, coalesceKey string) (Record, error) {
	if payload == nil {
		return Record{}, errors.New(errors.CodeMutationPayloadEmpty, "mutation payload is required")
	}
	if err := payload.Validate(); err != nil {
		return Record{}, err
	}
	recordID, err := id.NewID()
	if err != nil {
		return Record{}, fmt.Errorf("mint record id: %w", err)
	}
	if coalesceKey == "" {
		coalesceKey = payload.CoalesceKey()
	}
	return Record{
		ID:          recordID,
		Type:        payload.Type(),
		CoalesceKey: coalesceKey,
		CreatedAt:   time.Now().UTC(),
		Payload:     payload,
	}, nil
}

// registry maps each type to a constructor for its payload shape. Adding a
// mutation type means adding one entry here and one payload struct; nothing
// else in the dispatch path changes.
var registry = map[Type]func() Payload{
	TypeCrewAssignment:      func() Payload { return &CrewAssignment{} },
	TypeJobNotesSync:        func() Payload { return &JobNotes{} },
	TypeMaterialCreate:      func() Payload { return &MaterialCreate{} },
	TypeMaterialUpdate:      func() Payload { return &MaterialUpdate{} },
	TypeSupplierUpsert:      func() Payload { return &SupplierUpsert{} },
	TypeVendorUpsert:        func() Payload { return &VendorUpsert{} },
	TypePermitCompanyUpsert: func() Payload { return &PermitCompanyUpsert{} },
	TypeSupervisorUpsert:    func() Payload { return &SupervisorUpsert{} },
	TypeJobSupervisorsSet:   func() Payload { return &JobSupervisorsSet{} },
	TypeJobContractorSet:    func() Payload { return &JobContractorSet{} },
	TypeJobVendorSet:        func() Payload { return &JobVendorSet{} },
	TypeJobPermitCompanySet: func() Payload { return &JobPermitCompanySet{} },
	TypeJobInspectionSet:    func() Payload { return &JobInspectionSet{} },
	TypeScheduledTaskCreate: func() Payload { return &ScheduledTask{} },
}

// NewPayload returns an empty payload for a wire type.
func NewPayload(mutationType Type) (Payload, error) {
	constructor, ok := registry[mutationType]
	if !ok {
		return nil, errors.WithMetadata(errors.CodeMutationTypeUnknown, "unknown mutation type",
			map[string]string{"type": string(mutationType)})
	}
	return constructor(), nil
}

// KnownTypes returns every registered mutation type.
func KnownTypes() []Type {
	types := make([]Type, 0, len(registry))
	for mutationType := range registry {
		types = append(types, mutationType)
	}
	return types
}

func putRoute(path string) Route {
	return Route{Method: http.MethodPut, Path: path}
}
